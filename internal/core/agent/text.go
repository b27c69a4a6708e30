package agent

import "strings"

// SplitMessage cuts text into chunks of at most max bytes, preferring a
// paragraph break, then a line break, then a space. Chunks are trimmed and
// empty ones dropped.
func SplitMessage(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if max <= 0 || len(text) <= max {
		return []string{text}
	}

	var chunks []string
	rest := text
	for len(rest) > max {
		window := rest[:max]
		cut := strings.LastIndex(window, "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(window, "\n")
		}
		if cut <= 0 {
			cut = strings.LastIndex(window, " ")
		}
		if cut <= 0 {
			cut = runeBoundary(rest, max)
		}
		if chunk := strings.TrimSpace(rest[:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		rest = strings.TrimSpace(rest[cut:])
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// runeBoundary backs off from n so a hard cut never splits a UTF-8 sequence.
func runeBoundary(s string, n int) int {
	cut := n
	for cut > 0 && cut < len(s) && !isRuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return n
	}
	return cut
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// Truncate limits s to n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
