package agent

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/shared/utils"
)

var injectionPatterns = compileAll([]string{
	// instruction override
	`ignore\s+(all\s+)?previous\s+instructions`,
	`ignore\s+(all\s+)?above`,
	`disregard\s+(all\s+)?previous`,
	`forget\s+(all\s+)?previous`,
	`override\s+instructions`,
	`new\s+instructions:`,

	// role play
	`you\s+are\s+now\s+`,
	`act\s+as\s+(a|an)\s+`,
	`pretend\s+(to\s+be|you('re| are))\s+`,
	`from\s+now\s+on\s+you`,
	`switch\s+to\s+`,
	`enter\s+\w+\s+mode`,

	// prompt extraction
	`reveal\s+(your\s+)?system\s+prompt`,
	`show\s+(me\s+)?(your\s+)?instructions`,
	`what\s+are\s+your\s+instructions`,
	`repeat\s+(your\s+)?system`,
	`print\s+your\s+(system|prompt)`,
	`output\s+your\s+(initial|system|first)`,

	// delimiters
	`\[system\]`,
	`\[assistant\]`,
	`\[user\]`,
	`</?system>`,
	"```system",
	`\bsystem:`,

	`\bjailbreak\b`,
	`\bdan\s+mode\b`,
	`\bdo\s+anything\s+now\b`,
	`\bdeveloper\s+mode\b`,
})

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// DetectInjection reports whether text looks like an attempt to override the
// agent's instructions.
func DetectInjection(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			log.Warn().
				Str("pattern", re.String()).
				Str("preview", utils.Preview(text, 100)).
				Msg("Prompt injection detected")
			return true
		}
	}
	return false
}

var (
	apiKeyPattern     = regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`)
	promptLeakPattern = regexp.MustCompile(`(?i)(instrucoes de seguranca|system\s*prompt:)[^\n]*(\n[^\n]+)*`)

	// Cards and CPFs go first so the phone pattern does not eat them.
	piiPatterns = []struct {
		re   *regexp.Regexp
		mask string
	}{
		{regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`), "[CARD]"},
		{regexp.MustCompile(`\b\d{3}\.?\d{3}\.?\d{3}-?\d{2}\b`), "[CPF]"},
		{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},
		{regexp.MustCompile(`\b(\+?55\s?)?(\(?\d{2}\)?\s?)?\d{4,5}[-\s]?\d{4}\b`), "[PHONE]"},
	}
)

// SanitizeOutput removes leaked keys and prompt fragments from a completion.
func SanitizeOutput(text string) string {
	text = apiKeyPattern.ReplaceAllString(text, "[REDACTED]")
	text = promptLeakPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// StripPII masks cards, CPFs, e-mails and phone numbers. Length is left to the
// caller.
func StripPII(text string) string {
	for _, p := range piiPatterns {
		text = p.re.ReplaceAllString(text, p.mask)
	}
	return text
}
