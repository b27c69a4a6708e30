package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessageKeepsRunes(t *testing.T) {
	text := strings.Repeat("ç", 10)
	got := SplitMessage(text, 5)
	require.NotEmpty(t, got)
	for _, c := range got {
		assert.True(t, utf8.ValidString(c), c)
	}
	assert.Equal(t, text, strings.Join(got, ""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ãé", Truncate("ãéí", 2))
}
