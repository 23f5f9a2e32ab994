package analyzer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minSnippetLen = 15
	maxSnippetLen = 500
	maxSnippets   = 3

	// EvidenceSeparator joins evidence snippets of one document.
	EvidenceSeparator = " ... "
)

// SplitSentences splits text wherever a run of whitespace follows '.', '!',
// '?' or a newline. The terminator stays with the preceding sentence.
func SplitSentences(text string) []string {
	runes := []rune(text)
	out := make([]string, 0)
	start := 0
	for i := 0; i < len(runes); i++ {
		if i == 0 || !unicode.IsSpace(runes[i]) || !isTerminator(runes[i-1]) {
			continue
		}
		j := i
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		out = append(out, string(runes[start:i]))
		start = j
		i = j - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

// CleanSentence collapses whitespace runs to one space and trims the result.
func CleanSentence(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	default:
		return false
	}
}

func snippetLengthOK(s string) bool {
	n := utf8.RuneCountInString(s)
	return n > minSnippetLen && n < maxSnippetLen
}

// Truncate cuts s to at most limit runes. A non-positive limit disables it.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
