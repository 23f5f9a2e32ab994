package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want []string
	}{
		{name: "terminators", text: "One. Two! Three? Four", want: []string{"One.", "Two!", "Three?", "Four"}},
		{name: "newline then whitespace", text: "Line one\n  Line two", want: []string{"Line one\n", "Line two"}},
		{name: "newline without whitespace", text: "Line one\nLine two", want: []string{"Line one\nLine two"}},
		{name: "decimal stays", text: "Rs.50.00 each. Next", want: []string{"Rs.50.00 each.", "Next"}},
		{name: "blank lines", text: "A.\n\n\nB", want: []string{"A.", "B"}},
		{name: "empty", text: "", want: []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, SplitSentences(tc.text))
		})
	}
}

func TestCleanSentence(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a b c", CleanSentence("  a\n\tb   c  "))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "héll", Truncate("héllo", 4))
	require.Equal(t, "héllo", Truncate("héllo", 0))
	require.Equal(t, "abc", Truncate("abc", 10))
}
