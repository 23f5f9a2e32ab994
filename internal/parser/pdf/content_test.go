package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextFromStream(t *testing.T) {
	t.Parallel()

	stream := []byte(`BT
/F1 12 Tf
72 712 Td
(Scope: ultrasonic thickness) Tj
( measurement of tanks.) Tj
T*
[(Contact ) -120 (buyer@ongc.co.in)] TJ
(for queries \(see annexure\)) '
ET
`)
	got := textFromStream(stream)
	assert.Equal(t, "Scope: ultrasonic thickness measurement of tanks.\nContact buyer@ongc.co.in\nfor queries (see annexure)", got)
}

func TestDecodeString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `hello`, "hello"},
		{"parens", `a\(b\)`, "a(b)"},
		{"octal space", `a\040b`, "a b"},
		{"short octal", `\53`, "+"},
		{"tab", `a\tb`, "a\tb"},
		{"backslash", `a\\b`, `a\b`},
		{"unknown escape", `\q`, "q"},
		{"trailing backslash", `a\`, `a\`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, decodeString([]byte(tc.in)))
		})
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b\nc", cleanText("  a \t b \r\n\n  c  "))
	assert.Empty(t, cleanText("\x00\x01"))
}
