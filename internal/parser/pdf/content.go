package pdf

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"
)

// stringLiteral matches a PDF string literal, allowing escaped parentheses.
var stringLiteral = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// textFromStream walks a page content stream line by line and collects the
// operands of the text showing operators. T* and ' start new lines; Td and TD
// insert a space.
func textFromStream(data []byte) string {
	var sb strings.Builder
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			writeLiterals(&sb, line)
		case bytes.HasSuffix(line, []byte("'")), bytes.HasSuffix(line, []byte(`"`)):
			sb.WriteByte('\n')
			writeLiterals(&sb, line)
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			sb.WriteByte(' ')
		case bytes.Equal(line, []byte("T*")), bytes.Equal(line, []byte("ET")):
			sb.WriteByte('\n')
		}
	}
	return cleanText(sb.String())
}

func writeLiterals(sb *strings.Builder, line []byte) {
	for _, m := range stringLiteral.FindAllSubmatch(line, -1) {
		sb.WriteString(decodeString(m[1]))
	}
}

// decodeString resolves the escape sequences of a PDF string literal.
func decodeString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch c := raw[i]; c {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'b', 'f':
		case '\\', '(', ')':
			sb.WriteByte(c)
		default:
			if c < '0' || c > '7' {
				sb.WriteByte(c)
				continue
			}
			val := int(c - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// cleanText collapses horizontal whitespace, drops unprintable runes and
// blank lines, and keeps line structure for sentence splitting.
func cleanText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		var sb strings.Builder
		for _, r := range line {
			switch {
			case unicode.IsSpace(r):
				sb.WriteByte(' ')
			case unicode.IsPrint(r):
				sb.WriteRune(r)
			}
		}
		if cleaned := strings.Join(strings.Fields(sb.String()), " "); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return strings.Join(out, "\n")
}
