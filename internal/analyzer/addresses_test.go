package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractAddresses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want []string
	}{
		{name: "numeric tld rejected", text: "contact a@b.12", want: []string{}},
		{name: "plain address", text: "contact a@b.com", want: []string{"a@b.com"}},
		{name: "lowercased and deduplicated", text: "X@Corp.COM, x@corp.com; x@corp.com.", want: []string{"x@corp.com"}},
		{name: "image names rejected", text: "banner@2x.png icon@home.svg", want: []string{}},
		{name: "mixed case normalized", text: "mail: Sales@Vendor.ORG", want: []string{"sales@vendor.org"}},
		{name: "price is not a contact", text: "Rs.50.00 only", want: []string{}},
		{name: "multiple in order", text: "b@two.net then a@one.org", want: []string{"b@two.net", "a@one.org"}},
		{name: "empty", text: "", want: []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, ExtractAddresses(tc.text))
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a.b@c.in", NormalizeAddress("  ..A.B@C.IN-- "))
}

func TestFilterByExtension(t *testing.T) {
	t.Parallel()

	got := FilterByExtension([]string{
		"https://host/a.pdf",
		"https://host/a.pdf.html",
		"https://host/b.PDF?download=1",
		"https://host/c?file=x.pdf",
		"/relative/d.pdf",
	}, ".pdf")
	require.Equal(t, []string{"https://host/a.pdf", "https://host/b.PDF?download=1"}, got)
}

func TestExtractTextLinks(t *testing.T) {
	t.Parallel()

	got := ExtractTextLinks("See (https://x.org/a.pdf), and http://y.org/b.pdf.")
	require.Equal(t, []string{"https://x.org/a.pdf", "http://y.org/b.pdf"}, got)
}
