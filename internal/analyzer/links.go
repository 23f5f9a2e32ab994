package analyzer

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"'()\[\]{}]+`)

// ExtractTextLinks returns the literal URLs written in text.
func ExtractTextLinks(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?")
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// FilterByExtension keeps links whose URL path, ignoring query and fragment,
// ends with ext (case-insensitive). Unparseable links are dropped.
func FilterByExtension(links []string, ext string) []string {
	ext = strings.ToLower(ext)
	out := make([]string, 0, len(links))
	for _, link := range links {
		u, err := url.Parse(strings.TrimSpace(link))
		if err != nil || u.Host == "" {
			continue
		}
		if ext == "" || strings.HasSuffix(strings.ToLower(u.Path), ext) {
			out = append(out, u.String())
		}
	}
	return out
}
