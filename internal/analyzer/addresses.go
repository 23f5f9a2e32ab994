package analyzer

import (
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// imageExtensions are top-level labels that show up when a parser glues an
// image file name (logo@2x.png) onto text; they are never real domains.
var imageExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"svg":  {},
	"bmp":  {},
}

// ExtractAddresses returns the normalized, de-duplicated contact addresses in
// text, in order of first appearance.
func ExtractAddresses(text string) []string {
	out := make([]string, 0)
	if text == "" {
		return out
	}
	seen := make(map[string]struct{})
	for _, raw := range addressPattern.FindAllString(text, -1) {
		addr := NormalizeAddress(raw)
		if !validAddress(addr) {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// NormalizeAddress lowercases an address and strips leading and trailing
// characters outside [a-z0-9].
func NormalizeAddress(raw string) string {
	addr := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimFunc(addr, func(r rune) bool {
		return !isLowerAlnum(r)
	})
}

func validAddress(addr string) bool {
	if len(addr) < 5 || !strings.Contains(addr, "@") {
		return false
	}
	tld := addr[strings.LastIndex(addr, ".")+1:]
	if strings.ContainsAny(tld, "0123456789") {
		return false
	}
	if _, image := imageExtensions[tld]; image {
		return false
	}
	return true
}

func isLowerAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
