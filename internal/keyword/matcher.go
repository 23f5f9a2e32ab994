// Package keyword implements whole-word, case-insensitive term matching.
//
// A word boundary is the RE2 `\b` assertion: the position between an ASCII word
// character ([0-9A-Za-z_]) and anything else, or a string edge. Hyphens and
// apostrophes are therefore boundaries, so "re-inspection" contains the word
// "inspection" and "o'neil" contains "neil". Non-ASCII letters are not word
// characters under this rule.
package keyword

import (
	"regexp"
	"strings"
	"sync"
)

// Matcher finds whole-word occurrences of terms in text. Compiled patterns are
// cached, so a single Matcher should be shared across goroutines.
type Matcher struct {
	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// New creates a Matcher with an empty pattern cache.
func New() *Matcher {
	return &Matcher{patterns: make(map[string]*regexp.Regexp)}
}

// Matches reports whether term occurs in text as a whole word, ignoring case.
func (m *Matcher) Matches(text, term string) bool {
	re := m.pattern(term)
	if re == nil {
		return false
	}
	return re.MatchString(text)
}

// FindAll returns every term with at least one whole-word occurrence in text.
// Order follows terms; duplicates differing only in case are reported once.
func (m *Matcher) FindAll(text string, terms []string) []string {
	found := make([]string, 0)
	if text == "" {
		return found
	}
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		key := strings.ToLower(strings.TrimSpace(term))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if m.Matches(text, term) {
			found = append(found, term)
		}
	}
	return found
}

// MatchesAny reports whether text contains any of terms as a whole word.
func (m *Matcher) MatchesAny(text string, terms []string) bool {
	for _, term := range terms {
		if m.Matches(text, term) {
			return true
		}
	}
	return false
}

func (m *Matcher) pattern(term string) *regexp.Regexp {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	key := strings.ToLower(term)

	m.mu.RLock()
	re, ok := m.patterns[key]
	m.mu.RUnlock()
	if ok {
		return re
	}

	re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
	m.mu.Lock()
	m.patterns[key] = re
	m.mu.Unlock()
	return re
}
