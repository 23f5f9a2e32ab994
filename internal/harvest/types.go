// Package harvest defines the core types shared across the bid harvesting pipeline.
package harvest

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// EntryStatus represents the lifecycle state of a ledger entry.
type EntryStatus string

// StatusComplete marks an item whose processing finished and must not run again.
const StatusComplete EntryStatus = "complete"

// ItemDescriptor locates one downloadable artifact on a listing page.
type ItemDescriptor struct {
	Identity  string `json:"identity"`
	DisplayID string `json:"displayId"`
}

// Relevance is the classification derived from a document's text.
type Relevance struct {
	IsMatch  bool   `json:"isMatch"`
	Evidence string `json:"evidence"`
}

// LedgerEntry is the immutable completion record for one processed item.
type LedgerEntry struct {
	Timestamp         time.Time   `json:"timestamp"`
	DisplayID         string      `json:"displayId"`
	Status            EntryStatus `json:"status"`
	MatchedKeywords   []string    `json:"matchedKeywords"`
	ExtractedLinks    []string    `json:"extractedLinks"`
	ExtractedContacts []string    `json:"extractedContacts"`
	Relevance         Relevance   `json:"relevance"`
	ArtifactName      string      `json:"artifactName,omitempty"`
	ContentHash       string      `json:"contentHash,omitempty"`
}

// Complete reports whether the entry must be skipped on later runs.
func (e LedgerEntry) Complete() bool {
	return e.Status == StatusComplete
}

// ContactRecord is the outreach state for one normalized address.
type ContactRecord struct {
	Address    string     `json:"address"`
	DateAdded  time.Time  `json:"dateAdded"`
	SendCount  int        `json:"sendCount"`
	LastSentAt *time.Time `json:"lastSentAt"`
}

// Domain returns the lowercase part after the '@', or "" when absent.
func (c ContactRecord) Domain() string {
	return AddressDomain(c.Address)
}

// AddressDomain extracts the domain of an address.
func AddressDomain(address string) string {
	_, domain, ok := strings.Cut(address, "@")
	if !ok {
		return ""
	}
	return strings.ToLower(domain)
}

// ParseResult is what a document parser hands back for one artifact.
type ParseResult struct {
	Text  string
	Links []string
}

// Analysis is the Document Analyzer output for a single document.
type Analysis struct {
	Text         string
	Links        []string
	Addresses    []string
	MatchedTerms []string
	Snippets     []string
	Relevance    Relevance
}

// Artifact is a downloaded document sitting in the transient spool.
type Artifact struct {
	Name string
	Path string
	Size int64
}

// SortedSet returns the sorted, de-duplicated copy of values with blanks removed.
func SortedSet(values ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range values {
		for _, v := range list {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

// PayloadKind tags how the mail sender should treat a payload.
type PayloadKind string

const (
	// PayloadBatch sends one message to all addresses.
	PayloadBatch PayloadKind = "batch"
	// PayloadSingle sends one message per address.
	PayloadSingle PayloadKind = "single"
)

// Payload is the outreach message handed to a Notifier.
type Payload struct {
	Kind      PayloadKind `json:"kind"`
	Addresses []string    `json:"addresses"`
}

// Validate checks the payload before it leaves the process.
func (p Payload) Validate() error {
	switch p.Kind {
	case PayloadBatch, PayloadSingle:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, p.Kind)
	}
	if len(p.Addresses) == 0 {
		return fmt.Errorf("%w: no addresses", ErrInvalidPayload)
	}
	for _, addr := range p.Addresses {
		if !strings.Contains(addr, "@") {
			return fmt.Errorf("%w: malformed address %q", ErrInvalidPayload, addr)
		}
	}
	return nil
}
