package harvest

import (
	"context"
	"time"
)

// ListingSource is a paginated source of item descriptors.
type ListingSource interface {
	Items(ctx context.Context) ([]ItemDescriptor, error)
	HasNext(ctx context.Context) (bool, error)
	Next(ctx context.Context) error
}

// Downloader stores the artifact behind a URL in the transient spool.
type Downloader interface {
	Download(ctx context.Context, url string) (Artifact, error)
	Read(artifact Artifact) ([]byte, error)
	Remove(artifact Artifact) error
}

// Parser turns raw document bytes into text and structural links.
type Parser interface {
	Parse(ctx context.Context, data []byte) (ParseResult, error)
}

// Analyzer extracts signals from raw document bytes.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte) Analysis
}

// LedgerView answers whether an identity was already processed.
type LedgerView interface {
	IsComplete(identity string) bool
}

// ContactSink receives addresses discovered while processing items.
type ContactSink interface {
	Upsert(ctx context.Context, addresses []string) (UpsertResult, error)
}

// UpsertResult counts the records a contact upsert touched.
type UpsertResult struct {
	Created   int
	Corrected int
}

// Changed reports whether the upsert mutated any record.
func (r UpsertResult) Changed() bool {
	return r.Created > 0 || r.Corrected > 0
}

// Notifier delivers an outreach payload to the mail sender.
type Notifier interface {
	Notify(ctx context.Context, payload Payload) error
}

// Hasher computes digests for downloaded artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique names for spool artifacts.
type IDGenerator interface {
	NewID() (string, error)
}
