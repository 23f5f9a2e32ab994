package harvest

import "errors"

// Error taxonomy shared by the pipeline. Per-item and per-link errors wrap one of
// these so callers can classify them with errors.Is.
var (
	// ErrDownload marks transport failures and non-success responses.
	ErrDownload = errors.New("download failed")
	// ErrParse marks malformed or unsupported document content.
	ErrParse = errors.New("parse failed")
	// ErrSink marks a rejected or failed outreach send.
	ErrSink = errors.New("notification sink failed")
	// ErrStoreCorrupt marks an unreadable persisted store.
	ErrStoreCorrupt = errors.New("store corrupt")
	// ErrListingUnavailable marks a listing source that cannot be reached at all.
	ErrListingUnavailable = errors.New("listing source unavailable")
	// ErrInvalidPayload marks an outreach payload that failed validation.
	ErrInvalidPayload = errors.New("invalid payload")
)
