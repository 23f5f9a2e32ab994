// Package uuid names spool artifacts with time-ordered UUIDs.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings. Names sort by creation time, which keeps
// a spool listing in download order.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID v7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether name is a UUID produced by any generator version.
func Valid(name string) bool {
	return uuid.Validate(name) == nil
}
