// Package uuid provides run and record identifiers.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// recordNamespace scopes deterministic record IDs.
var recordNamespace = uuid.MustParse("6f4c1f0e-1d8e-4f57-9a3b-2c64a9a0d7b1")

// Generator creates UUIDv7 run IDs.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a time-ordered UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// RecordID derives a stable UUIDv5 for a discovered record that arrived without
// one, so repeated runs over the same listing keep the same IDs.
func RecordID(source, name, website string) string {
	key := strings.ToLower(strings.Join([]string{
		strings.TrimSpace(source),
		strings.TrimSpace(name),
		strings.TrimSpace(website),
	}, "|"))
	return uuid.NewSHA1(recordNamespace, []byte(key)).String()
}
