package lead

import (
	"context"
	"io"
	"time"
)

// Discoverer produces raw records from one listing or search provider.
type Discoverer interface {
	Name() string
	Discover(ctx context.Context, query Query) ([]Record, error)
}

// Deduper collapses duplicate records. It must be idempotent.
type Deduper interface {
	Dedupe(records []Record) []Record
}

// Filter decides whether a record continues past discovery.
type Filter interface {
	Keep(record Record) bool
}

// Scorer rates a single record. Implementations must not perform I/O.
type Scorer interface {
	Score(record Record) Score
}

// Generator produces outreach text for one record via an external service.
type Generator interface {
	Generate(ctx context.Context, record Record) (Outreach, error)
}

// BlobStore writes run artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// SummaryStore persists the run summary.
type SummaryStore interface {
	SaveSummary(ctx context.Context, summary RunSummary) error
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
