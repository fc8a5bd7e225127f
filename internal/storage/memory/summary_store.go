package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

// SummaryStore records run summaries in memory.
type SummaryStore struct {
	mu        sync.RWMutex
	summaries []lead.RunSummary
}

// NewSummaryStore constructs an empty SummaryStore.
func NewSummaryStore() *SummaryStore {
	return &SummaryStore{}
}

// SaveSummary appends the summary.
func (s *SummaryStore) SaveSummary(_ context.Context, summary lead.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return nil
}

// Summaries returns the saved summaries in order.
func (s *SummaryStore) Summaries() []lead.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]lead.RunSummary(nil), s.summaries...)
}
