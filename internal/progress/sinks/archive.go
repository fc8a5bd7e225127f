package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
	"github.com/JakeFAU/leadgraph-enricher/internal/progress"
)

// ArchiveFile is the object name written under each run's prefix.
const ArchiveFile = "events.jsonl"

// ArchiveSink buffers events as JSON lines per run and writes them to a blob
// store as <prefix>/<run id>/events.jsonl when the hub closes.
type ArchiveSink struct {
	store  lead.BlobStore
	prefix string
	logger *zap.Logger

	mu   sync.Mutex
	runs map[string]*bytes.Buffer
	uris map[string]string
}

// NewArchiveSink archives events beneath prefix within store.
func NewArchiveSink(store lead.BlobStore, prefix string, logger *zap.Logger) *ArchiveSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{
		store:  store,
		prefix: prefix,
		logger: logger,
		runs:   make(map[string]*bytes.Buffer),
		uris:   make(map[string]string),
	}
}

// Consume appends the batch to the in-memory log of each run.
func (s *ArchiveSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		buf, ok := s.runs[evt.RunID]
		if !ok {
			buf = &bytes.Buffer{}
			s.runs[evt.RunID] = buf
		}
		if err := json.NewEncoder(buf).Encode(evt); err != nil {
			return fmt.Errorf("encode progress event: %w", err)
		}
	}
	return nil
}

// Close uploads every buffered run log. Runs that fail to upload keep their
// buffer so a later Close can retry them.
func (s *ArchiveSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		buf := s.runs[id]
		name := path.Join(s.prefix, id, ArchiveFile)
		uri, err := s.store.PutObject(ctx, name, "application/x-ndjson", bytes.NewReader(buf.Bytes()))
		if err != nil {
			errs = append(errs, fmt.Errorf("archive progress events for %s: %w", id, err))
			continue
		}
		s.uris[id] = uri
		delete(s.runs, id)
		s.logger.Info("progress events archived", zap.String("run_id", id), zap.String("uri", uri))
	}
	return errors.Join(errs...)
}

// URI returns where a run's log was written, or "" before it is archived.
func (s *ArchiveSink) URI(runID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uris[runID]
}
