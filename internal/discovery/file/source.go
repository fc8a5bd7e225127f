// Package file discovers records from a local JSON or JSON-lines listing.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/JakeFAU/leadgraph-enricher/internal/id/uuid"
	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

// DefaultName is the source tag applied when Config.Name is empty.
const DefaultName = "file"

// Config points the source at a listing file.
type Config struct {
	Path string `mapstructure:"path"`
	Name string `mapstructure:"name"`
}

// Source reads a listing export. The file holds either a JSON array of
// records or one record object per line.
type Source struct {
	path string
	name string
}

// New validates cfg and returns a Source.
func New(cfg Config) (*Source, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("discovery file path is required")
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = DefaultName
	}
	return &Source{path: cfg.Path, name: name}, nil
}

// Name returns the source tag.
func (s *Source) Name() string {
	return s.name
}

// Discover loads the listing, keeps records matching the query keyword and
// location, and tags each with the source name and a stable ID.
func (s *Source) Discover(ctx context.Context, query lead.Query) ([]lead.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discover %s: %w", s.name, err)
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}
	records, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", s.path, err)
	}

	out := make([]lead.Record, 0, len(records))
	for _, rec := range records {
		if !matches(rec, query) {
			continue
		}
		rec.Source = s.name
		if rec.ID == "" {
			rec.ID = uuid.RecordID(s.name, rec.Name, rec.Website)
		}
		rec.Signals = lead.Signals{}
		rec.Score = nil
		rec.Outreach = nil
		out = append(out, rec)
		if query.MaxPerSrc > 0 && len(out) == query.MaxPerSrc {
			break
		}
	}
	return out, nil
}

func decode(raw []byte) ([]lead.Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var records []lead.Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var records []lead.Record
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var rec lead.Record
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func matches(rec lead.Record, query lead.Query) bool {
	if kw := strings.ToLower(strings.TrimSpace(query.Keyword)); kw != "" {
		if !strings.Contains(strings.ToLower(rec.Name), kw) && !strings.Contains(strings.ToLower(rec.Category), kw) {
			return false
		}
	}
	if loc := strings.ToLower(strings.TrimSpace(query.Location)); loc != "" {
		if !strings.Contains(strings.ToLower(rec.Address), loc) {
			return false
		}
	}
	return true
}
