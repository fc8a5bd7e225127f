// Package pipeline sequences one enrichment run: discovery, dedupe, filter,
// website enrichment in bounded batches, scoring, paced outreach generation,
// and output. Unit failures are contained and reported in the run summary;
// only setup errors and unexpected top-level failures end a run early.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgraph-enricher/internal/acquire"
	"github.com/JakeFAU/leadgraph-enricher/internal/clock/system"
	"github.com/JakeFAU/leadgraph-enricher/internal/dispatcher"
	"github.com/JakeFAU/leadgraph-enricher/internal/id/uuid"
	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
	"github.com/JakeFAU/leadgraph-enricher/internal/progress"
)

// Defaults for run output.
const (
	DefaultOutputPrefix = "runs"
	DefaultFlushTimeout = 30 * time.Second
)

// Acquirer retrieves website content for one target. It never fails; an
// unsuccessful Result means no signal.
type Acquirer interface {
	Acquire(ctx context.Context, rawURL string) acquire.Result
}

// Politeness gates requests to the same host.
type Politeness interface {
	Wait(ctx context.Context, rawURL string) error
}

// HostBlocker reports hosts whose pages are not worth acquiring.
type HostBlocker interface {
	IsBlocked(host string) bool
}

// Config tunes scheduling and output.
type Config struct {
	Enrichment        dispatcher.Config
	GenerationSpacing time.Duration
	// MinGenerateScore is the lowest score that receives outreach generation.
	MinGenerateScore int
	OutputPrefix     string
	NotifyTopic      string
	FlushTimeout     time.Duration
}

// Deps are the collaborators a run uses. Discoverers, Acquirer, and Scorer are
// required; the rest are optional.
type Deps struct {
	Discoverers []lead.Discoverer
	Deduper     lead.Deduper
	Filter      lead.Filter
	Acquirer    Acquirer
	Politeness  Politeness
	SkipHosts   HostBlocker
	Scorer      lead.Scorer
	Generator   lead.Generator
	Blobs       lead.BlobStore
	Summaries   lead.SummaryStore
	Publisher   lead.Publisher
	Progress    progress.Emitter
	Clock       lead.Clock
	IDs         lead.IDGenerator
	Logger      *zap.Logger
}

// Result is what a run produced.
type Result struct {
	Summary    lead.RunSummary
	Records    []lead.Record
	DatasetURI string
	SummaryURI string
}

// Pipeline runs enrichment passes. Each Run owns its own batch and pacing
// state, so a Pipeline may be reused for sequential runs.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New validates deps and fills defaults.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if len(deps.Discoverers) == 0 {
		return nil, errors.New("at least one discovery source is required")
	}
	if deps.Acquirer == nil {
		return nil, errors.New("acquirer is required")
	}
	if deps.Scorer == nil {
		return nil, errors.New("scorer is required")
	}
	seen := make(map[string]struct{}, len(deps.Discoverers))
	for _, d := range deps.Discoverers {
		name := strings.ToLower(d.Name())
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate discovery source %q", d.Name())
		}
		seen[name] = struct{}{}
	}
	if deps.Deduper == nil {
		deps.Deduper = passThrough{}
	}
	if deps.Filter == nil {
		deps.Filter = keepAll{}
	}
	if deps.Progress == nil {
		deps.Progress = progress.Discard{}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.OutputPrefix == "" {
		cfg.OutputPrefix = DefaultOutputPrefix
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}
	return &Pipeline{cfg: cfg, deps: deps}, nil
}

// runState is owned by one Run. Enrichment units never touch it directly; the
// orchestrator merges their outcomes after each phase.
type runState struct {
	summary lead.RunSummary
	records []lead.Record
	logger  *zap.Logger

	generationDisabled bool
}

func (st *runState) addError(err error) {
	st.summary.Errors = append(st.summary.Errors, err.Error())
}

// Run executes one pass for query. Once a run id is allocated the returned
// Result always carries a flushed summary; when err is non-nil it wraps
// lead.ErrFatalRun and the summary is partial.
func (p *Pipeline) Run(ctx context.Context, query lead.Query) (res Result, err error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("%w: generate run id: %w", lead.ErrFatalRun, err)
	}
	st := &runState{
		summary: lead.RunSummary{
			RunID:          runID,
			StartedAt:      p.deps.Clock.Now(),
			Errors:         []string{},
			SourceCoverage: make(map[string]int),
		},
		logger: p.deps.Logger.With(zap.String("run_id", runID)),
	}
	st.logger.Info("run started",
		zap.String("keyword", query.Keyword),
		zap.String("location", query.Location),
		zap.Strings("sources", query.Sources),
	)
	p.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart})

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: unexpected panic: %v", lead.ErrFatalRun, r)
		}
		res = p.finish(ctx, st, err)
	}()
	return Result{}, p.execute(ctx, st, query)
}

func (p *Pipeline) execute(ctx context.Context, st *runState, query lead.Query) error {
	sources, err := p.selectSources(query)
	if err != nil {
		return fmt.Errorf("%w: %w", lead.ErrFatalRun, err)
	}

	p.phase(st, "discover", func() {
		records := p.discover(ctx, st, query, sources)
		st.summary.Found = len(records)
		records = p.deps.Deduper.Dedupe(records)
		st.summary.Deduped = len(records)
		kept := records[:0:0]
		for _, rec := range records {
			if p.deps.Filter.Keep(rec) {
				kept = append(kept, rec)
			}
		}
		st.summary.Filtered = len(kept)
		st.records = kept
	})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", lead.ErrFatalRun, err)
	}

	p.phase(st, "enrich", func() { p.enrich(ctx, st) })
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", lead.ErrFatalRun, err)
	}

	p.phase(st, "score", func() { p.score(st) })
	p.phase(st, "generate", func() { p.generate(ctx, st) })
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", lead.ErrFatalRun, err)
	}
	return nil
}

// phase times fn and logs its completion.
func (p *Pipeline) phase(st *runState, name string, fn func()) {
	started := time.Now()
	fn()
	st.logger.Info("phase complete",
		zap.String("phase", name),
		zap.Int64("duration_ms", time.Since(started).Milliseconds()),
	)
}

func (p *Pipeline) selectSources(query lead.Query) ([]lead.Discoverer, error) {
	if query.MaxPerSrc < 0 {
		return nil, fmt.Errorf("invalid query: max_per_source must be >= 0, got %d", query.MaxPerSrc)
	}
	if len(query.Sources) == 0 {
		return p.deps.Discoverers, nil
	}
	byName := make(map[string]lead.Discoverer, len(p.deps.Discoverers))
	for _, d := range p.deps.Discoverers {
		byName[strings.ToLower(d.Name())] = d
	}
	selected := make([]lead.Discoverer, 0, len(query.Sources))
	picked := make(map[string]struct{}, len(query.Sources))
	for _, name := range query.Sources {
		key := strings.ToLower(strings.TrimSpace(name))
		d, ok := byName[key]
		if !ok {
			return nil, fmt.Errorf("invalid query: unknown discovery source %q", name)
		}
		if _, dup := picked[key]; dup {
			continue
		}
		picked[key] = struct{}{}
		selected = append(selected, d)
	}
	return selected, nil
}

func (p *Pipeline) discover(ctx context.Context, st *runState, query lead.Query, sources []lead.Discoverer) []lead.Record {
	var all []lead.Record
	for _, src := range sources {
		name := src.Name()
		records, err := safeDiscover(ctx, src, query)
		if err != nil {
			st.summary.SourceCoverage[name] = 0
			st.addError(fmt.Errorf("discover %s: %w", name, err))
			st.logger.Warn("discovery source failed", zap.String("source", name), zap.Error(err))
			continue
		}
		if query.MaxPerSrc > 0 && len(records) > query.MaxPerSrc {
			records = records[:query.MaxPerSrc]
		}
		for i := range records {
			if records[i].Source == "" {
				records[i].Source = name
			}
			if records[i].ID == "" {
				records[i].ID = uuid.RecordID(records[i].Source, records[i].Name, records[i].Website)
			}
		}
		st.summary.SourceCoverage[name] = len(records)
		all = append(all, records...)
	}
	return all
}

func safeDiscover(ctx context.Context, src lead.Discoverer, query lead.Query) (records []lead.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("discovery panicked: %v", r)
		}
	}()
	return src.Discover(ctx, query)
}

func (p *Pipeline) score(st *runState) {
	for i := range st.records {
		score, err := safeScore(p.deps.Scorer, st.records[i])
		if err != nil {
			st.addError(&lead.UnitError{RecordID: st.records[i].ID, Stage: "score", Err: err})
			st.logger.Warn("scoring failed", zap.String("record_id", st.records[i].ID), zap.Error(err))
			continue
		}
		st.records[i].Score = &score
		st.summary.Scored++
	}
}

func safeScore(scorer lead.Scorer, record lead.Record) (score lead.Score, err error) {
	defer func() {
		if r := recover(); r != nil {
			score, err = lead.Score{}, fmt.Errorf("scorer panicked: %v", r)
		}
	}()
	return scorer.Score(record), nil
}

func (p *Pipeline) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = p.deps.Clock.Now()
	}
	p.deps.Progress.Emit(evt)
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "failed"
	}
}

type passThrough struct{}

func (passThrough) Dedupe(records []lead.Record) []lead.Record { return records }

type keepAll struct{}

func (keepAll) Keep(lead.Record) bool { return true }
