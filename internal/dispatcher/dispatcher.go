// Package dispatcher runs independent units of work in bounded, paced batches.
package dispatcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/leadgraph-enricher/internal/metrics"
)

// Defaults for batch scheduling.
const (
	DefaultBatchSize = 2
	DefaultPace      = 500 * time.Millisecond
)

// Config controls batch size and the pause between batches.
type Config struct {
	BatchSize int
	Pace      time.Duration
}

// Outcome records how one unit finished.
type Outcome struct {
	Index    int
	Err      error
	Duration time.Duration
}

// Report summarizes a Run. Outcomes are indexed like the input units.
type Report struct {
	Completed   int
	Failed      int
	MaxInFlight int
	Outcomes    []Outcome
}

// Dispatcher schedules units in consecutive batches. It is safe to reuse across
// runs but not to share between concurrent Run calls.
type Dispatcher struct {
	cfg    Config
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	completed   int
}

// New creates a Dispatcher.
func New(cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Pace < 0 {
		cfg.Pace = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Run executes work for every unit, at most BatchSize at a time. A failing or
// panicking unit is recorded in the report and never affects its siblings.
// Once ctx is done no new batch starts and unscheduled units fail with ctx's error.
func Run[U any](ctx context.Context, d *Dispatcher, units []U, work func(ctx context.Context, unit U) error) Report {
	d.reset()
	report := Report{Outcomes: make([]Outcome, len(units))}
	for i := range report.Outcomes {
		report.Outcomes[i].Index = i
	}

	for start := 0; start < len(units); start += d.cfg.BatchSize {
		if start > 0 {
			if err := d.sleep(ctx, d.cfg.Pace); err != nil {
				d.abandon(&report, start, err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			d.abandon(&report, start, err)
			break
		}
		end := min(start+d.cfg.BatchSize, len(units))
		runBatch(ctx, d, units[start:end], start, work, report.Outcomes)
	}

	for _, o := range report.Outcomes {
		if o.Err != nil {
			report.Failed++
		} else {
			report.Completed++
		}
	}
	d.mu.Lock()
	report.MaxInFlight = d.maxInFlight
	d.mu.Unlock()
	return report
}

func runBatch[U any](
	ctx context.Context,
	d *Dispatcher,
	batch []U,
	offset int,
	work func(ctx context.Context, unit U) error,
	outcomes []Outcome,
) {
	var g errgroup.Group
	g.SetLimit(d.cfg.BatchSize)
	for i, unit := range batch {
		idx := offset + i
		g.Go(func() error {
			d.enter()
			started := time.Now()
			err := safeCall(ctx, unit, work)
			outcomes[idx].Err = err
			outcomes[idx].Duration = time.Since(started)
			d.leave()
			if err != nil {
				metrics.ObserveUnit("failed")
				d.logger.Warn("unit failed", zap.Int("index", idx), zap.Error(err))
			} else {
				metrics.ObserveUnit("ok")
			}
			// Errors live in outcomes so the group never cancels siblings.
			return nil
		})
	}
	_ = g.Wait()
}

func safeCall[U any](ctx context.Context, unit U, work func(ctx context.Context, unit U) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return work(ctx, unit)
}

// abandon marks units from index start onward as failed with err.
func (d *Dispatcher) abandon(report *Report, start int, err error) {
	skipped := len(report.Outcomes) - start
	d.logger.Warn("batch scheduling stopped", zap.Int("unscheduled", skipped), zap.Error(err))
	for i := start; i < len(report.Outcomes); i++ {
		report.Outcomes[i].Err = fmt.Errorf("unit not scheduled: %w", err)
		metrics.ObserveUnit("unscheduled")
	}
}

func (d *Dispatcher) reset() {
	d.mu.Lock()
	d.inFlight, d.maxInFlight, d.completed = 0, 0, 0
	d.mu.Unlock()
}

func (d *Dispatcher) enter() {
	metrics.IncUnitsInFlight()
	d.mu.Lock()
	d.inFlight++
	if d.inFlight > d.maxInFlight {
		d.maxInFlight = d.inFlight
	}
	d.mu.Unlock()
}

func (d *Dispatcher) leave() {
	metrics.DecUnitsInFlight()
	d.mu.Lock()
	d.inFlight--
	d.completed++
	d.mu.Unlock()
}

// Progress returns the current in-flight and completed unit counts.
func (d *Dispatcher) Progress() (inFlight, completed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight, d.completed
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pacing interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
