package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/leadgraph-enricher/internal/progress"
)

// PrometheusSink exports run progress via Prometheus: runs started, completed,
// and running, plus unit and generation outcomes.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	units        *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
	unitPages    prometheus.Counter
	generations  *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadgraph_progress_runs_started_total",
			Help: "Total pipeline runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgraph_progress_runs_completed_total",
			Help: "Total pipeline runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leadgraph_progress_runs_running",
			Help: "Current number of running pipeline runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadgraph_progress_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"result"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgraph_progress_units_total",
			Help: "Enrichment units partitioned by result and tier.",
		}, []string{"result", "tier"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadgraph_progress_unit_duration_seconds",
			Help:    "Enrichment unit duration partitioned by tier.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"tier"}),
		unitPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadgraph_progress_pages_total",
			Help: "Pages acquired across all units.",
		}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgraph_progress_generations_total",
			Help: "Generation calls partitioned by result.",
		}, []string{"result"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.units,
		s.unitDuration,
		s.unitPages,
		s.generations,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.finishRun(evt, "success")
	case progress.StageRunError:
		s.finishRun(evt, "error")
	case progress.StageUnitDone:
		s.units.WithLabelValues("success", evt.Tier).Inc()
		s.unitPages.Add(float64(evt.Pages))
		if evt.Dur > 0 {
			s.unitDuration.WithLabelValues(evt.Tier).Observe(evt.Dur.Seconds())
		}
	case progress.StageUnitEmpty:
		s.units.WithLabelValues("empty", "none").Inc()
	case progress.StageUnitError:
		tier := evt.Tier
		if tier == "" {
			tier = "none"
		}
		s.units.WithLabelValues("error", tier).Inc()
	case progress.StageGenerateDone:
		s.generations.WithLabelValues("success").Inc()
	case progress.StageGenerateError:
		s.generations.WithLabelValues("error").Inc()
	}
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
