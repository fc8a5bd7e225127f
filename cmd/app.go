package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadgraph-enricher/internal/acquire"
	"github.com/JakeFAU/leadgraph-enricher/internal/api"
	"github.com/JakeFAU/leadgraph-enricher/internal/config"
	"github.com/JakeFAU/leadgraph-enricher/internal/discovery/file"
	collyfetcher "github.com/JakeFAU/leadgraph-enricher/internal/fetcher/colly"
	"github.com/JakeFAU/leadgraph-enricher/internal/fetcher/external"
	"github.com/JakeFAU/leadgraph-enricher/internal/fetcher/headless"
	"github.com/JakeFAU/leadgraph-enricher/internal/generation"
	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
	pubsubpublisher "github.com/JakeFAU/leadgraph-enricher/internal/publisher/pubsub"
	"github.com/JakeFAU/leadgraph-enricher/internal/storage/gcs"
	"github.com/JakeFAU/leadgraph-enricher/internal/storage/local"
	"github.com/JakeFAU/leadgraph-enricher/internal/storage/memory"
	"github.com/JakeFAU/leadgraph-enricher/internal/storage/postgres"
)

// app holds loaded configuration, the logger, and the resources commands open.
// Close releases resources in reverse order of acquisition.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	closers []func()
	checks  map[string]api.ReadyCheck
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) addCheck(name string, check api.ReadyCheck) {
	if a.checks == nil {
		a.checks = make(map[string]api.ReadyCheck)
	}
	a.checks[name] = check
}

// Close releases every opened resource and flushes the logger.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}

// buildEngine wires the direct, browser, and external tiers into an engine.
// Tiers absent from the escalation list are left nil and skipped.
func (a *app) buildEngine() (*acquire.Engine, error) {
	acq := a.cfg.Acquire
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     acq.UserAgent,
		RespectRobots: acq.RespectRobots,
		Timeout:       acq.FetchTimeout,
	}, a.logger.Named("direct"))

	var renderer acquire.Renderer
	if a.cfg.EscalationIncludes(string(acquire.TierBrowser)) {
		r, err := headless.NewChromedp(headless.Config{
			MaxParallel:  a.cfg.Headless.MaxParallel,
			UserAgent:    a.cfg.Headless.UserAgent,
			WindowWidth:  a.cfg.Headless.WindowWidth,
			WindowHeight: a.cfg.Headless.WindowHeight,
			SettleDelay:  a.cfg.Headless.SettleDelay,
			ExecPath:     a.cfg.Headless.ExecPath,
		}, a.logger.Named("browser"))
		if err != nil {
			return nil, fmt.Errorf("init renderer: %w", err)
		}
		renderer = r
	}

	var crawler acquire.ExternalCrawler
	if a.cfg.EscalationIncludes(string(acquire.TierExternal)) {
		c, err := external.New(external.Config{
			Command:      a.cfg.External.Command,
			Args:         a.cfg.External.Args,
			ProbeArgs:    a.cfg.External.ProbeArgs,
			ProbeToken:   a.cfg.External.ProbeToken,
			ProbeTimeout: a.cfg.External.ProbeTimeout,
			Grace:        a.cfg.External.Grace,
		}, a.logger.Named("external"))
		if err != nil {
			return nil, fmt.Errorf("init external crawler: %w", err)
		}
		crawler = c
	}

	escalation := make([]acquire.Tier, 0, len(acq.Escalation))
	for _, tier := range acq.Escalation {
		escalation = append(escalation, acquire.Tier(tier))
	}
	heuristic := acquire.NewHeuristic(acquire.HeuristicConfig{
		MinBytes:     acq.MinBytes,
		SuspectBytes: acq.SuspectBytes,
		Markers:      withDefaultMarkers(acq.ExtraMarkers),
	})
	engine, err := acquire.NewEngine(acquire.Config{
		Escalation:    escalation,
		FetchTimeout:  acq.FetchTimeout,
		RenderTimeout: acq.RenderTimeout,
		CrawlTimeout:  acq.CrawlTimeout,
		MaxPages:      acq.MaxPages,
	}, heuristic, fetcher, renderer, crawler, a.logger.Named("acquire"))
	if err != nil {
		return nil, fmt.Errorf("init acquisition engine: %w", err)
	}
	return engine, nil
}

func withDefaultMarkers(extra []string) []string {
	if len(extra) == 0 {
		return nil
	}
	markers := make([]string, 0, len(acquire.DefaultBlockMarkers)+len(extra))
	markers = append(markers, acquire.DefaultBlockMarkers...)
	return append(markers, extra...)
}

// buildDiscoverers returns the configured listing files plus any passed on the
// command line. Command-line inputs are named after their file stem.
func (a *app) buildDiscoverers(inputs []string) ([]lead.Discoverer, error) {
	sources := make([]file.Config, 0, len(a.cfg.Discovery.Files)+len(inputs))
	for _, f := range a.cfg.Discovery.Files {
		sources = append(sources, file.Config{Name: f.Name, Path: f.Path})
	}
	for _, in := range inputs {
		stem := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		sources = append(sources, file.Config{Name: stem, Path: in})
	}
	if len(sources) == 0 {
		return nil, errors.New("no discovery sources: set discovery.files or pass --input")
	}
	out := make([]lead.Discoverer, 0, len(sources))
	for _, cfg := range sources {
		src, err := file.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("init discovery source %q: %w", cfg.Name, err)
		}
		out = append(out, src)
	}
	return out, nil
}

// buildBlobStore selects GCS when a bucket is configured, a local directory
// when one is set, and an in-memory store otherwise.
func (a *app) buildBlobStore(ctx context.Context) (lead.BlobStore, error) {
	out := a.cfg.Output
	switch {
	case out.GCSBucket != "":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		a.onClose(func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close gcs client", zap.Error(err))
			}
		})
		store, err := gcs.New(client, gcs.Config{Bucket: out.GCSBucket, Prefix: out.GCSPrefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		a.addCheck("gcs", func(ctx context.Context) error {
			if _, err := client.Bucket(out.GCSBucket).Attrs(ctx); err != nil {
				return fmt.Errorf("read bucket attrs: %w", err)
			}
			return nil
		})
		return store, nil
	case out.LocalDir != "":
		store, err := local.New(local.Config{BaseDir: out.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return store, nil
	default:
		a.logger.Warn("no output location configured; run artifacts are kept in memory only")
		return memory.NewBlobStore(), nil
	}
}

// buildSummaryStore returns nil when no Postgres DSN is configured.
func (a *app) buildSummaryStore(ctx context.Context) (lead.SummaryStore, error) {
	if a.cfg.Output.PostgresDSN == "" {
		return nil, nil
	}
	store, err := postgres.NewSummaryStore(ctx, postgres.Config{
		DSN:   a.cfg.Output.PostgresDSN,
		Table: a.cfg.Output.PostgresTable,
	})
	if err != nil {
		return nil, fmt.Errorf("init summary store: %w", err)
	}
	a.onClose(store.Close)
	a.addCheck("postgres", store.Ping)
	return store, nil
}

// buildPublisher returns nil when no notification topic is configured.
func (a *app) buildPublisher(ctx context.Context) (lead.Publisher, error) {
	if a.cfg.Notify.Topic == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client)
	a.onClose(func() {
		pub.Close()
		if err := client.Close(); err != nil {
			a.logger.Warn("close pubsub client", zap.Error(err))
		}
	})
	return pub, nil
}

// buildGenerator returns nil, without error, when the generation service is
// not configured; the pipeline then reports the stage as disabled once.
func (a *app) buildGenerator(ctx context.Context) (lead.Generator, error) {
	gen := a.cfg.Generation
	g, err := generation.New(ctx, generation.Config{
		APIKey:      gen.APIKey,
		Model:       gen.Model,
		BaseURL:     gen.BaseURL,
		Timeout:     gen.Timeout,
		Temperature: gen.Temperature,
	})
	switch {
	case errors.Is(err, lead.ErrConfigurationMissing):
		a.logger.Warn("generation service not configured", zap.Error(err))
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("init generator: %w", err)
	}
	return g, nil
}
