package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadgraph-enricher/internal/api"
	"github.com/JakeFAU/leadgraph-enricher/internal/dedupe"
	"github.com/JakeFAU/leadgraph-enricher/internal/dispatcher"
	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
	"github.com/JakeFAU/leadgraph-enricher/internal/metrics"
	"github.com/JakeFAU/leadgraph-enricher/internal/pipeline"
	"github.com/JakeFAU/leadgraph-enricher/internal/policy/blocklist"
	"github.com/JakeFAU/leadgraph-enricher/internal/policy/ratelimit"
	"github.com/JakeFAU/leadgraph-enricher/internal/progress"
	"github.com/JakeFAU/leadgraph-enricher/internal/progress/sinks"
	"github.com/JakeFAU/leadgraph-enricher/internal/scoring"
)

const hubCloseTimeout = 10 * time.Second

type runOptions struct {
	inputs   []string
	query    lead.Query
	register prometheus.Registerer
}

func newRunCmd() *cobra.Command {
	opts := runOptions{register: prometheus.DefaultRegisterer}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one enrichment pass and writes the dataset and summary",
		Long: `Reads listings from the configured discovery files (and any --input files),
enriches each website, scores the records, drafts outreach, and writes
records.jsonl and summary.json under the configured output location. The
run summary is printed to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.inputs, "input", nil, "listing file (JSON array or JSON lines); repeatable")
	cmd.Flags().StringVar(&opts.query.Keyword, "query", "", "keyword matched against business name and category")
	cmd.Flags().StringVar(&opts.query.Location, "location", "", "location matched against business address")
	cmd.Flags().StringSliceVar(&opts.query.Sources, "source", nil, "restrict discovery to these source names")
	cmd.Flags().IntVar(&opts.query.MaxPerSrc, "max-per-source", 0, "cap on records per source (0 means no cap)")
	return cmd
}

func runPipeline(cmd *cobra.Command, opts runOptions) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	p, hub, err := a.buildPipeline(ctx, opts)
	if err != nil {
		return err
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	if addr := a.cfg.Metrics.Addr; addr != "" {
		server := api.NewServer(a.checks, a.logger.Named("api"))
		go func() {
			if err := server.ListenAndServe(serveCtx, addr); err != nil {
				a.logger.Warn("ops server stopped", zap.Error(err))
			}
		}()
	}

	res, runErr := p.Run(ctx, opts.query)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hubCloseTimeout)
	defer cancel()
	if err := hub.Close(closeCtx); err != nil {
		a.logger.Warn("progress hub close", zap.Error(err))
	}
	stats := hub.Stats()
	a.logger.Debug("progress hub drained",
		zap.Int64("delivered", stats.Delivered),
		zap.Int64("dropped", stats.Dropped),
	)

	if res.Summary.RunID != "" {
		if err := writeSummary(cmd, res); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("run %s: %w", res.Summary.RunID, runErr)
	}
	return nil
}

// buildPipeline assembles the pipeline and its progress hub. The hub must be
// closed after the run so archived events are written.
func (a *app) buildPipeline(ctx context.Context, opts runOptions) (*pipeline.Pipeline, *progress.Hub, error) {
	discoverers, err := a.buildDiscoverers(opts.inputs)
	if err != nil {
		return nil, nil, err
	}
	engine, err := a.buildEngine()
	if err != nil {
		return nil, nil, err
	}
	blobs, err := a.buildBlobStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	summaries, err := a.buildSummaryStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, nil, err
	}
	generator, err := a.buildGenerator(ctx)
	if err != nil {
		return nil, nil, err
	}

	promSink, err := sinks.NewPrometheusSink(opts.register)
	if err != nil {
		return nil, nil, err
	}
	hub := progress.NewHub(progress.Config{Logger: a.logger.Named("progress")},
		sinks.NewLogSink(a.logger.Named("progress")),
		promSink,
		sinks.NewArchiveSink(blobs, a.cfg.Output.Prefix, a.logger.Named("archive")),
	)

	politeness := ratelimit.NewHostLimiter(ratelimit.HostConfig{
		RPS:   a.cfg.Acquire.HostRPS,
		Burst: a.cfg.Acquire.HostBurst,
	})
	scorer := scoring.NewScorer(scoring.Config{
		HotThreshold:  a.cfg.Scoring.HotThreshold,
		WarmThreshold: a.cfg.Scoring.WarmThreshold,
	})
	deps := pipeline.Deps{
		Discoverers: discoverers,
		Deduper:     dedupe.New(),
		Filter:      scoring.Reachable{},
		Acquirer:    engine,
		Politeness:  politeness,
		SkipHosts:   blocklist.New(a.cfg.Acquire.SkipDomains),
		Scorer:      scorer,
		Generator:   generator,
		Blobs:       blobs,
		Summaries:   summaries,
		Publisher:   publisher,
		Progress:    hub,
		Logger:      a.logger.Named("pipeline"),
	}

	p, err := pipeline.New(pipeline.Config{
		Enrichment: dispatcher.Config{
			BatchSize: a.cfg.Enrichment.BatchSize,
			Pace:      a.cfg.Enrichment.Pace,
		},
		GenerationSpacing: a.cfg.Generation.Spacing,
		MinGenerateScore:  a.cfg.Generation.MinScore,
		OutputPrefix:      a.cfg.Output.Prefix,
		NotifyTopic:       a.cfg.Notify.Topic,
	}, deps)
	if err != nil {
		_ = hub.Close(ctx)
		return nil, nil, fmt.Errorf("init pipeline: %w", err)
	}
	return p, hub, nil
}

type runReport struct {
	Summary    lead.RunSummary `json:"summary"`
	DatasetURI string          `json:"dataset_uri,omitempty"`
	SummaryURI string          `json:"summary_uri,omitempty"`
}

func writeSummary(cmd *cobra.Command, res pipeline.Result) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(runReport{
		Summary:    res.Summary,
		DatasetURI: res.DatasetURI,
		SummaryURI: res.SummaryURI,
	}); err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	return nil
}
