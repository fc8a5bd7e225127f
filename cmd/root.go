// Package cmd defines and implements the CLI commands for the enricher executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadgraph-enricher/internal/config"
	"github.com/JakeFAU/leadgraph-enricher/internal/logging"
)

// appKeyType is the key for storing the app in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newApp builds the shared services for a command. It is a variable so tests
// can inject their own.
var newApp = func(_ context.Context, cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "enricher",
		Short: "Discovers, enriches, scores, and drafts outreach for local business leads.",
		Long: `enricher runs one lead enrichment pass: it reads business listings, merges
duplicates, acquires each website through escalating tiers (direct HTTP,
headless browser, external crawler), scores the signals it finds, and drafts
outreach for the most promising records.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); LEADGRAPH_* env vars override it")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newProbeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app, error) {
	a, ok := ctx.Value(appKey).(*app)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
