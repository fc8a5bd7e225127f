package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadgraph-enricher/internal/acquire"
	"github.com/JakeFAU/leadgraph-enricher/internal/metrics"
)

// probeReport is the operator view of one acquisition. Page HTML is omitted
// unless --html is set.
type probeReport struct {
	URL      string           `json:"url"`
	Success  bool             `json:"success"`
	Tier     acquire.Tier     `json:"tier,omitempty"`
	Plan     []acquire.Tier   `json:"plan"`
	Metadata acquire.Metadata `json:"metadata"`
	Pages    []probePage      `json:"pages"`
	TextLen  int              `json:"text_len"`
}

type probePage struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Bytes int    `json:"bytes"`
	HTML  string `json:"html,omitempty"`
}

func newProbeCmd() *cobra.Command {
	var withHTML bool
	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Acquires one website through the tier escalation and prints the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			metrics.Init()
			engine, err := a.buildEngine()
			if err != nil {
				return err
			}
			res := engine.Acquire(ctx, args[0])

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(newProbeReport(res, engine.Plan(), withHTML)); err != nil {
				return fmt.Errorf("write probe result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withHTML, "html", false, "include page HTML in the output")
	return cmd
}

func newProbeReport(res acquire.Result, plan []acquire.Tier, withHTML bool) probeReport {
	report := probeReport{
		URL:      res.Target.URL,
		Success:  res.Success,
		Tier:     res.Tier,
		Plan:     plan,
		Metadata: res.Metadata,
		Pages:    make([]probePage, 0, len(res.Pages)),
		TextLen:  len(res.Text),
	}
	for _, page := range res.Pages {
		p := probePage{URL: page.URL, Title: page.Title, Bytes: len(page.HTML)}
		if withHTML {
			p.HTML = page.HTML
		}
		report.Pages = append(report.Pages, p)
	}
	return report
}
