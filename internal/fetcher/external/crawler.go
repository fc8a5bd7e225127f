// Package external runs an out-of-process acquisition provider: one process per
// request, a JSON document on stdin, and a JSON line on stdout.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgraph-enricher/internal/acquire"
	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

// Defaults for the provider process.
const (
	DefaultGrace        = 10 * time.Second
	DefaultProbeTimeout = 30 * time.Second
	DefaultProbeToken   = "ok"
	waitDelay           = 2 * time.Second
	stderrTail          = 512
)

// Config describes how to run the provider.
type Config struct {
	Command      string
	Args         []string
	ProbeArgs    []string
	ProbeToken   string
	ProbeTimeout time.Duration
	Grace        time.Duration
	Env          []string
}

// Crawler implements acquire.ExternalCrawler.
type Crawler struct {
	cfg    Config
	logger *zap.Logger

	probeOnce sync.Once
	available bool

	// onStart observes spawned process IDs.
	onStart func(pid int)
}

// New validates cfg and returns a Crawler.
func New(cfg Config, logger *zap.Logger) (*Crawler, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("external crawler command is required")
	}
	if cfg.ProbeToken == "" {
		cfg.ProbeToken = DefaultProbeToken
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{cfg: cfg, logger: logger}, nil
}

// Available probes the provider once per Crawler. A failed probe disables the
// tier for the rest of the run. The probe ignores cancellation of the calling
// unit and is bounded by ProbeTimeout alone.
func (c *Crawler) Available(ctx context.Context) bool {
	c.probeOnce.Do(func() {
		c.available = c.probe(ctx)
	})
	return c.available
}

func (c *Crawler) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ProbeTimeout)
	defer cancel()

	cmd := c.command(probeCtx, c.cfg.ProbeArgs)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		c.logger.Warn("external crawler unavailable", zap.String("command", c.cfg.Command), zap.Error(err))
		return false
	}
	if !strings.Contains(stdout.String(), c.cfg.ProbeToken) {
		c.logger.Warn("external crawler probe token missing",
			zap.String("command", c.cfg.Command),
			zap.String("token", c.cfg.ProbeToken),
		)
		return false
	}
	c.logger.Info("external crawler available", zap.String("command", c.cfg.Command))
	return true
}

// Crawl spawns one provider process for url. The process group is killed once
// timeout plus the grace period elapses.
func (c *Crawler) Crawl(ctx context.Context, url string, timeout time.Duration) acquire.FetchResult {
	if timeout <= 0 {
		timeout = acquire.DefaultCrawlTimeout
	}
	payload, err := encodeRequest(url, timeout)
	if err != nil {
		return acquire.FetchResult{URL: url, Err: err}
	}

	limit := timeout + c.cfg.Grace
	runCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := c.command(runCtx, c.cfg.Args)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return acquire.FetchResult{URL: url, Err: fmt.Errorf("start external crawler: %w", err)}
	}
	if c.onStart != nil {
		c.onStart(cmd.Process.Pid)
	}
	waitErr := cmd.Wait()
	logger := c.logger.With(zap.String("url", url), zap.Duration("elapsed", time.Since(start)))

	if ctx.Err() != nil {
		return acquire.FetchResult{URL: url, Err: fmt.Errorf("external crawl canceled: %w", ctx.Err())}
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		logger.Warn("external crawler killed after deadline", zap.Duration("limit", limit))
		return acquire.FetchResult{
			URL: url,
			Err: fmt.Errorf("%w: external crawler timed out after %s", lead.ErrTransient, limit),
		}
	}

	resp, err := decodeResponse(stdout.Bytes())
	if err != nil {
		if waitErr != nil {
			err = fmt.Errorf("%w (exit: %v; stderr: %s)", err, waitErr, tail(stderr.String()))
		}
		logger.Warn("external crawler protocol failure", zap.Error(err))
		return acquire.FetchResult{URL: url, Err: err}
	}
	if err := resp.err(); err != nil {
		return acquire.FetchResult{URL: url, Err: err}
	}
	content := resp.HTML
	if content == "" {
		content = resp.text()
	}
	finalURL := resp.URL
	if finalURL == "" {
		finalURL = url
	}
	return acquire.FetchResult{
		Success: true,
		URL:     finalURL,
		Title:   resp.Title,
		Content: content,
		Text:    resp.text(),
	}
}

func (c *Crawler) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.cfg.Command, args...)
	cmd.Env = append(os.Environ(), c.cfg.Env...)
	cmd.WaitDelay = waitDelay
	isolate(cmd)
	return cmd
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		return s[len(s)-stderrTail:]
	}
	return s
}
