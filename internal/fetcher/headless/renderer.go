// Package headless implements the browser rendering tier on top of chromedp.
package headless

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadgraph-enricher/internal/acquire"
)

// Defaults for the rendering tier.
const (
	DefaultUserAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultWindowWidth  = 1366
	DefaultWindowHeight = 768
	DefaultSettleDelay  = 2 * time.Second
)

// Config controls the behavior of the rendering tier.
type Config struct {
	MaxParallel  int
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	SettleDelay  time.Duration
	ExecPath     string
}

// snapshot is one rendered page.
type snapshot struct {
	URL    string
	Title  string
	HTML   string
	Status int
}

// session is a disposable browser instance. Close must release the browser
// process and any on-disk profile.
type session interface {
	Navigate(ctx context.Context, url string) (snapshot, error)
	Close() error
}

type launcher func(ctx context.Context) (session, error)

// Renderer implements acquire.Renderer. Every Render call gets its own browser
// session.
type Renderer struct {
	cfg     Config
	limiter chan struct{}
	launch  launcher
	logger  *zap.Logger
}

// NewChromedp creates a renderer backed by chromedp and a local Chrome binary.
func NewChromedp(cfg Config, logger *zap.Logger) (*Renderer, error) {
	r, err := newRenderer(cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	r.launch = r.launchChrome
	return r, nil
}

func newRenderer(cfg Config, launch launcher, logger *zap.Logger) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.WindowWidth <= 0 || cfg.WindowHeight <= 0 {
		cfg.WindowWidth, cfg.WindowHeight = DefaultWindowWidth, DefaultWindowHeight
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Renderer{
		cfg:     cfg,
		limiter: limiter,
		launch:  launch,
		logger:  logger,
	}, nil
}

// Render opens a fresh session, renders url, and follows up to maxPages-1
// same-host links. Navigation failure of the first page yields an empty result.
func (r *Renderer) Render(ctx context.Context, url string, maxPages int, timeout time.Duration) (res acquire.Result) {
	target, err := acquire.NewTarget(url)
	if err != nil {
		return acquire.EmptyResult(acquire.Target{URL: url})
	}
	logger := r.logger.With(zap.String("url", target.URL))
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("render panicked", zap.Any("panic", rec))
			res = acquire.EmptyResult(target)
		}
	}()
	if timeout <= 0 {
		timeout = acquire.DefaultRenderTimeout
	}
	if maxPages <= 0 {
		maxPages = 1
	}

	if err := r.acquireSlot(ctx); err != nil {
		logger.Warn("render slot unavailable", zap.Error(err))
		return acquire.EmptyResult(target)
	}
	defer r.releaseSlot()

	launchCtx, cancelLaunch := context.WithTimeout(ctx, timeout)
	sess, err := r.launch(launchCtx)
	cancelLaunch()
	if err != nil {
		logger.Warn("browser launch failed", zap.Error(err))
		return acquire.EmptyResult(target)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("browser close failed", zap.Error(err))
		}
	}()

	first, err := r.navigate(ctx, sess, target.URL, timeout)
	if err != nil {
		logger.Warn("browser navigation failed", zap.Error(err))
		return acquire.EmptyResult(target)
	}
	pages := []acquire.Page{first}

	if maxPages > 1 {
		for _, link := range rankLinks(first.HTML, first.URL, target.Host, maxPages-1) {
			if ctx.Err() != nil {
				break
			}
			page, err := r.navigate(ctx, sess, link, timeout)
			if err != nil {
				logger.Debug("follow-up navigation skipped", zap.String("link", link), zap.Error(err))
				continue
			}
			pages = append(pages, page)
		}
	}

	return acquire.Result{
		Target:  target,
		Pages:   pages,
		Success: true,
		Tier:    acquire.TierBrowser,
	}
}

func (r *Renderer) navigate(ctx context.Context, sess session, url string, timeout time.Duration) (acquire.Page, error) {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	snap, err := sess.Navigate(navCtx, url)
	if err != nil {
		return acquire.Page{}, err
	}
	if snap.Status >= 400 {
		return acquire.Page{}, fmt.Errorf("document status %d", snap.Status)
	}
	if snap.URL == "" {
		snap.URL = url
	}
	return acquire.Page{URL: snap.URL, Title: snap.Title, HTML: snap.HTML}, nil
}

func (r *Renderer) acquireSlot(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) releaseSlot() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}
