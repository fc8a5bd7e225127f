// Package collyfetcher implements the direct fetch tier using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadgraph-enricher/internal/acquire"
)

// DefaultUserAgent mimics a current desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// browserHeaders accompany every direct request.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
	"Upgrade-Insecure-Requests": "1",
}

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       map[string]string
}

// Fetcher implements acquire.Fetcher using the Colly collector.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = acquire.DefaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
		logger:    logger,
	}
}

// Fetch performs exactly one GET for url. It never panics and never retries;
// every failure is reported through FetchResult.Err.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (result acquire.FetchResult) {
	defer func() {
		if r := recover(); r != nil {
			result = acquire.FetchResult{URL: url, Err: fmt.Errorf("colly fetch panicked: %v", r)}
		}
	}()
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return acquire.FetchResult{URL: url, Err: fmt.Errorf("colly fetch canceled: %w", context.DeadlineExceeded)}
	}

	var (
		fetched  acquire.FetchResult
		fetchErr error
	)
	collector := f.buildCollector(timeout, &fetched, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		f.logger.Debug("direct fetch failed", zap.String("url", url), zap.Error(err))
		failed := acquire.FetchResult{URL: url, Err: err}
		if ctx.Err() == nil {
			failed.StatusCode = fetched.StatusCode
		}
		return failed
	}
	fetched.Success = true
	fetched.Title = acquire.Title(fetched.Content)
	fetched.Text = acquire.PlainText(fetched.Content)
	return fetched
}

func (f *Fetcher) buildCollector(
	timeout time.Duration,
	result *acquire.FetchResult,
	fetchErr *error,
) *colly.Collector {
	collector := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.UserAgent(f.cfg.UserAgent),
	)
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.WithTransport(f.transport)
	collector.SetRequestTimeout(timeout)

	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	result *acquire.FetchResult,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.applyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = acquire.FetchResult{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Content:    string(r.Body),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
			if r.StatusCode != 0 {
				err = fmt.Errorf("status %d: %w", r.StatusCode, err)
			}
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) applyHeaders(r *colly.Request) {
	for key, value := range browserHeaders {
		r.Headers.Set(key, value)
	}
	for key, value := range f.cfg.Headers {
		r.Headers.Set(key, value)
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
