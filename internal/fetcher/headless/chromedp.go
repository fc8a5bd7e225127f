package headless

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// hideWebdriver runs before any page script.
const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// allocatorOptions builds the launch flags for one isolated browser.
func (r *Renderer) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(r.cfg.UserAgent),
		chromedp.WindowSize(r.cfg.WindowWidth, r.cfg.WindowHeight),
		chromedp.UserDataDir(profileDir),
	)
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}
	return opts
}

type chromeSession struct {
	renderer    *Renderer
	ctx         context.Context
	taskCancel  context.CancelFunc
	allocCancel context.CancelFunc
	profileDir  string
	meta        *responseMeta
	closeOnce   sync.Once
	closeErr    error
}

func (r *Renderer) launchChrome(ctx context.Context) (session, error) {
	profileDir, err := os.MkdirTemp("", "leadgraph-chrome-")
	if err != nil {
		return nil, fmt.Errorf("create browser profile: %w", err)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), r.allocatorOptions(profileDir)...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		renderer:    r,
		ctx:         taskCtx,
		taskCancel:  taskCancel,
		allocCancel: allocCancel,
		profileDir:  profileDir,
		meta:        newResponseMeta(),
	}
	chromedp.ListenTarget(taskCtx, s.meta.captureEvent)

	// The browser must start on a context without a deadline, otherwise the
	// deadline would later tear the whole browser down.
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(taskCtx, s.setupAction())
	}()
	select {
	case err := <-started:
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("start browser: %w", err)
		}
		return s, nil
	case <-ctx.Done():
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", ctx.Err())
	}
}

func (s *chromeSession) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(s.renderer.cfg.UserAgent).
			WithAcceptLanguage("en-US,en;q=0.9").Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx); err != nil {
			return fmt.Errorf("install webdriver override: %w", err)
		}
		return nil
	})
}

// Navigate loads url in the session tab and captures the settled DOM.
func (s *chromeSession) Navigate(ctx context.Context, url string) (snapshot, error) {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	s.meta.reset()
	var snap snapshot
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.renderer.cfg.SettleDelay),
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.OuterHTML("html", &snap.HTML, chromedp.ByQuery),
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return snapshot{}, fmt.Errorf("chromedp run: %w", ctxErr)
		}
		return snapshot{}, fmt.Errorf("chromedp run: %w", err)
	}
	snap.Status = s.meta.status()
	return snap, nil
}

// Close shuts down the tab and browser process and removes the profile directory.
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.taskCancel()
		s.allocCancel()
		if err := os.RemoveAll(s.profileDir); err != nil {
			s.closeErr = fmt.Errorf("remove browser profile: %w", err)
		}
	})
	return s.closeErr
}

type responseMeta struct {
	mu   sync.RWMutex
	code int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.code = int(event.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.code = 0
	m.mu.Unlock()
}

// status returns the last document status, defaulting to 200 when no
// response event was observed.
func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.code == 0 {
		return http.StatusOK
	}
	return m.code
}
