package headless

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu      sync.Mutex
	pages   map[string]snapshot
	fail    map[string]error
	visited []string
	closed  atomic.Int32
}

func (s *fakeSession) Navigate(_ context.Context, url string) (snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited = append(s.visited, url)
	if err, ok := s.fail[url]; ok {
		return snapshot{}, err
	}
	snap, ok := s.pages[url]
	if !ok {
		return snapshot{}, errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	return snap, nil
}

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	return nil
}

func newFakeRenderer(t *testing.T, sess *fakeSession, launchErr error) *Renderer {
	t.Helper()
	r, err := newRenderer(Config{}, func(context.Context) (session, error) {
		if launchErr != nil {
			return nil, launchErr
		}
		return sess, nil
	}, nil)
	require.NoError(t, err)
	return r
}

const landing = `<html><head><title>Acme</title></head><body>
<a href="/services">Services</a>
<a href="/about-us">About</a>
<a href="https://acme.example/contact">Contact us</a>
<a href="https://other.example/contact">Elsewhere</a>
</body></html>`

func TestRender_FirstPageOnly(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{pages: map[string]snapshot{
		"https://acme.example/": {URL: "https://acme.example/", Title: "Acme", HTML: landing},
	}}
	r := newFakeRenderer(t, sess, nil)

	res := r.Render(context.Background(), "acme.example", 1, time.Second)

	require.True(t, res.Success)
	require.Len(t, res.Pages, 1)
	require.Equal(t, "Acme", res.Pages[0].Title)
	require.EqualValues(t, 1, sess.closed.Load())
}

func TestRender_FollowsRankedLinksAndSkipsFailures(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{
		pages: map[string]snapshot{
			"https://acme.example/":         {HTML: landing},
			"https://acme.example/about-us": {HTML: "<p>about</p>"},
		},
		fail: map[string]error{"https://acme.example/contact": context.DeadlineExceeded},
	}
	r := newFakeRenderer(t, sess, nil)

	res := r.Render(context.Background(), "https://acme.example", 3, time.Second)

	require.True(t, res.Success)
	require.Len(t, res.Pages, 2)
	require.Equal(t, "https://acme.example/", res.Pages[0].URL)
	require.Equal(t, "https://acme.example/about-us", res.Pages[1].URL)
	require.Equal(t, []string{
		"https://acme.example/",
		"https://acme.example/contact",
		"https://acme.example/about-us",
	}, sess.visited)
	require.EqualValues(t, 1, sess.closed.Load())
}

func TestRender_NavigationFailureReleasesSession(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{fail: map[string]error{"https://acme.example/": errors.New("net::ERR_TIMED_OUT")}}
	r := newFakeRenderer(t, sess, nil)

	res := r.Render(context.Background(), "acme.example", 2, time.Second)

	require.False(t, res.Success)
	require.Empty(t, res.Pages)
	require.EqualValues(t, 1, sess.closed.Load())
}

func TestRender_ErrorStatusIsNavigationFailure(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{pages: map[string]snapshot{
		"https://acme.example/": {HTML: "<h1>Forbidden</h1>", Status: http.StatusForbidden},
	}}
	r := newFakeRenderer(t, sess, nil)

	res := r.Render(context.Background(), "acme.example", 1, time.Second)

	require.False(t, res.Success)
	require.EqualValues(t, 1, sess.closed.Load())
}

func TestRender_LaunchFailure(t *testing.T) {
	t.Parallel()

	r := newFakeRenderer(t, nil, errors.New("chrome not found"))

	res := r.Render(context.Background(), "acme.example", 1, time.Second)

	require.False(t, res.Success)
	require.NotNil(t, res.Pages)
}

func TestRender_CanceledWhileWaitingForSlot(t *testing.T) {
	t.Parallel()

	r, err := newRenderer(Config{MaxParallel: 1}, func(context.Context) (session, error) {
		return &fakeSession{}, nil
	}, nil)
	require.NoError(t, err)
	r.limiter <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := r.Render(ctx, "acme.example", 1, time.Second)

	require.False(t, res.Success)
}

func TestNewRendererValidation(t *testing.T) {
	t.Parallel()

	_, err := newRenderer(Config{MaxParallel: -1}, nil, nil)
	require.Error(t, err)

	r, err := NewChromedp(Config{MaxParallel: 2}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, cap(r.limiter))
	require.Equal(t, DefaultUserAgent, r.cfg.UserAgent)
	require.Equal(t, DefaultWindowWidth, r.cfg.WindowWidth)
	require.NotNil(t, r.launch)
}

func TestAllocatorOptionsIncludeStealthFlags(t *testing.T) {
	t.Parallel()

	r, err := NewChromedp(Config{ExecPath: "/usr/bin/chromium"}, nil)
	require.NoError(t, err)
	dir, err := os.MkdirTemp("", "profile-")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	opts := r.allocatorOptions(dir)
	require.Greater(t, len(opts), 12)
}

func TestResponseMetaStatus(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	require.Equal(t, http.StatusOK, meta.status())

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404},
	})
	require.Equal(t, http.StatusOK, meta.status())

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 403, URL: "https://acme.example/"},
	})
	require.Equal(t, http.StatusForbidden, meta.status())

	meta.reset()
	require.Equal(t, http.StatusOK, meta.status())
}

func TestHideWebdriverScript(t *testing.T) {
	t.Parallel()

	require.True(t, strings.Contains(hideWebdriver, "navigator, 'webdriver'"))
}
