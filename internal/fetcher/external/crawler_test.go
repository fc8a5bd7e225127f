package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

// TestHelperProcess is the fake provider. It only runs when re-executed by
// helperConfig.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	mode := os.Args[len(os.Args)-1]
	os.Exit(runHelper(mode))
}

func runHelper(mode string) int {
	switch mode {
	case "probe-ok":
		fmt.Println("crawler ok")
		return 0
	case "probe-bad":
		fmt.Println("crawler missing")
		return 0
	case "probe-exit":
		return 3
	case "sleep":
		time.Sleep(time.Hour)
		return 0
	}

	raw, _ := io.ReadAll(os.Stdin)
	var req request
	_ = json.Unmarshal(raw, &req)

	switch mode {
	case "ok":
		if req.URL == "" {
			fmt.Println(`{"success":false,"error":"No URL provided"}`)
			return 1
		}
		fmt.Println("[diag] launching browser")
		fmt.Println(`{"success":true}`)
		out, _ := json.Marshal(response{
			Success:  true,
			URL:      req.URL + "final",
			Title:    "Acme",
			HTML:     fmt.Sprintf("<html><body>timeout=%d</body></html>", req.Timeout),
			Markdown: "# Acme",
		})
		fmt.Println(string(out))
		fmt.Println()
		return 0
	case "reported-failure":
		fmt.Println(`{"success":false,"error":"Page.goto: net::ERR_CONNECTION_REFUSED"}`)
		return 1
	case "garbage":
		fmt.Fprintln(os.Stderr, "Traceback: boom")
		fmt.Println("not json at all")
		return 2
	case "silent":
		return 0
	case "hang":
		child := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--", "sleep")
		child.Env = os.Environ()
		if err := child.Start(); err == nil {
			if path := os.Getenv("HELPER_PID_FILE"); path != "" {
				_ = os.WriteFile(path, []byte(strconv.Itoa(child.Process.Pid)), 0o600)
			}
		}
		time.Sleep(time.Hour)
		return 0
	}
	return 9
}

func helperConfig(mode string, probeMode string, env ...string) Config {
	return Config{
		Command:    os.Args[0],
		Args:       []string{"-test.run=TestHelperProcess", "--", mode},
		ProbeArgs:  []string{"-test.run=TestHelperProcess", "--", probeMode},
		ProbeToken: "ok",
		Grace:      200 * time.Millisecond,
		Env:        append([]string{"GO_WANT_HELPER_PROCESS=1"}, env...),
	}
}

func newHelperCrawler(t *testing.T, cfg Config) *Crawler {
	t.Helper()
	c, err := New(cfg, nil)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresCommand(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Command: "  "}, nil)
	require.ErrorContains(t, err, "command is required")

	c, err := New(Config{Command: "python3"}, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultGrace, c.cfg.Grace)
	require.Equal(t, DefaultProbeToken, c.cfg.ProbeToken)
}

func TestAvailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		probe string
		want  bool
	}{
		{name: "token present", probe: "probe-ok", want: true},
		{name: "token missing", probe: "probe-bad", want: false},
		{name: "non-zero exit", probe: "probe-exit", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newHelperCrawler(t, helperConfig("ok", tt.probe))
			require.Equal(t, tt.want, c.Available(context.Background()))
			// The verdict is cached for the life of the crawler.
			c.cfg.Command = "/nonexistent/binary"
			require.Equal(t, tt.want, c.Available(context.Background()))
		})
	}
}

func TestAvailable_SurvivesCanceledCaller(t *testing.T) {
	t.Parallel()

	c := newHelperCrawler(t, helperConfig("ok", "probe-ok"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.True(t, c.Available(ctx))
	require.True(t, c.Available(context.Background()))
}

func TestAvailable_MissingBinary(t *testing.T) {
	t.Parallel()

	c := newHelperCrawler(t, Config{Command: "/nonexistent/leadgraph-crawler"})
	require.False(t, c.Available(context.Background()))
}

func TestCrawl_UsesLastLine(t *testing.T) {
	t.Parallel()

	c := newHelperCrawler(t, helperConfig("ok", "probe-ok"))
	res := c.Crawl(context.Background(), "https://acme.example/", 3*time.Second)

	require.True(t, res.Success)
	require.NoError(t, res.Err)
	require.Equal(t, "https://acme.example/final", res.URL)
	require.Equal(t, "Acme", res.Title)
	require.Equal(t, "<html><body>timeout=3</body></html>", res.Content)
	require.Equal(t, "# Acme", res.Text)
}

func TestCrawl_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mode     string
		url      string
		want     string
		protocol bool
	}{
		{name: "missing url", mode: "ok", url: "", want: "No URL provided"},
		{name: "reported failure", mode: "reported-failure", url: "https://acme.example/", want: "ERR_CONNECTION_REFUSED"},
		{name: "garbage output", mode: "garbage", url: "https://acme.example/", want: "Traceback: boom", protocol: true},
		{name: "no output", mode: "silent", url: "https://acme.example/", want: "empty provider output", protocol: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newHelperCrawler(t, helperConfig(tt.mode, "probe-ok"))
			res := c.Crawl(context.Background(), tt.url, 2*time.Second)
			require.False(t, res.Success)
			require.ErrorContains(t, res.Err, tt.want)
			require.Equal(t, tt.protocol, errors.Is(res.Err, lead.ErrProtocol))
		})
	}
}

func TestCrawl_StartFailure(t *testing.T) {
	t.Parallel()

	c := newHelperCrawler(t, Config{Command: "/nonexistent/leadgraph-crawler"})
	res := c.Crawl(context.Background(), "https://acme.example/", time.Second)
	require.False(t, res.Success)
	require.ErrorContains(t, res.Err, "start external crawler")
}

func TestCrawl_ContextCanceled(t *testing.T) {
	t.Parallel()

	c := newHelperCrawler(t, helperConfig("hang", "probe-ok"))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res := c.Crawl(ctx, "https://acme.example/", 10*time.Second)
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
	require.False(t, errors.Is(res.Err, lead.ErrTransient))
}

func TestLastLine(t *testing.T) {
	t.Parallel()

	require.Equal(t, `{"b":2}`, string(lastLine([]byte("diag\n{\"a\":1}\n  {\"b\":2}  \n\n"))))
	require.Nil(t, lastLine([]byte("\n \n")))
	require.True(t, strings.HasPrefix(string(lastLine([]byte("single"))), "single"))
}

func TestEncodeRequest(t *testing.T) {
	t.Parallel()

	payload, err := encodeRequest("https://acme.example/", 1500*time.Millisecond)
	require.NoError(t, err)
	require.JSONEq(t, `{"url":"https://acme.example/","timeout":2}`, string(payload))

	payload, err = encodeRequest("https://acme.example/", 0)
	require.NoError(t, err)
	require.JSONEq(t, `{"url":"https://acme.example/","timeout":1}`, string(payload))
}
