package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadgraph-enricher/internal/acquire"
)

func sitePage() string {
	return "<html><head><title>Acme Plumbing</title></head><body>" +
		strings.Repeat("<p>Family owned plumbing since 1982.</p>", 20) +
		`<form action="/contact"><input name="email"></form></body></html>`
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func directOnlyConfig(t *testing.T, dir, outDir string) string {
	t.Helper()
	return writeFile(t, dir, "config.yaml", fmt.Sprintf(`
logging:
  level: error
acquire:
  escalation: []
  min_bytes: 100
  suspect_bytes: 200
  fetch_timeout: 5s
enrichment:
  pace: 0s
output:
  local_dir: %q
`, outDir))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand_WritesDatasetAndSummary(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("LEADGRAPH_GENERATION_API_KEY", "")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(sitePage()))
	}))
	defer srv.Close()

	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	cfgPath := directOnlyConfig(t, dir, outDir)
	listing := writeFile(t, dir, "maps.jsonl", fmt.Sprintf(
		`{"name":"Acme Plumbing","website":%q,"phone":"555-010-0100"}
{"name":"Bolt Electric","phone":"555-010-0200"}
{"name":"Nowhere Co"}
`, srv.URL))

	out, err := execute(t, "--config", cfgPath, "run", "--input", listing)
	require.NoError(t, err, out)

	var report runReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	summary := report.Summary
	require.NotEmpty(t, summary.RunID)
	require.Equal(t, 3, summary.Found)
	require.Equal(t, 2, summary.Filtered)
	require.Equal(t, 1, summary.Enriched)
	require.Equal(t, 2, summary.Scored)
	require.Equal(t, 0, summary.Generated)
	require.Equal(t, map[string]int{"maps": 3}, summary.SourceCoverage)
	require.False(t, summary.Fatal)
	require.Len(t, summary.Errors, 1)
	require.Contains(t, summary.Errors[0], "generate *")

	runDir := filepath.Join(outDir, "runs", summary.RunID)
	require.FileExists(t, filepath.Join(runDir, "records.jsonl"))
	require.FileExists(t, filepath.Join(runDir, "summary.json"))
	require.FileExists(t, filepath.Join(runDir, "events.jsonl"))
	require.Equal(t, "file://"+filepath.Join(runDir, "records.jsonl"), report.DatasetURI)

	records, err := os.ReadFile(filepath.Join(runDir, "records.jsonl"))
	require.NoError(t, err)
	require.Contains(t, string(records), `"has_contact_form":true`)
}

func TestRunCommand_RequiresDiscoverySource(t *testing.T) {
	dir := t.TempDir()
	cfgPath := directOnlyConfig(t, dir, filepath.Join(dir, "out"))

	_, err := execute(t, "--config", cfgPath, "run")
	require.ErrorContains(t, err, "no discovery sources")
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "enrichment:\n  batch_size: 0\n")

	_, err := execute(t, "--config", cfgPath, "run")
	require.ErrorContains(t, err, "enrichment.batch_size")
}

func TestProbeCommand_PrintsDirectResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sitePage()))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfgPath := directOnlyConfig(t, dir, filepath.Join(dir, "out"))

	out, err := execute(t, "--config", cfgPath, "probe", srv.URL)
	require.NoError(t, err, out)

	var report probeReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.True(t, report.Success)
	require.Equal(t, acquire.TierDirect, report.Tier)
	require.Equal(t, []acquire.Tier{acquire.TierDirect}, report.Plan)
	require.Len(t, report.Pages, 1)
	require.Equal(t, "Acme Plumbing", report.Pages[0].Title)
	require.Empty(t, report.Pages[0].HTML)
	require.True(t, report.Metadata.HasContactForm)
}

func TestProbeCommand_RequiresURL(t *testing.T) {
	_, err := execute(t, "probe")
	require.Error(t, err)
}

func TestNewProbeReport_IncludesHTMLOnRequest(t *testing.T) {
	t.Parallel()

	res := acquire.Result{
		Target:  acquire.Target{URL: "https://a.example/"},
		Pages:   []acquire.Page{{URL: "https://a.example/", Title: "A", HTML: "<p>hi</p>"}},
		Text:    "hi",
		Success: true,
		Tier:    acquire.TierBrowser,
	}

	report := newProbeReport(res, []acquire.Tier{acquire.TierDirect, acquire.TierBrowser}, true)
	require.Equal(t, "<p>hi</p>", report.Pages[0].HTML)
	require.Equal(t, 9, report.Pages[0].Bytes)
	require.Equal(t, 2, report.TextLen)
}
