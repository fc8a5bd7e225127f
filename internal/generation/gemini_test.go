package generation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "i/o timeout" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return false }

func TestClassifyErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		in            error
		wantTransient bool
		wantMissing   bool
	}{
		{name: "api_429", in: genai.APIError{Code: 429}, wantTransient: true},
		{name: "api_503", in: genai.APIError{Code: 503}, wantTransient: true},
		{name: "api_400", in: genai.APIError{Code: 400}, wantTransient: false},
		{name: "api_401", in: genai.APIError{Code: 401}, wantMissing: true},
		{name: "api_403", in: genai.APIError{Code: 403}, wantMissing: true},
		{name: "net_timeout", in: timeoutNetErr{}, wantTransient: true},
		{name: "deadline", in: context.DeadlineExceeded, wantTransient: true},
		{name: "other", in: errors.New("boom"), wantTransient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := classifyErr(tt.in)
			require.Equal(t, tt.wantTransient, errors.Is(got, lead.ErrTransient))
			require.Equal(t, tt.wantMissing, errors.Is(got, lead.ErrConfigurationMissing))
			require.ErrorContains(t, got, tt.in.Error())
		})
	}
}

func TestNew_MissingConfiguration(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Model: "gemini-2.0-flash"})
	require.ErrorIs(t, err, lead.ErrConfigurationMissing)

	_, err = New(context.Background(), Config{APIKey: "key"})
	require.ErrorIs(t, err, lead.ErrConfigurationMissing)
}

func newFakeGemini(t *testing.T, status int, body string) (*Generator, *string) {
	t.Helper()
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		prompt = string(raw)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	g, err := New(context.Background(), Config{APIKey: "test-key", Model: "gemini-2.0-flash", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return g, &prompt
}

func TestGenerate_ParsesSections(t *testing.T) {
	t.Parallel()

	g, prompt := newFakeGemini(t, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[
		{"text":"SUBJECT: More bookings\nBODY: Hi Acme team\nVOICEMAIL: Hello from Sam\nSMS: Quick question"}]}}]}`)

	out, err := g.Generate(context.Background(), lead.Record{
		Name:     "Acme Plumbing",
		Category: "plumber",
		Signals:  lead.Signals{Enriched: true, HasContactForm: true},
		Score:    &lead.Score{Tier: "hot"},
	})

	require.NoError(t, err)
	require.Equal(t, lead.Outreach{
		Subject:   "More bookings",
		Body:      "Hi Acme team",
		Voicemail: "Hello from Sam",
		SMS:       "Quick question",
	}, out)
	require.Contains(t, *prompt, "Acme Plumbing")
	require.Contains(t, *prompt, "Contact form: true")
}

func TestGenerate_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	g, _ := newFakeGemini(t, http.StatusServiceUnavailable,
		`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)

	_, err := g.Generate(context.Background(), lead.Record{Name: "Acme"})
	require.ErrorIs(t, err, lead.ErrTransient)
}

func TestGenerate_EmptyReplyIsProtocolError(t *testing.T) {
	t.Parallel()

	g, _ := newFakeGemini(t, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"  "}]}}]}`)

	_, err := g.Generate(context.Background(), lead.Record{Name: "Acme"})
	require.ErrorIs(t, err, lead.ErrProtocol)
}
