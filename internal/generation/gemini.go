// Package generation calls the Gemini API to draft outreach for scored records.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 60 * time.Second

// Config holds the generation service settings.
type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	Timeout     time.Duration
	Temperature float32
}

// Generator implements lead.Generator with a Gemini client.
type Generator struct {
	client      *genai.Client
	model       string
	timeout     time.Duration
	temperature float32
}

// New builds a Generator. A missing API key yields ErrConfigurationMissing so
// the caller can disable generation for the run.
func New(ctx context.Context, cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: generation api key", lead.ErrConfigurationMissing)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: generation model", lead.ErrConfigurationMissing)
	}
	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Generator{
		client:      client,
		model:       strings.TrimSpace(cfg.Model),
		timeout:     timeout,
		temperature: cfg.Temperature,
	}, nil
}

// Generate makes one call for record and parses the sectioned reply.
func (g *Generator) Generate(ctx context.Context, record lead.Record) (lead.Outreach, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	genCfg := &genai.GenerateContentConfig{CandidateCount: 1}
	if g.temperature > 0 {
		genCfg.Temperature = genai.Ptr(g.temperature)
	}
	resp, err := g.client.Models.GenerateContent(callCtx, g.model, genai.Text(buildPrompt(record)), genCfg)
	if err != nil {
		return lead.Outreach{}, classifyErr(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return lead.Outreach{}, fmt.Errorf("%w: empty generation response", lead.ErrProtocol)
	}
	return ParseOutreach(text), nil
}

func buildPrompt(record lead.Record) string {
	var b strings.Builder
	b.WriteString("Write short, friendly outreach for the local business below.\n")
	b.WriteString("Reply with exactly four sections, each starting on its own line with its marker:\n")
	b.WriteString("SUBJECT: (email subject)\nBODY: (email body)\nVOICEMAIL: (voicemail script)\nSMS: (one text message)\n\n")
	fmt.Fprintf(&b, "Business: %s\n", record.Name)
	if record.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", record.Category)
	}
	if record.Address != "" {
		fmt.Fprintf(&b, "Location: %s\n", record.Address)
	}
	if record.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", record.Website)
	}
	s := record.Signals
	if s.Enriched {
		fmt.Fprintf(&b, "Contact form: %t\nOnline booking: %t\nLive chat: %t\n",
			s.HasContactForm, s.HasBookingWidget, s.HasChatWidget)
	}
	if record.Score != nil {
		fmt.Fprintf(&b, "Opportunity: %s\n", record.Score.Tier)
	}
	return b.String()
}

func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 401 || apiErr.Code == 403 {
			return fmt.Errorf("%w: generation api key rejected: %w", lead.ErrConfigurationMissing, err)
		}
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return fmt.Errorf("%w: %w", lead.ErrTransient, err)
		}
		return fmt.Errorf("generate content: %w", err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", lead.ErrTransient, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", lead.ErrTransient, err)
	}
	return fmt.Errorf("generate content: %w", err)
}
