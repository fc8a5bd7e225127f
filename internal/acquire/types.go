package acquire

import (
	"context"
	"time"
)

// Tier names one acquisition mechanism.
type Tier string

// Supported tiers, in default escalation order.
const (
	TierDirect   Tier = "direct"
	TierBrowser  Tier = "browser"
	TierExternal Tier = "external"
)

// Page is one retrieved document.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// Metadata is the signal summary derived from acquired content. The zero value
// means "no signal".
type Metadata struct {
	PageCount        int  `json:"page_count"`
	HasContactForm   bool `json:"has_contact_form"`
	HasBookingWidget bool `json:"has_booking_widget"`
	HasChatWidget    bool `json:"has_chat_widget"`
}

// Result is the engine's normalized output for one target. It is never nil;
// failed acquisitions return EmptyResult.
type Result struct {
	Target   Target   `json:"target"`
	Pages    []Page   `json:"pages"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Success  bool     `json:"success"`
	Tier     Tier     `json:"tier,omitempty"`
}

// EmptyResult returns a well-formed result carrying no content.
func EmptyResult(target Target) Result {
	return Result{
		Target: target,
		Pages:  []Page{},
	}
}

// FetchResult is the single-document contract shared by the direct and external tiers.
type FetchResult struct {
	Success    bool
	URL        string
	Title      string
	Content    string
	Text       string
	StatusCode int
	Err        error
}

// Reason returns the failure text, or "" on success.
func (r FetchResult) Reason() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if !r.Success {
		return "unknown failure"
	}
	return ""
}

// Fetcher is the direct network tier.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) FetchResult
}

// Renderer is the browser rendering tier.
type Renderer interface {
	Render(ctx context.Context, url string, maxPages int, timeout time.Duration) Result
}

// ExternalCrawler is the out-of-process acquisition provider.
type ExternalCrawler interface {
	Available(ctx context.Context) bool
	Crawl(ctx context.Context, url string, timeout time.Duration) FetchResult
}
