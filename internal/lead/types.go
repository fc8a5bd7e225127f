// Package lead defines the record model and collaborator contracts shared across the pipeline.
package lead

import "time"

// Contact is a single reachable person or channel attached to a record.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Signals holds the website-derived enrichment for a record. It is replaced as a
// whole by the enrichment stage and never patched field by field.
type Signals struct {
	Enriched         bool   `json:"enriched"`
	Tier             string `json:"tier,omitempty"`
	PageCount        int    `json:"page_count"`
	HasContactForm   bool   `json:"has_contact_form"`
	HasBookingWidget bool   `json:"has_booking_widget"`
	HasChatWidget    bool   `json:"has_chat_widget"`
	Title            string `json:"title,omitempty"`
	ContentHash      string `json:"content_hash,omitempty"`
}

// Score is the scoring collaborator's verdict for one record.
type Score struct {
	Value  int    `json:"value"`
	Tier   string `json:"tier"`
	Reason string `json:"reason,omitempty"`
}

// Outreach carries the four generated channel texts. Any field may be empty.
type Outreach struct {
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body,omitempty"`
	Voicemail string `json:"voicemail,omitempty"`
	SMS       string `json:"sms,omitempty"`
}

// Empty reports whether no channel text was produced.
func (o Outreach) Empty() bool {
	return o.Subject == "" && o.Body == "" && o.Voicemail == "" && o.SMS == ""
}

// Record is one discovered business. Discovery collaborators populate the identity
// fields; later stages fill Signals, Score, and Outreach.
type Record struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Name     string    `json:"name"`
	Website  string    `json:"website,omitempty"`
	Phone    string    `json:"phone,omitempty"`
	Address  string    `json:"address,omitempty"`
	Category string    `json:"category,omitempty"`
	Contacts []Contact `json:"contacts,omitempty"`
	Signals  Signals   `json:"signals"`
	Score    *Score    `json:"score,omitempty"`
	Outreach *Outreach `json:"outreach,omitempty"`
}

// Query describes what a run should discover.
type Query struct {
	Keyword   string   `json:"keyword" mapstructure:"keyword"`
	Location  string   `json:"location" mapstructure:"location"`
	Sources   []string `json:"sources" mapstructure:"sources"`
	MaxPerSrc int      `json:"max_per_source" mapstructure:"max_per_source"`
}

// RunSummary is the end-of-run report. It is assembled once by the orchestrator.
type RunSummary struct {
	RunID          string         `json:"run_id"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Found          int            `json:"found"`
	Deduped        int            `json:"deduped"`
	Filtered       int            `json:"filtered"`
	Enriched       int            `json:"enriched"`
	Scored         int            `json:"scored"`
	Generated      int            `json:"generated"`
	Errors         []string       `json:"errors"`
	SourceCoverage map[string]int `json:"source_coverage"`
	ElapsedMs      int64          `json:"elapsed_ms"`
	Fatal          bool           `json:"fatal"`
}
