// Package scoring rates enriched records and filters unreachable ones.
package scoring

import (
	"strings"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

// Tier labels assigned by Scorer.
const (
	TierHot  = "hot"
	TierWarm = "warm"
	TierCold = "cold"
)

// Default tier thresholds.
const (
	DefaultHotThreshold  = 60
	DefaultWarmThreshold = 35
)

// Config sets the score boundaries for the hot and warm tiers.
type Config struct {
	HotThreshold  int `mapstructure:"hot_threshold"`
	WarmThreshold int `mapstructure:"warm_threshold"`
}

type rule struct {
	reason string
	points int
	when   func(lead.Record) bool
}

// rules favor reachable businesses whose sites lack self-service booking or chat.
var rules = []rule{
	{reason: "phone", points: 15, when: func(r lead.Record) bool { return strings.TrimSpace(r.Phone) != "" }},
	{reason: "website", points: 10, when: func(r lead.Record) bool { return strings.TrimSpace(r.Website) != "" }},
	{reason: "named contact", points: 15, when: hasEmailContact},
	{reason: "contact form", points: 10, when: func(r lead.Record) bool { return r.Signals.HasContactForm }},
	{reason: "no booking widget", points: 25, when: func(r lead.Record) bool { return r.Signals.Enriched && !r.Signals.HasBookingWidget }},
	{reason: "no chat widget", points: 15, when: func(r lead.Record) bool { return r.Signals.Enriched && !r.Signals.HasChatWidget }},
	{reason: "small site", points: 10, when: func(r lead.Record) bool { return r.Signals.Enriched && r.Signals.PageCount <= 2 }},
}

// Scorer is a pure rule-based scorer.
type Scorer struct {
	hot  int
	warm int
}

// NewScorer builds a Scorer; non-positive thresholds use the defaults.
func NewScorer(cfg Config) *Scorer {
	hot, warm := cfg.HotThreshold, cfg.WarmThreshold
	if hot <= 0 {
		hot = DefaultHotThreshold
	}
	if warm <= 0 || warm > hot {
		warm = min(DefaultWarmThreshold, hot)
	}
	return &Scorer{hot: hot, warm: warm}
}

// Score sums the matching rules, capped at 100.
func (s *Scorer) Score(record lead.Record) lead.Score {
	total := 0
	var reasons []string
	for _, r := range rules {
		if r.when(record) {
			total += r.points
			reasons = append(reasons, r.reason)
		}
	}
	total = min(total, 100)
	tier := TierCold
	switch {
	case total >= s.hot:
		tier = TierHot
	case total >= s.warm:
		tier = TierWarm
	}
	return lead.Score{Value: total, Tier: tier, Reason: strings.Join(reasons, ", ")}
}

func hasEmailContact(r lead.Record) bool {
	for _, c := range r.Contacts {
		if c.Email != "" {
			return true
		}
	}
	return false
}

// Reachable keeps records that expose a website or a phone number.
type Reachable struct{}

// Keep implements lead.Filter.
func (Reachable) Keep(record lead.Record) bool {
	return strings.TrimSpace(record.Website) != "" || strings.TrimSpace(record.Phone) != ""
}
