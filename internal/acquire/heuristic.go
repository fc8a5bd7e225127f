package acquire

import "strings"

// Classification is the verdict of the block/quality heuristic.
type Classification string

// Heuristic verdicts.
const (
	Usable       Classification = "usable"
	Blocked      Classification = "blocked"
	Insufficient Classification = "insufficient"
)

// Default heuristic thresholds, in bytes.
const (
	DefaultMinBytes     = 1000
	DefaultSuspectBytes = 5000
)

// DefaultBlockMarkers are lowercase phrases found on denial, CAPTCHA, and
// edge-proxy challenge pages.
var DefaultBlockMarkers = []string{
	"access denied",
	"attention required! | cloudflare",
	"checking your browser before accessing",
	"just a moment...",
	"cf-browser-verification",
	"cf-challenge-running",
	"ddos protection by cloudflare",
	"verify you are human",
	"are you a robot",
	"please complete the security check",
	"captcha-delivery.com",
	"px-captcha",
	"_incapsula_resource",
	"sorry, you have been blocked",
	"you don't have permission to access",
}

// HeuristicConfig tunes the classifier.
type HeuristicConfig struct {
	MinBytes     int
	SuspectBytes int
	Markers      []string
}

// Heuristic classifies content using an ordered rule list; the first matching
// rule decides. It performs no I/O.
type Heuristic struct {
	minBytes     int
	suspectBytes int
	markers      []string
}

type classificationRule struct {
	name    string
	verdict Classification
	match   func(h *Heuristic, content, lower string) bool
}

var classificationRules = []classificationRule{
	{
		name:    "below_minimum",
		verdict: Insufficient,
		match: func(h *Heuristic, content, _ string) bool {
			return len(content) < h.minBytes
		},
	},
	{
		name:    "block_marker",
		verdict: Blocked,
		match: func(h *Heuristic, _, lower string) bool {
			return h.markerIn(lower) != ""
		},
	},
	{
		name:    "suspiciously_small",
		verdict: Blocked,
		match: func(h *Heuristic, content, _ string) bool {
			return len(content) < h.suspectBytes
		},
	},
}

// NewHeuristic builds a classifier. Zero thresholds and an empty marker list fall
// back to the defaults.
func NewHeuristic(cfg HeuristicConfig) *Heuristic {
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = DefaultMinBytes
	}
	if cfg.SuspectBytes <= 0 {
		cfg.SuspectBytes = DefaultSuspectBytes
	}
	markers := cfg.Markers
	if len(markers) == 0 {
		markers = DefaultBlockMarkers
	}
	lower := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			lower = append(lower, m)
		}
	}
	return &Heuristic{
		minBytes:     cfg.MinBytes,
		suspectBytes: cfg.SuspectBytes,
		markers:      lower,
	}
}

// Classify returns the verdict for content.
func (h *Heuristic) Classify(content string) Classification {
	verdict, _ := h.ClassifyRule(content)
	return verdict
}

// ClassifyRule returns the verdict and the name of the rule that produced it.
func (h *Heuristic) ClassifyRule(content string) (Classification, string) {
	lower := strings.ToLower(content)
	for _, rule := range classificationRules {
		if rule.match(h, content, lower) {
			return rule.verdict, rule.name
		}
	}
	return Usable, ""
}

// Marker returns the first block marker found in content, or "" when none is.
func (h *Heuristic) Marker(content string) string {
	return h.markerIn(strings.ToLower(content))
}

func (h *Heuristic) markerIn(lower string) string {
	for _, m := range h.markers {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return ""
}
