package acquire

import "strings"

// featureRule sets a flag when every group has at least one token present.
type featureRule struct {
	name  string
	allOf [][]string
	set   func(*Metadata)
}

var featureRules = []featureRule{
	{
		name:  "contact_form",
		allOf: [][]string{{"contact"}, {"form", "submit"}},
		set:   func(m *Metadata) { m.HasContactForm = true },
	},
	{
		name:  "booking_widget",
		allOf: [][]string{{"book"}, {"appointment", "schedule"}},
		set:   func(m *Metadata) { m.HasBookingWidget = true },
	},
	{
		name: "chat_widget",
		allOf: [][]string{{
			"chat",
			"intercom",
			"drift.com",
			"tawk.to",
			"livechatinc",
			"zopim",
			"crisp.chat",
			"tidio",
			"olark",
		}},
		set: func(m *Metadata) { m.HasChatWidget = true },
	},
}

// DetectFeatures scans content for the lexical feature signals. Empty content
// yields all-false flags.
func DetectFeatures(content string) Metadata {
	var meta Metadata
	if content == "" {
		return meta
	}
	lower := strings.ToLower(content)
	for _, rule := range featureRules {
		if rule.matches(lower) {
			rule.set(&meta)
		}
	}
	return meta
}

func (r featureRule) matches(lower string) bool {
	for _, group := range r.allOf {
		if !containsAny(lower, group) {
			return false
		}
	}
	return len(r.allOf) > 0
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
