package generation

import (
	"strings"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

type section int

const (
	sectionNone section = iota
	sectionSubject
	sectionBody
	sectionVoicemail
	sectionSMS
)

var markers = []struct {
	prefix string
	sec    section
}{
	{"SUBJECT:", sectionSubject},
	{"BODY:", sectionBody},
	{"VOICEMAIL:", sectionVoicemail},
	{"SMS:", sectionSMS},
}

// ParseOutreach splits a generation response into its channel sections. Each
// marker starts a line; a missing marker leaves that field empty.
func ParseOutreach(text string) lead.Outreach {
	parts := map[section][]string{}
	current := sectionNone
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if sec, rest, ok := markerLine(line); ok {
			current = sec
			if rest != "" {
				parts[current] = append(parts[current], rest)
			}
			continue
		}
		if current != sectionNone {
			parts[current] = append(parts[current], line)
		}
	}
	join := func(sec section) string {
		return strings.TrimSpace(strings.Join(parts[sec], "\n"))
	}
	return lead.Outreach{
		Subject:   join(sectionSubject),
		Body:      join(sectionBody),
		Voicemail: join(sectionVoicemail),
		SMS:       join(sectionSMS),
	}
}

func markerLine(line string) (section, string, bool) {
	trimmed := strings.TrimLeft(strings.TrimSpace(line), "*#_ ")
	upper := strings.ToUpper(trimmed)
	for _, m := range markers {
		if strings.HasPrefix(upper, m.prefix) {
			rest := strings.TrimLeft(trimmed[len(m.prefix):], "*_ ")
			return m.sec, strings.TrimSpace(rest), true
		}
	}
	return sectionNone, "", false
}
