package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

func TestScorer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		record lead.Record
		value  int
		tier   string
		reason string
	}{
		{
			name:   "nothing known",
			record: lead.Record{Name: "Ghost"},
			value:  0,
			tier:   TierCold,
		},
		{
			name:   "unenriched website and phone",
			record: lead.Record{Website: "acme.example", Phone: "555"},
			value:  25,
			tier:   TierCold,
			reason: "phone, website",
		},
		{
			name: "enriched site without booking or chat",
			record: lead.Record{
				Website: "acme.example",
				Phone:   "555",
				Signals: lead.Signals{Enriched: true, PageCount: 3, HasContactForm: true},
			},
			value:  75,
			tier:   TierHot,
			reason: "phone, website, contact form, no booking widget, no chat widget",
		},
		{
			name: "enriched site with booking and chat",
			record: lead.Record{
				Website:  "acme.example",
				Contacts: []lead.Contact{{Email: "a@acme.example"}},
				Signals:  lead.Signals{Enriched: true, PageCount: 1, HasBookingWidget: true, HasChatWidget: true},
			},
			value:  35,
			tier:   TierWarm,
			reason: "website, named contact, small site",
		},
		{
			name: "capped at 100",
			record: lead.Record{
				Website:  "acme.example",
				Phone:    "555",
				Contacts: []lead.Contact{{Email: "a@acme.example"}},
				Signals:  lead.Signals{Enriched: true, PageCount: 1, HasContactForm: true},
			},
			value: 100,
			tier:  TierHot,
		},
	}

	s := NewScorer(Config{})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := s.Score(tc.record)
			require.Equal(t, tc.value, got.Value)
			require.Equal(t, tc.tier, got.Tier)
			if tc.reason != "" {
				require.Equal(t, tc.reason, got.Reason)
			}
		})
	}
}

func TestNewScorerThresholds(t *testing.T) {
	t.Parallel()

	s := NewScorer(Config{HotThreshold: 20, WarmThreshold: 50})
	require.Equal(t, 20, s.hot)
	require.Equal(t, 20, s.warm)

	require.Equal(t, TierHot, s.Score(lead.Record{Website: "a", Phone: "1"}).Tier)
}

func TestReachable(t *testing.T) {
	t.Parallel()

	var f Reachable
	require.True(t, f.Keep(lead.Record{Website: "acme.example"}))
	require.True(t, f.Keep(lead.Record{Phone: "555"}))
	require.False(t, f.Keep(lead.Record{Name: "Ghost", Website: "  "}))
}
