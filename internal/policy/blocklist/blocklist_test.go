package blocklist

import "testing"

func TestBlocklist(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		bl := New([]string{"example.org"})
		if bl == nil {
			t.Fatalf("expected blocklist to be created")
		}
		if !bl.IsBlocked("example.org") || !bl.IsBlocked("WWW.Example.org") {
			t.Fatalf("expected example.org to be blocked")
		}
		if bl.IsBlocked("sub.example.org") {
			t.Fatalf("did not expect subdomains to match exact entry")
		}
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		bl := New([]string{"*.facebook.com", ".yelp.com"})
		cases := []struct {
			host    string
			blocked bool
		}{
			{"facebook.com", true},
			{"m.facebook.com", true},
			{"www.yelp.com", true},
			{"notfacebook.com", false},
			{"acmeplumbing.com", false},
		}
		for _, tc := range cases {
			if got := bl.IsBlocked(tc.host); got != tc.blocked {
				t.Fatalf("host %q blocked=%v, want %v", tc.host, got, tc.blocked)
			}
		}
	})

	t.Run("empty patterns", func(t *testing.T) {
		if bl := New([]string{" ", "*."}); bl != nil {
			t.Fatalf("expected nil blocklist, got %+v", bl)
		}
	})

	t.Run("nil blocklist", func(t *testing.T) {
		var bl *Blocklist
		if bl.IsBlocked("anything") {
			t.Fatalf("nil blocklist should never block")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		bl := New(DefaultPatterns)
		if !bl.IsBlocked("www.facebook.com") || !bl.IsBlocked("acme.business.site") {
			t.Fatalf("expected platform hosts to be blocked")
		}
	})
}
