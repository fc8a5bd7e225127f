// Package blocklist matches hosts against exact names and wildcard suffixes.
// The enrichment stage uses it to skip listing websites that point at shared
// platforms instead of the business's own site.
package blocklist

import "strings"

// DefaultPatterns are platform hosts that listings commonly record as the
// business website.
var DefaultPatterns = []string{
	"*.facebook.com",
	"*.instagram.com",
	"*.yelp.com",
	"*.linkedin.com",
	"*.nextdoor.com",
	"*.google.com",
	"*.business.site",
}

// Blocklist stores exact hosts and suffix wildcards. A nil Blocklist blocks
// nothing.
type Blocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// New builds a Blocklist. "*.example.com" and ".example.com" match the domain
// and every subdomain; a bare host matches only itself. It returns nil when no
// usable pattern is given.
func New(patterns []string) *Blocklist {
	b := &Blocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			b.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			b.addSuffix(strings.TrimPrefix(value, "."))
		default:
			b.exact[value] = struct{}{}
		}
	}
	if len(b.exact) == 0 && len(b.suffixes) == 0 {
		return nil
	}
	return b
}

func (b *Blocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// IsBlocked reports whether host matches any pattern. A leading "www." is
// ignored.
func (b *Blocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(host)), "www.")
	if host == "" {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
