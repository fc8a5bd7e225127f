// Package dedupe collapses discovered records that describe the same business.
package dedupe

import (
	"slices"
	"strings"
	"unicode"

	"github.com/JakeFAU/leadgraph-enricher/internal/acquire"
	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

// minPhoneDigits is the shortest digit run treated as a usable phone key.
const minPhoneDigits = 7

// Merger keys records by website host, then phone digits, then name and
// address. The first record seen for a key wins; later duplicates only fill
// its empty fields and add unseen contacts.
type Merger struct{}

// New returns a Merger.
func New() *Merger {
	return &Merger{}
}

// Dedupe returns records in first-seen order with duplicates folded in. A
// record that matches several earlier groups joins them into the earliest, so
// a second pass over the output changes nothing.
func (Merger) Dedupe(records []lead.Record) []lead.Record {
	g := &groups{index: make(map[string]int, len(records))}
	for _, rec := range records {
		var matched []int
		for _, key := range keysFor(rec) {
			if id, ok := g.lookup(key); ok && !slices.Contains(matched, id) {
				matched = append(matched, id)
			}
		}
		if len(matched) == 0 {
			rec.Contacts = mergeContacts(nil, rec.Contacts)
			g.add(rec)
			continue
		}
		slices.Sort(matched)
		root := matched[0]
		for _, id := range matched[1:] {
			g.union(root, id)
		}
		g.records[root] = merge(g.records[root], rec)
		g.settle(root)
	}
	return g.survivors()
}

// groups is a union-find over record groups keyed by dedupe keys.
type groups struct {
	records []lead.Record
	parent  []int
	index   map[string]int
}

func (g *groups) add(rec lead.Record) {
	id := len(g.records)
	g.records = append(g.records, rec)
	g.parent = append(g.parent, id)
	g.settle(id)
}

func (g *groups) find(id int) int {
	for g.parent[id] != id {
		g.parent[id] = g.parent[g.parent[id]]
		id = g.parent[id]
	}
	return id
}

func (g *groups) lookup(key string) (int, bool) {
	id, ok := g.index[key]
	if !ok {
		return 0, false
	}
	return g.find(id), true
}

// union folds the later group into the earlier one and returns the survivor.
func (g *groups) union(a, b int) int {
	a, b = g.find(a), g.find(b)
	if a == b {
		return a
	}
	if b < a {
		a, b = b, a
	}
	g.records[a] = merge(g.records[a], g.records[b])
	g.parent[b] = a
	return a
}

// settle indexes the keys of a group, folding in any other group that already
// owns one of them, until the keys stop changing.
func (g *groups) settle(id int) {
	for {
		id = g.find(id)
		folded := false
		for _, key := range keysFor(g.records[id]) {
			other, ok := g.lookup(key)
			if !ok {
				g.index[key] = id
				continue
			}
			if other != id {
				id = g.union(id, other)
				folded = true
				break
			}
		}
		if !folded {
			return
		}
	}
}

func (g *groups) survivors() []lead.Record {
	out := make([]lead.Record, 0, len(g.records))
	for id, rec := range g.records {
		if g.find(id) == id {
			out = append(out, rec)
		}
	}
	return out
}

func keysFor(rec lead.Record) []string {
	var keys []string
	if strings.TrimSpace(rec.Website) != "" {
		if target, err := acquire.NewTarget(rec.Website); err == nil {
			keys = append(keys, "web:"+strings.TrimPrefix(target.Host, "www."))
		}
	}
	if digits := phoneDigits(rec.Phone); len(digits) >= minPhoneDigits {
		keys = append(keys, "tel:"+digits)
	}
	if name := normalize(rec.Name); name != "" {
		keys = append(keys, "name:"+name+"|"+normalize(rec.Address))
	}
	return keys
}

func merge(into, from lead.Record) lead.Record {
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = src
		}
	}
	fill(&into.Name, from.Name)
	fill(&into.Website, from.Website)
	fill(&into.Phone, from.Phone)
	fill(&into.Address, from.Address)
	fill(&into.Category, from.Category)
	into.Contacts = mergeContacts(into.Contacts, from.Contacts)
	return into
}

func mergeContacts(existing, incoming []lead.Contact) []lead.Contact {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]lead.Contact, 0, len(existing)+len(incoming))
	for _, c := range append(append([]lead.Contact(nil), existing...), incoming...) {
		key := contactKey(c)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func contactKey(c lead.Contact) string {
	switch {
	case c.Email != "":
		return "email:" + strings.ToLower(strings.TrimSpace(c.Email))
	case phoneDigits(c.Phone) != "":
		return "tel:" + phoneDigits(c.Phone)
	case c.Name != "":
		return "name:" + normalize(c.Name)
	default:
		return ""
	}
}

func phoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
