package headless

import (
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// linkKeywords weight follow-up candidates by how likely they carry signals.
var linkKeywords = []struct {
	token  string
	weight int
}{
	{"contact", 5},
	{"book", 4},
	{"appointment", 4},
	{"schedule", 4},
	{"about", 2},
}

var skippedExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".svg": true, ".webp": true, ".zip": true, ".mp4": true, ".css": true, ".js": true,
}

type candidate struct {
	url   string
	score int
}

// rankLinks returns up to limit same-host links from html, highest keyword
// score first and document order within equal scores.
func rankLinks(html, baseURL, host string, limit int) []string {
	if limit <= 0 || html == "" {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := map[string]bool{canonicalLink(base): true}
	var found []candidate
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if !sameSite(abs.Hostname(), host) {
			return
		}
		if skippedExtensions[strings.ToLower(path.Ext(abs.Path))] {
			return
		}
		key := canonicalLink(abs)
		if seen[key] {
			return
		}
		seen[key] = true
		found = append(found, candidate{
			url:   key,
			score: scoreLink(strings.ToLower(abs.Path + " " + sel.Text())),
		})
	})

	sort.SliceStable(found, func(a, b int) bool {
		return found[a].score > found[b].score
	})
	if len(found) > limit {
		found = found[:limit]
	}
	out := make([]string, 0, len(found))
	for _, c := range found {
		out = append(out, c.url)
	}
	return out
}

func scoreLink(text string) int {
	score := 0
	for _, kw := range linkKeywords {
		if strings.Contains(text, kw.token) {
			score += kw.weight
		}
	}
	return score
}

func canonicalLink(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.Host = strings.ToLower(c.Host)
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}

func sameSite(a, b string) bool {
	a = strings.TrimPrefix(strings.ToLower(a), "www.")
	b = strings.TrimPrefix(strings.ToLower(b), "www.")
	return a != "" && a == b
}
