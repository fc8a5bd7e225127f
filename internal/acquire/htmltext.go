package acquire

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText strips markup from html and collapses whitespace. Script, style,
// and noscript bodies are dropped.
func PlainText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("script,style,noscript,template").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Title returns the document title, or "".
func Title(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
