package careerurl

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"jobharvest-engine/internal/scrape/util"
)

// page is one fetched listing page. The DOM is parsed once and shared by
// every extraction stage.
type page struct {
	html string
	url  string
	doc  *goquery.Document
}

func newPage(body, finalURL string) page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		doc = nil
	}
	return page{html: body, url: finalURL, doc: doc}
}

// textOf joins the visible text of s with single spaces.
func textOf(s *goquery.Selection) string {
	return util.CleanText(joinText(s, " "))
}

// joinText returns the trimmed text nodes under s joined by sep, skipping
// script and style content.
func joinText(s *goquery.Selection, sep string) string {
	var parts []string
	for _, n := range s.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, sep)
}

func collectText(n *html.Node, out *[]string) {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			*out = append(*out, t)
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "template", "noscript":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}

// dedupeByURL keeps the first posting per absolute URL and drops URL-less ones.
func dedupeByURL(in []posting) []posting {
	seen := make(map[string]bool, len(in))
	out := make([]posting, 0, len(in))
	for _, p := range in {
		u := strings.TrimSpace(p.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, p)
	}
	return out
}

func keepHighSignal(in []posting) []posting {
	out := make([]posting, 0, len(in))
	for _, p := range in {
		if u := strings.TrimSpace(p.URL); u != "" && isHighSignal(u) {
			out = append(out, p)
		}
	}
	return out
}
