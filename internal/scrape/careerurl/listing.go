package careerurl

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/scrape/util"
)

type posting = domain.CareerPosting

const maxTiles = 500

var tileSelectors = []string{
	"li[data-qa='searchResultItem']",
	"div.job-grid-item",
	"div.job-tile",
	"div[class*='job-tile']",
	"div[class*='job-card']",
	"div[class*='search-result']",
}

func newPosting(absURL, title, location, content string) posting {
	return posting{
		ID:       util.SHA1Hex(absURL),
		Title:    util.CleanText(title),
		Location: util.CleanText(location),
		Content:  content,
		URL:      absURL,
	}
}

// extractListing reads job links straight off a listing page. Strategies run
// in order and a later one only runs when the earlier ones found nothing.
func extractListing(p page) []posting {
	if p.doc == nil {
		return nil
	}
	if out := listingRows(p); len(out) > 0 {
		return out
	}
	if out := listingTiles(p); len(out) > 0 {
		return out
	}
	return listingAnchors(p)
}

// listingRows handles tables of /jobs/listing/<slug>/<id> links with the
// location in the row's last cell.
func listingRows(p page) []posting {
	var out []posting
	p.doc.Find("a[href*='/jobs/listing/']").Each(func(_ int, a *goquery.Selection) {
		abs := util.ResolveURL(p.url, a.AttrOr("href", ""))
		if abs == "" {
			return
		}
		loc := ""
		if tr := a.Closest("tr"); tr.Length() > 0 {
			if tds := tr.Find("td"); tds.Length() >= 2 {
				loc = textOf(tds.Last())
			}
		}
		out = append(out, newPosting(abs, textOf(a), loc, ""))
	})
	return out
}

// listingTiles handles card grids (Oracle Candidate Experience and similar)
// where title and location sit next to the detail link.
func listingTiles(p page) []posting {
	var tiles []*goquery.Selection
	seen := map[*html.Node]bool{}
	for _, sel := range tileSelectors {
		p.doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			n := s.Get(0)
			if seen[n] {
				return
			}
			seen[n] = true
			tiles = append(tiles, s)
		})
	}
	if len(tiles) > maxTiles {
		tiles = tiles[:maxTiles]
	}

	var out []posting
	for _, tile := range tiles {
		a := tile.Find("a[href]").First()
		if a.Length() == 0 {
			continue
		}
		abs := util.ResolveURL(p.url, a.AttrOr("href", ""))
		if abs == "" {
			continue
		}
		path := urlPath(abs)
		if !tileJobHrefRE.MatchString(path) && !strings.Contains(strings.ToLower(path), "/job/") {
			continue
		}

		title := ""
		if el := firstMatch(tile, ".job-tile__title", "span[class*='title']", "h2", "h3"); el != nil {
			title = textOf(el)
		}
		if title == "" {
			title = textOf(a)
		}

		loc := ""
		if el := firstMatch(tile, "posting-locations span", ".posting-locations span", "[class*='locations'] span"); el != nil {
			loc = textOf(el)
		}
		if loc == "" {
			loc = locationFromAria(tile.AttrOr("aria-label", ""))
		}

		out = append(out, newPosting(abs, title, loc, ""))
	}
	return out
}

// listingAnchors is the last resort: any anchor whose URL looks like a job.
func listingAnchors(p page) []posting {
	var out []posting
	p.doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		abs := util.ResolveURL(p.url, a.AttrOr("href", ""))
		if abs == "" || !isJobish(abs) {
			return
		}
		out = append(out, newPosting(abs, textOf(a), "", ""))
	})
	return out
}

// firstMatch returns the first element matching the first selector that
// matches anything, or nil.
func firstMatch(s *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if el := s.Find(sel).First(); el.Length() > 0 {
			return el
		}
	}
	return nil
}

// locationFromAria reads "Locations,United States,Seattle, WA,..." tooltips
// and returns the first entry.
func locationFromAria(label string) string {
	if !strings.Contains(label, "Locations") {
		return ""
	}
	var parts []string
	for _, p := range strings.Split(label, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	for i, p := range parts {
		if strings.EqualFold(p, "locations") && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}
