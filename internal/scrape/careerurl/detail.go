package careerurl

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"jobharvest-engine/internal/scrape/util"
)

const maxDetailLines = 2000

var detailLocationRE = regexp.MustCompile(`(?i)(Office locations|Location)\s+([^\n]{2,120})`)

// detailCandidates lists the distinct job-detail links on p, capped.
func detailCandidates(p page, limit int) []string {
	if p.doc == nil {
		return nil
	}
	var out []string
	p.doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if abs := util.ResolveURL(p.url, a.AttrOr("href", "")); abs != "" && isDetailCandidate(abs) {
			out = append(out, abs)
		}
	})
	out = uniqueStrings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// fetchDetails fetches candidate detail pages from the first listing page
// under the fetch cap and time budget. Pages without a title are dropped.
func (a *Agent) fetchDetails(ctx context.Context, p page) []posting {
	candidates := detailCandidates(p, a.cfg.MaxCandidates)
	if len(candidates) == 0 {
		return nil
	}
	client := a.client.WithRetry(a.detailRetry)
	start := a.now()

	var out []posting
	for _, u := range candidates {
		if len(out) >= a.cfg.MaxFetch || a.now().Sub(start) > a.cfg.TimeBudget || ctx.Err() != nil {
			break
		}
		res, err := client.Get(ctx, u, a.cfg.DetailTimeout, "text/html")
		if err != nil {
			a.log.Debug("career_url: detail fetch failed", zap.String("url", u), zap.Error(err))
			continue
		}
		if d := parseDetail(u, string(res.Body)); d.Title != "" {
			out = append(out, d)
		}
	}
	return out
}

// parseDetail takes the first h1 (else h2) as title and a "Location ..."
// line from the page text.
func parseDetail(u, body string) posting {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return posting{}
	}
	title := textOf(doc.Find("h1").First())
	if title == "" {
		title = textOf(doc.Find("h2").First())
	}

	text := joinText(doc.Selection, "\n")
	loc := ""
	if m := detailLocationRE.FindStringSubmatch(text); m != nil {
		loc = m[2]
	}

	lines := strings.Split(text, "\n")
	if len(lines) > maxDetailLines {
		lines = lines[:maxDetailLines]
	}
	return newPosting(u, title, loc, strings.Join(lines, "\n"))
}
