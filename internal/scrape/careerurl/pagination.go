package careerurl

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobharvest-engine/internal/scrape/util"
)

const maxPaginationLinks = 25

// Offset-style paging parameters, in priority order.
var offsetParams = []string{"skip", "offset", "start"}

type numericParam struct {
	name string
	max  int
	step int
}

type pagination struct {
	links   []string
	maxPage int
	numeric *numericParam
}

// discoverPagination collects explicit next/last links and the evidence
// needed to synthesize pages the markup does not link to.
func discoverPagination(doc *goquery.Document, base string) pagination {
	var p pagination
	if doc == nil {
		return p
	}
	baseHost := util.Host(base)
	var links []string
	add := func(href string) {
		if u := util.ResolveURL(base, href); u != "" {
			links = append(links, u)
		}
	}

	doc.Find("link[rel~='next'], a[rel~='next']").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("href", ""))
	})

	anchors := doc.Find("a[href]")
	anchors.Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		aria := strings.ToLower(strings.TrimSpace(s.AttrOr("aria-label", "")))
		txt := strings.ToLower(textOf(s))
		if strings.Contains(aria, "next") || strings.HasSuffix(txt, "next") {
			add(href)
		}
		if strings.Contains(aria, "last") || strings.HasSuffix(txt, "last") {
			add(href)
		}
	})

	offsets := map[string]map[int]bool{}
	anchors.Each(func(_ int, s *goquery.Selection) {
		abs := util.ResolveURL(base, s.AttrOr("href", ""))
		if abs == "" || util.Host(abs) != baseHost {
			return
		}
		if strings.Contains(strings.ToLower(abs), "page=") {
			links = append(links, abs)
		}
		if u, err := url.Parse(abs); err == nil {
			q := u.Query()
			for _, k := range offsetParams {
				if v := strings.TrimSpace(q.Get(k)); isDigits(v) {
					n, _ := strconv.Atoi(v)
					if offsets[k] == nil {
						offsets[k] = map[int]bool{}
					}
					offsets[k][n] = true
				}
			}
		}
		if txt := textOf(s); isDigits(txt) {
			if n, err := strconv.Atoi(txt); err == nil && n > 1 && n > p.maxPage {
				p.maxPage = n
			}
		}
	})

	p.links = uniqueStrings(links)
	if len(p.links) > maxPaginationLinks {
		p.links = p.links[:maxPaginationLinks]
	}

	for _, k := range offsetParams {
		if len(offsets[k]) == 0 {
			continue
		}
		vals := make([]int, 0, len(offsets[k]))
		for v := range offsets[k] {
			vals = append(vals, v)
		}
		sort.Ints(vals)
		step := 0
		for i := 1; i < len(vals); i++ {
			if d := vals[i] - vals[i-1]; d > 0 && (step == 0 || d < step) {
				step = d
			}
		}
		p.numeric = &numericParam{name: k, max: vals[len(vals)-1], step: step}
		break
	}
	return p
}

// pageParamURLs synthesizes ?page=2..maxPage unless base already pages by
// "page".
func pageParamURLs(base string, maxPage int) []string {
	u, err := url.Parse(base)
	if err != nil {
		return nil
	}
	for k := range u.Query() {
		if strings.EqualFold(k, "page") {
			return nil
		}
	}
	var out []string
	for n := 2; n <= maxPage; n++ {
		out = append(out, util.SetQueryParam(base, "page", strconv.Itoa(n)))
	}
	return out
}

// numericParamURLs synthesizes offset pages step, 2*step, ... up to max.
// A zero step means only one offset was observed; 100 is assumed.
func numericParamURLs(base string, np numericParam) []string {
	if np.name == "" || np.max <= 0 {
		return nil
	}
	step := np.step
	if step <= 0 {
		step = 100
	}
	var out []string
	for v := step; v <= np.max; v += step {
		out = append(out, util.SetQueryParam(base, np.name, strconv.Itoa(v)))
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
