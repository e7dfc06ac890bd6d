package careerurl

import (
	"encoding/json"
	"sort"
	"strings"

	"jobharvest-engine/internal/scrape/util"
)

// extractNextData walks a Next.js __NEXT_DATA__ payload for objects that
// expose both a title and a URL.
func extractNextData(p page) []posting {
	if p.doc == nil {
		return nil
	}
	raw := strings.TrimSpace(p.doc.Find("script#__NEXT_DATA__").First().Text())
	if raw == "" {
		return nil
	}
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil
	}
	var out []posting
	walkJobs(data, p.url, &out)
	return out
}

// walkJobs visits object keys in sorted order so output is stable.
func walkJobs(node any, base string, out *[]posting) {
	switch n := node.(type) {
	case map[string]any:
		title := firstTruthy(n["title"], n["text"], n["name"])
		rawURL := firstTruthy(n["url"], n["absolute_url"], n["applyUrl"], n["hostedUrl"])
		if title != nil && rawURL != nil {
			loc := ""
			switch l := firstTruthy(n["location"], n["jobLocation"], n["city"]).(type) {
			case map[string]any:
				loc = stringify(l["name"])
			case string:
				loc = l
			}
			desc := stringify(firstTruthy(n["description"], n["content"]))
			if abs := util.ResolveURL(base, stringify(rawURL)); abs != "" {
				*out = append(*out, newPosting(abs, stringify(title), loc, desc))
			}
		}
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkJobs(n[k], base, out)
		}
	case []any:
		for _, it := range n {
			walkJobs(it, base, out)
		}
	}
}
