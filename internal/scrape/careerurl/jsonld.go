package careerurl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobharvest-engine/internal/scrape/util"
)

// extractJSONLD returns every schema.org JobPosting found in ld+json blocks,
// including those nested in @graph.
func extractJSONLD(p page) []posting {
	if p.doc == nil {
		return nil
	}
	var out []posting
	p.doc.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return
		}

		nodes, ok := data.([]any)
		if !ok {
			nodes = []any{data}
		}
		for i := 0; i < len(nodes); i++ {
			if m, ok := nodes[i].(map[string]any); ok {
				if g, ok := m["@graph"].([]any); ok {
					nodes = append(nodes, g...)
				}
			}
		}

		for _, n := range nodes {
			m, ok := n.(map[string]any)
			if !ok || !isJobPosting(m["@type"]) {
				continue
			}
			out = append(out, jsonLDPosting(m, p.url))
		}
	})
	return out
}

func isJobPosting(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "JobPosting"
	case []any:
		for _, x := range v {
			if x == "JobPosting" {
				return true
			}
		}
	}
	return false
}

func jsonLDPosting(m map[string]any, base string) posting {
	title := util.CleanText(stringify(firstTruthy(m["title"], m["name"])))
	desc := stringify(m["description"])

	rawURL := m["url"]
	if !truthy(rawURL) {
		if org, ok := m["hiringOrganization"].(map[string]any); ok {
			rawURL = org["sameAs"]
		}
	}
	if obj, ok := rawURL.(map[string]any); ok {
		rawURL = obj["@id"]
	}

	abs := base
	if truthy(rawURL) {
		if u := util.ResolveURL(base, stringify(rawURL)); u != "" {
			abs = u
		}
	}

	loc := ""
	switch jl := m["jobLocation"].(type) {
	case map[string]any:
		loc = addressText(jl)
	case []any:
		if len(jl) > 0 {
			if first, ok := jl[0].(map[string]any); ok {
				loc = addressText(first)
			}
		}
	}

	return newPosting(abs, title, loc, desc)
}

// addressText renders a PostalAddress as "City, Region Country".
func addressText(place map[string]any) string {
	addr, ok := place["address"].(map[string]any)
	if !ok {
		return ""
	}
	s := fmt.Sprintf("%s, %s %s", nameOf(addr["addressLocality"]), nameOf(addr["addressRegion"]), nameOf(addr["addressCountry"]))
	return util.CleanText(strings.Trim(s, " ,"))
}

// nameOf accepts a plain string or a typed node such as {"@type":"Country","name":"US"}.
func nameOf(v any) string {
	if m, ok := v.(map[string]any); ok {
		return stringify(m["name"])
	}
	return stringify(v)
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

func firstTruthy(vals ...any) any {
	for _, v := range vals {
		if truthy(v) {
			return v
		}
	}
	return nil
}
