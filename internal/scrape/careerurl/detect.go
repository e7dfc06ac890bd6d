package careerurl

import (
	"regexp"
	"sort"
	"strings"

	"jobharvest-engine/internal/domain"
)

const (
	detectScanLimit = 300_000
	maxDetections   = 5
	maxSlugLen      = 64
)

var (
	ghEmbedForRE = regexp.MustCompile(`greenhouse\.io/[^\s"']*\bfor=([a-z0-9-]+)`)
	ghAPIRE      = regexp.MustCompile(`boards-api\.greenhouse\.io/(?:v1/)?boards/([a-z0-9-]+)`)
	ghHostedRE   = regexp.MustCompile(`(?:boards|job-boards)\.greenhouse\.io/([a-z0-9-]+)`)
	leverAPIRE   = regexp.MustCompile(`api\.lever\.co/v0/postings/([a-z0-9-]+)`)
	leverHostRE  = regexp.MustCompile(`jobs\.lever\.co/([a-z0-9-]+)`)
	slugRE       = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// Path segments on greenhouse.io that are not board slugs.
var ghReserved = map[string]bool{
	"embed": true, "jobs": true, "job": true, "departments": true, "department": true,
	"positions": true, "position": true, "postings": true, "posting": true, "search": true,
}

func validGreenhouseSlug(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s != "" && !ghReserved[s] && len(s) <= maxSlugLen && slugRE.MatchString(s)
}

// DetectEmbeddedATS finds Greenhouse or Lever boards referenced by a career
// page. Greenhouse ranks before Lever and shorter slugs first; at most five
// detections are returned.
func DetectEmbeddedATS(html, finalURL string) []domain.Detection {
	blob := finalURL + "\n" + html
	if len(blob) > detectScanLimit {
		blob = blob[:detectScanLimit]
	}
	low := strings.ToLower(blob)

	type hit struct {
		t    domain.SourceType
		slug string
	}
	var found []hit

	if m := ghEmbedForRE.FindStringSubmatch(low); m != nil && validGreenhouseSlug(m[1]) {
		found = append(found, hit{domain.SourceGreenhouse, m[1]})
	}
	for _, re := range []*regexp.Regexp{ghAPIRE, ghHostedRE} {
		for _, m := range re.FindAllStringSubmatch(low, -1) {
			if validGreenhouseSlug(m[1]) {
				found = append(found, hit{domain.SourceGreenhouse, m[1]})
			}
		}
	}
	for _, re := range []*regexp.Regexp{leverAPIRE, leverHostRE} {
		for _, m := range re.FindAllStringSubmatch(low, -1) {
			if m[1] != "" {
				found = append(found, hit{domain.SourceLever, m[1]})
			}
		}
	}

	seen := map[hit]bool{}
	uniq := found[:0]
	for _, h := range found {
		if seen[h] {
			continue
		}
		seen[h] = true
		uniq = append(uniq, h)
	}
	rank := func(t domain.SourceType) int {
		if t == domain.SourceGreenhouse {
			return 0
		}
		return 1
	}
	sort.SliceStable(uniq, func(i, j int) bool {
		if ri, rj := rank(uniq[i].t), rank(uniq[j].t); ri != rj {
			return ri < rj
		}
		return len(uniq[i].slug) < len(uniq[j].slug)
	})
	if len(uniq) > maxDetections {
		uniq = uniq[:maxDetections]
	}

	out := make([]domain.Detection, 0, len(uniq))
	for _, h := range uniq {
		out = append(out, domain.Detection{Type: h.t, Slug: h.slug, FromURL: finalURL})
	}
	return out
}
