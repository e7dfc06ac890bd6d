package discovery

import (
	"sort"

	"jobharvest-engine/internal/domain"
)

// Candidate is one possible source for a company, with how sure we are and
// why. Candidates live for a single discovery request.
type Candidate struct {
	Type       domain.SourceType `json:"type"`
	Slug       string            `json:"slug,omitempty"`
	URL        string            `json:"url,omitempty"`
	Mode       string            `json:"mode,omitempty"`
	Confidence float64           `json:"confidence"`
	Evidence   []string          `json:"evidence"`
	Verified   bool              `json:"verified"`
	JobCount   *int              `json:"job_count"`
	Error      string            `json:"error"`
}

func (c Candidate) key() string {
	return string(c.Type) + "\x00" + c.Slug + "\x00" + c.URL + "\x00" + c.Mode
}

func (c Candidate) isATS() bool { return c.Type.IsATS() && c.Slug != "" }

// Source converts c into a configurable company source.
func (c Candidate) Source() domain.Source {
	if c.Type.IsATS() {
		return domain.Source{Type: c.Type, Slug: c.Slug}
	}
	return domain.Source{Type: c.Type, URL: c.URL, Mode: c.Mode}
}

func dedupe(in []Candidate) []Candidate {
	seen := map[string]bool{}
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		k := c.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// rank orders verified first, then confidence, job count, type and
// slug-or-url.
func rank(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Verified != b.Verified {
			return a.Verified
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if ac, bc := count(a), count(b); ac != bc {
			return ac > bc
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return ident(a) < ident(b)
	})
}

func count(c Candidate) int {
	if c.JobCount == nil {
		return 0
	}
	return *c.JobCount
}

func ident(c Candidate) string {
	if c.Slug != "" {
		return c.Slug
	}
	return c.URL
}
