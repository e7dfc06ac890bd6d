package domain

import "strings"

// Fetch modes for career_url sources.
const (
	ModeStatic = "requests"
	ModeRender = "playwright"
)

// ParseFetchMode accepts the historical spellings of both modes.
func ParseFetchMode(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "playwright", "render", "rendered", "browser":
		return ModeRender
	default:
		return ModeStatic
	}
}

type Source struct {
	Type SourceType `yaml:"type" json:"type"`
	Slug string     `yaml:"slug,omitempty" json:"slug,omitempty"`
	URL  string     `yaml:"url,omitempty" json:"url,omitempty"`
	Mode string     `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// Key identifies a source within a company regardless of cosmetic differences.
func (s Source) Key() string {
	t := strings.ToLower(strings.TrimSpace(string(s.Type)))
	if SourceType(t).IsATS() {
		return t + ":" + strings.ToLower(strings.TrimSpace(s.Slug))
	}
	return t + ":" + strings.TrimSpace(s.URL)
}

type Company struct {
	Name         string   `yaml:"company_name" json:"company_name"`
	EmployerName string   `yaml:"employer_name,omitempty" json:"employer_name,omitempty"`
	Sources      []Source `yaml:"sources" json:"sources"`
}

// Employer falls back to the display name when no legal name is configured.
func (c Company) Employer() string {
	if e := strings.TrimSpace(c.EmployerName); e != "" {
		return e
	}
	return strings.TrimSpace(c.Name)
}

// MergeSources appends add to existing, dropping duplicates and entries without
// a type or identity. Order is stable.
func MergeSources(existing, add []Source) []Source {
	seen := map[string]bool{}
	var out []Source
	for _, src := range append(append([]Source{}, existing...), add...) {
		t := strings.TrimSpace(string(src.Type))
		ident := strings.TrimSpace(src.URL)
		if SourceType(t).IsATS() {
			ident = strings.TrimSpace(src.Slug)
		}
		if t == "" || ident == "" {
			continue
		}
		k := src.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, src)
	}
	return out
}
