package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// RawPosting is one source-native posting. The concrete types below are the
// only implementations; the normalizer switches on them.
type RawPosting interface {
	Source() SourceType
}

// FlexString decodes a JSON string or number into a string.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// NamedLocation decodes either {"name": "..."} or a bare string.
type NamedLocation struct {
	Name string `json:"name"`
}

func (l *NamedLocation) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &l.Name)
	}
	if b[0] != '{' {
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	l.Name = obj.Name
	return nil
}

type GreenhouseDepartment struct {
	Name string `json:"name"`
}

type GreenhousePosting struct {
	ID          FlexString             `json:"id"`
	Title       string                 `json:"title"`
	Location    NamedLocation          `json:"location"`
	Content     string                 `json:"content"`
	AbsoluteURL string                 `json:"absolute_url"`
	UpdatedAt   string                 `json:"updated_at"`
	Departments []GreenhouseDepartment `json:"departments"`
}

func (GreenhousePosting) Source() SourceType { return SourceGreenhouse }

// NeedsDetail reports whether the list payload lacks fields only the detail
// endpoint carries.
func (p GreenhousePosting) NeedsDetail() bool {
	return strings.TrimSpace(p.Location.Name) == "" || strings.TrimSpace(p.Content) == ""
}

// Merge overlays non-empty detail fields onto the list entry.
func (p GreenhousePosting) Merge(d GreenhousePosting) GreenhousePosting {
	if d.ID != "" {
		p.ID = d.ID
	}
	if d.Title != "" {
		p.Title = d.Title
	}
	if d.Location.Name != "" {
		p.Location = d.Location
	}
	if d.Content != "" {
		p.Content = d.Content
	}
	if d.AbsoluteURL != "" {
		p.AbsoluteURL = d.AbsoluteURL
	}
	if d.UpdatedAt != "" {
		p.UpdatedAt = d.UpdatedAt
	}
	if len(d.Departments) > 0 {
		p.Departments = d.Departments
	}
	return p
}

type LeverCategories struct {
	Location   string `json:"location"`
	Department string `json:"department"`
	Team       string `json:"team"`
	Commitment string `json:"commitment"`
}

type LeverPosting struct {
	ID          string          `json:"id"`
	Shortcode   string          `json:"shortcode"`
	Text        string          `json:"text"`
	Title       string          `json:"title"`
	Location    string          `json:"location"`
	Categories  LeverCategories `json:"categories"`
	Description string          `json:"description"`
	HostedURL   string          `json:"hostedUrl"`
	ApplyURL    string          `json:"applyUrl"`
	CreatedAt   int64           `json:"createdAt"`
}

func (LeverPosting) Source() SourceType { return SourceLever }

// CareerPosting is a posting scraped from a career page.
type CareerPosting struct {
	ID       string
	Title    string
	Location string
	Content  string
	URL      string
}

func (CareerPosting) Source() SourceType { return SourceCareerURL }

// Detection records that a career page resolved to an ATS board.
type Detection struct {
	Type    SourceType `json:"type"`
	Slug    string     `json:"slug"`
	FromURL string     `json:"from_url,omitempty"`
}

// DetectedPosting wraps an ATS posting reached through a career page.
type DetectedPosting struct {
	Posting   RawPosting
	Detection Detection
}

func (d DetectedPosting) Source() SourceType { return d.Detection.Type }

// PostedAt renders the Lever epoch-millis timestamp as RFC 3339, or "".
func (p LeverPosting) PostedAt() string {
	if p.CreatedAt <= 0 {
		return ""
	}
	return time.UnixMilli(p.CreatedAt).UTC().Format(time.RFC3339)
}
