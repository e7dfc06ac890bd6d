package domain

import "strings"

type SourceType string

const (
	SourceGreenhouse SourceType = "greenhouse"
	SourceLever      SourceType = "lever"
	SourceCareerURL  SourceType = "career_url"
)

func (t SourceType) Valid() bool {
	switch t {
	case SourceGreenhouse, SourceLever, SourceCareerURL:
		return true
	}
	return false
}

// IsATS reports whether the source is backed by a public ATS API.
func (t SourceType) IsATS() bool {
	return t == SourceGreenhouse || t == SourceLever
}

type WorkMode string

const (
	WorkModeRemote  WorkMode = "remote"
	WorkModeHybrid  WorkMode = "hybrid"
	WorkModeOnsite  WorkMode = "onsite"
	WorkModeUnknown WorkMode = "unknown"
	// WorkModeAny is only meaningful as a preference.
	WorkModeAny WorkMode = "any"
)

func ParseWorkMode(s string) WorkMode {
	switch WorkMode(strings.ToLower(strings.TrimSpace(s))) {
	case WorkModeRemote:
		return WorkModeRemote
	case WorkModeHybrid:
		return WorkModeHybrid
	case WorkModeOnsite:
		return WorkModeOnsite
	case WorkModeAny, "":
		return WorkModeAny
	default:
		return WorkModeUnknown
	}
}

const (
	H1BYes = "yes"
	H1BNo  = "no"
)

// NormalizedJob is the canonical posting shape shared by the filter, identity
// engine and exports. Values are treated as immutable once built; the With*
// helpers return modified copies.
type NormalizedJob struct {
	SourceType      SourceType `json:"source_type"`
	CompanyLabel    string     `json:"company_name"`
	CompanySlug     string     `json:"company_slug"`
	EmployerName    string     `json:"employer_name"`
	JobID           string     `json:"job_id"`
	Title           string     `json:"title"`
	Location        string     `json:"location"`
	Description     string     `json:"description"`
	URL             string     `json:"url"`
	Department      string     `json:"department"`
	Team            string     `json:"team"`
	DatePosted      string     `json:"date_posted"`
	WorkMode        WorkMode   `json:"work_mode"`
	DetectedFromURL string     `json:"detected_from_url,omitempty"`
	PastH1BSupport  string     `json:"past_h1b_support"`
	DedupeKey       string     `json:"dedupe_key"`
}

func (j NormalizedJob) WithDedupeKey(key string) NormalizedJob {
	j.DedupeKey = key
	return j
}

func (j NormalizedJob) WithH1BSupport(yes bool) NormalizedJob {
	if yes {
		j.PastH1BSupport = H1BYes
	} else {
		j.PastH1BSupport = H1BNo
	}
	return j
}

func (j NormalizedJob) WithDetection(d Detection) NormalizedJob {
	if d.Type != "" {
		j.SourceType = d.Type
	}
	if d.Slug != "" {
		j.CompanySlug = d.Slug
	}
	j.DetectedFromURL = d.FromURL
	return j
}

// StoredJob is a NormalizedJob as it leaves the identity engine.
type StoredJob struct {
	NormalizedJob
	FirstSeen string `json:"first_seen"`
}
