// Package filter decides whether a normalized job is relevant under a
// settings snapshot and explains the decision as an ordered reason trail.
package filter

import (
	"fmt"
	"strings"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/geo"
)

// HardGatePrefixes are the reason prefixes written by location-derived gates.
// The ML rescue gate never overrides a drop carrying one of these.
var HardGatePrefixes = []string{"location:", "work_mode:", "remote_us:", "state:"}

// Engine is built once per run and is safe for concurrent use.
type Engine struct {
	roleKeywords    []string
	includeKeywords []string
	excludeKeywords []string
	preferredStates []string
	allowRemoteUS   bool
	workMode        string
}

func New(s domain.Settings) *Engine {
	visa := s.VisaRestrictionPhrases
	if visa == nil {
		visa = DefaultVisaRestrictionPhrases
	}
	exclude := make([]string, 0, len(s.ExcludeKeywords)+len(visa))
	exclude = append(exclude, s.ExcludeKeywords...)
	exclude = append(exclude, visa...)

	states := make([]string, 0, len(s.PreferredStates))
	for _, st := range s.PreferredStates {
		states = append(states, strings.ToUpper(st))
	}

	mode := strings.ToLower(strings.TrimSpace(s.WorkMode))
	if mode == "" {
		mode = string(domain.WorkModeAny)
	}

	return &Engine{
		roleKeywords:    s.RoleKeywords,
		includeKeywords: s.IncludeKeywords,
		excludeKeywords: exclude,
		preferredStates: states,
		allowRemoteUS:   s.AllowRemoteUS,
		workMode:        mode,
	}
}

func (e *Engine) Keep(j domain.NormalizedJob) bool {
	keep, _ := e.Explain(j)
	return keep
}

// Explain runs the gates in fixed order. A gate either rejects and stops or
// passes and appends its reason; a drop always carries at least one reason.
func (e *Engine) Explain(j domain.NormalizedJob) (bool, []string) {
	if !geo.IsUSLocation(j.Location) {
		return false, []string{"location:not_us"}
	}

	var reasons []string
	haystack := j.Title + "\n" + j.Description + "\n" + j.Location

	if hit, ok := firstMatch(haystack, e.excludeKeywords); ok {
		return false, append(reasons, "exclude:matched:"+hit)
	}

	if len(e.roleKeywords) > 0 {
		hit, ok := firstMatch(j.Title+"\n"+j.Description, e.roleKeywords)
		if !ok {
			return false, append(reasons, "role_keywords:no_match")
		}
		reasons = append(reasons, "role_keywords:matched:"+hit)
	}

	if len(e.includeKeywords) > 0 {
		hit, ok := firstMatch(haystack, e.includeKeywords)
		if !ok {
			return false, append(reasons, "include_keywords:no_match")
		}
		reasons = append(reasons, "include_keywords:matched:"+hit)
	}

	if e.workMode != string(domain.WorkModeAny) && string(j.WorkMode) != e.workMode {
		return false, append(reasons, fmt.Sprintf("work_mode:mismatch:%s->%s", j.WorkMode, e.workMode))
	}

	if geo.IsRemoteUS(j.Location) {
		if !e.allowRemoteUS {
			return false, append(reasons, "remote_us:blocked")
		}
		return true, append(reasons, "remote_us:allowed")
	}

	if len(e.preferredStates) > 0 {
		st, ok := geo.StateCode(j.Location)
		if !ok {
			return false, append(reasons, "state:missing")
		}
		if !contains(e.preferredStates, st) {
			return false, append(reasons, "state:not_allowed:"+st)
		}
		reasons = append(reasons, "state:allowed:"+st)
	}

	return true, reasons
}

// HasHardGate reports whether any reason came from a location-derived gate.
func HasHardGate(reasons []string) bool {
	for _, r := range reasons {
		for _, p := range HardGatePrefixes {
			if strings.HasPrefix(r, p) {
				return true
			}
		}
	}
	return false
}

// firstMatch returns the needle as configured, not its normalized form.
func firstMatch(haystack string, needles []string) (string, bool) {
	h := strings.ToLower(haystack)
	for _, n := range needles {
		n2 := strings.ToLower(strings.TrimSpace(n))
		if n2 != "" && strings.Contains(h, n2) {
			return n, true
		}
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
