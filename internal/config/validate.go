package config

import (
	"fmt"
	"strings"

	"jobharvest-engine/internal/domain"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	return fmt.Errorf("config validation failed:\n- %s", strings.Join(v.Errors, "\n- "))
}

// NormalizeAndValidate returns a normalized copy of cfg and what is wrong
// with it. Lists are trimmed and de-duplicated case-insensitively, keeping
// the first spelling; nil lists stay nil.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string) []string {
		if xs == nil {
			return nil
		}
		seen := map[string]bool{}
		ys := []string{}
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	s := &out.Settings
	s.RoleKeywords = trimList(s.RoleKeywords)
	s.IncludeKeywords = trimList(s.IncludeKeywords)
	s.ExcludeKeywords = trimList(s.ExcludeKeywords)
	s.VisaRestrictionPhrases = trimList(s.VisaRestrictionPhrases)
	s.PreferredStates = trimList(s.PreferredStates)
	for i, st := range s.PreferredStates {
		s.PreferredStates[i] = strings.ToUpper(st)
	}
	s.WorkMode = strings.ToLower(strings.TrimSpace(s.WorkMode))
	if s.WorkMode == "" {
		s.WorkMode = string(domain.WorkModeAny)
	}
	s.MLMode = strings.ToLower(strings.TrimSpace(s.MLMode))
	if s.MLMode == "" {
		s.MLMode = domain.MLModeRankOnly
	}
	out.Scheduler.Mode = strings.ToLower(strings.TrimSpace(out.Scheduler.Mode))
	out.ML.Backend = strings.ToLower(strings.TrimSpace(out.ML.Backend))
	if out.ML.Backend == "" {
		out.ML.Backend = BackendNone
	}

	// ---- Validation rules ----

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}
	if strings.TrimSpace(out.App.DataDir) == "" {
		res.addErr("app.data_dir is required")
	}

	if out.HTTP.TimeoutSeconds <= 0 {
		res.addErr("http.timeout_seconds must be > 0")
	}
	if out.HTTP.RequestsPerSecond < 0 {
		res.addErr("http.requests_per_second must be >= 0")
	} else if out.HTTP.RequestsPerSecond > 20 {
		res.addWarn("http.requests_per_second is high (%.1f) and may get you rate limited.", out.HTTP.RequestsPerSecond)
	}

	c := out.Crawl
	for name, v := range map[string]int{
		"crawl.max_pages":              c.MaxPages,
		"crawl.time_budget_seconds":    c.TimeBudgetSeconds,
		"crawl.list_timeout_seconds":   c.ListTimeoutSeconds,
		"crawl.detail_timeout_seconds": c.DetailTimeoutSeconds,
		"crawl.no_progress_pages":      c.NoProgressPages,
	} {
		if v <= 0 {
			res.addErr("%s must be > 0", name)
		}
	}
	if c.MaxCandidates < 0 || c.MaxFetch < 0 {
		res.addErr("crawl.max_candidates and crawl.max_fetch must be >= 0")
	}

	if out.Fetch.MaxWorkers <= 0 {
		res.addErr("fetch.max_workers must be > 0")
	} else if out.Fetch.MaxWorkers > 32 {
		res.addWarn("fetch.max_workers is %d; most boards will throttle you.", out.Fetch.MaxWorkers)
	}

	switch domain.WorkMode(s.WorkMode) {
	case domain.WorkModeAny, domain.WorkModeRemote, domain.WorkModeHybrid, domain.WorkModeOnsite:
	default:
		res.addErr("settings.work_mode must be any, remote, hybrid or onsite (got %q)", s.WorkMode)
	}
	if s.MLMode != domain.MLModeRankOnly && s.MLMode != domain.MLModeRescue {
		res.addErr("settings.ml_mode must be rank_only or rescue (got %q)", s.MLMode)
	}
	if s.MLRescueThreshold < 0 || s.MLRescueThreshold > 1 {
		res.addErr("settings.ml_rescue_threshold must be within [0,1]")
	}
	for _, st := range s.PreferredStates {
		if len(st) != 2 {
			res.addWarn("settings.preferred_states entry %q is not a two-letter code.", st)
		}
	}
	if len(s.RoleKeywords) == 0 {
		res.addWarn("settings.role_keywords is empty; every title passes the role gate.")
	}

	switch out.ML.Backend {
	case BackendNone, BackendStored:
	case BackendKeyword:
		if len(out.ML.Rules) == 0 {
			res.addWarn("ml.backend is keyword but ml.rules is empty; the model will be unavailable.")
		}
	default:
		res.addErr("ml.backend must be none, stored or keyword (got %q)", out.ML.Backend)
	}
	if s.MLEnabled && out.ML.Backend == BackendNone {
		res.addWarn("settings.ml_enabled is true but ml.backend is none; rescue will be annotated ml:unavailable.")
	}
	checkTerms := func(name string, i int, tag string, terms []string) {
		if tag == "" {
			res.addErr("%s[%d] needs a tag", name, i)
		}
		if len(terms) == 0 {
			res.addErr("%s[%d].any must have at least 1 term", name, i)
		}
		for j, t := range terms {
			if strings.TrimSpace(t) == "" {
				res.addErr("%s[%d].any[%d] cannot be empty", name, i, j)
			}
		}
	}
	for i, r := range out.ML.Rules {
		checkTerms("ml.rules", i, r.Tag, r.Any)
	}
	for i, p := range out.ML.Penalties {
		checkTerms("ml.penalties", i, p.Reason, p.Any)
	}

	if out.H1B.Enabled && len(out.H1B.Years) == 0 {
		res.addWarn("h1b.enabled is true but h1b.years is empty; every job will be marked no.")
	}

	switch out.Scheduler.Mode {
	case SchedulerOff, SchedulerOnce, SchedulerLoop:
	default:
		res.addErr("scheduler.mode must be off, once or loop (got %q)", out.Scheduler.Mode)
	}
	if out.Scheduler.Mode == SchedulerLoop && out.Scheduler.IntervalMinutes <= 0 {
		res.addErr("scheduler.interval_minutes must be > 0 in loop mode")
	}

	out.Companies = append([]domain.Company(nil), cfg.Companies...)
	names := map[string]bool{}
	for i, co := range out.Companies {
		name := strings.TrimSpace(co.Name)
		if name == "" {
			res.addErr("companies[%d].company_name is required", i)
			continue
		}
		if names[strings.ToLower(name)] {
			res.addWarn("company %q is listed more than once.", name)
		}
		names[strings.ToLower(name)] = true
		out.Companies[i].Sources = domain.MergeSources(nil, co.Sources)
		if len(out.Companies[i].Sources) == 0 {
			res.addWarn("company %q has no usable sources.", name)
		}
		for _, src := range out.Companies[i].Sources {
			if !src.Type.Valid() {
				res.addWarn("company %q has unsupported source type %q.", name, src.Type)
			}
		}
	}

	return out, res
}
