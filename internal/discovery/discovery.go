// Package discovery suggests and live-verifies ATS boards for a company so it
// can be onboarded. It reads nothing from and writes nothing to the store.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/scrape/greenhouse"
	"jobharvest-engine/internal/scrape/lever"
	"jobharvest-engine/internal/scrape/util"
)

const (
	ModeValidateExisting = "validate_existing"
	ModeExpand           = "expand"

	DefaultWorkers       = 8
	DefaultVerifyTimeout = 6 * time.Second
	DefaultPageTimeout   = 8 * time.Second
	maxChecksPerType     = 14

	confSeed     = 0.99
	confHost     = 0.95
	confVerified = 0.9
	confHTML     = 0.8
	confPageOK   = 0.7
	confGuess    = 0.55
	confPageBad  = 0.4
	confPageErr  = 0.3
)

var reservedSlugs = map[string]bool{
	"embed": true, "jobs": true, "job": true, "departments": true,
	"department": true, "board": true, "boards": true,
}

var (
	ghHostedRE    = regexp.MustCompile(`boards\.greenhouse\.io/([a-z0-9-]+)`)
	ghAPIRE       = regexp.MustCompile(`boards-api\.greenhouse\.io/(?:v1/)?boards/([a-z0-9-]+)`)
	ghEmbedRE     = regexp.MustCompile(`greenhouse\.io/[^\s"']*\bfor=([a-z0-9-]+)`)
	leverAPIRE    = regexp.MustCompile(`api\.lever\.co/v0/postings/([a-z0-9-]+)`)
	leverHostedRE = regexp.MustCompile(`jobs\.lever\.co/([a-z0-9-]+)`)
)

type Request struct {
	CompanyName string          `json:"company_name"`
	CareerURL   string          `json:"career_url"`
	Seeds       []domain.Source `json:"seed_sources"`
	Mode        string          `json:"discovery_mode"`
}

type Result struct {
	CompanyName      string          `json:"company_name"`
	CareerURL        string          `json:"career_url"`
	DiscoveryMode    string          `json:"discovery_mode"`
	SeedSources      []domain.Source `json:"seed_sources"`
	Pass1VerifiedAny bool            `json:"pass1_verified_any"`
	Guessed          bool            `json:"guessed"`
	Candidates       []Candidate     `json:"candidates"`
	Recommended      []Candidate     `json:"recommended"`
}

// RecommendedSources is the recommended subset as company sources.
func (r Result) RecommendedSources() []domain.Source {
	out := make([]domain.Source, 0, len(r.Recommended))
	for _, c := range r.Recommended {
		out = append(out, c.Source())
	}
	return out
}

type Service struct {
	client        *util.Client
	gh            *greenhouse.Agent
	lv            *lever.Agent
	workers       int
	verifyTimeout time.Duration
	pageTimeout   time.Duration
	maxGuesses    int
	log           *zap.Logger
}

type Option func(*Service)

func WithWorkers(n int) Option { return func(s *Service) { s.workers = n } }
func WithTimeouts(verify, page time.Duration) Option {
	return func(s *Service) { s.verifyTimeout, s.pageTimeout = verify, page }
}
func WithMaxGuesses(n int) Option { return func(s *Service) { s.maxGuesses = n } }

// WithATS points verification at the given agents' endpoints.
func WithATS(gh *greenhouse.Agent, lv *lever.Agent) Option {
	return func(s *Service) { s.gh, s.lv = gh, lv }
}

// New builds a Service. Probes are single attempts whatever the client's
// retry policy; the status is the answer.
func New(client *util.Client, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		client:        client,
		workers:       DefaultWorkers,
		verifyTimeout: DefaultVerifyTimeout,
		pageTimeout:   DefaultPageTimeout,
		maxGuesses:    DefaultMaxGuesses,
		log:           log.Named("discovery"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.gh == nil {
		s.gh = greenhouse.New(client, log)
	}
	if s.lv == nil {
		s.lv = lever.New(client, log)
	}
	if s.workers <= 0 {
		s.workers = 1
	}
	return s
}

// Discover runs pass 1 (seeds and career page) and, when nothing verified or
// the caller asked to expand, pass 2 (slug guesses).
func (s *Service) Discover(ctx context.Context, req Request) Result {
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = ModeValidateExisting
	}
	log := s.log.With(zap.String("company", req.CompanyName), zap.String("mode", mode))

	var pass1 []Candidate
	for _, src := range req.Seeds {
		t := domain.SourceType(strings.ToLower(strings.TrimSpace(string(src.Type))))
		slug := strings.ToLower(strings.TrimSpace(src.Slug))
		if !t.IsATS() || slug == "" {
			continue
		}
		if t == domain.SourceGreenhouse && reservedSlugs[slug] {
			continue
		}
		pass1 = append(pass1, Candidate{Type: t, Slug: slug, Confidence: confSeed, Evidence: []string{"seed"}})
	}
	if u := strings.TrimSpace(req.CareerURL); u != "" {
		pass1 = append(pass1, s.DetectFromCareerURL(ctx, u)...)
	}
	pass1 = dedupe(pass1)

	final := s.Verify(ctx, pass1)
	anyVerified := false
	for _, c := range final {
		if c.isATS() && c.Verified {
			anyVerified = true
			break
		}
	}

	guess := mode == ModeExpand || !anyVerified
	if guess {
		expanded := append([]Candidate(nil), pass1...)
		for _, slug := range GuessSlugs(req.CompanyName, s.maxGuesses) {
			if reservedSlugs[slug] {
				continue
			}
			expanded = append(expanded,
				Candidate{Type: domain.SourceGreenhouse, Slug: slug, Confidence: confGuess, Evidence: []string{"guess"}},
				Candidate{Type: domain.SourceLever, Slug: slug, Confidence: confGuess, Evidence: []string{"guess"}},
			)
		}
		final = s.Verify(ctx, dedupe(expanded))
	}

	var rec []Candidate
	for _, c := range final {
		if c.isATS() && c.Verified {
			rec = append(rec, c)
		}
	}
	for _, c := range final {
		if c.Type == domain.SourceCareerURL && c.URL != "" {
			rec = append(rec, c)
			break
		}
	}

	log.Info("discovery: done",
		zap.Bool("pass1_verified_any", anyVerified),
		zap.Bool("guessed", guess),
		zap.Int("candidates", len(final)),
		zap.Int("recommended", len(rec)),
	)

	return Result{
		CompanyName:      req.CompanyName,
		CareerURL:        req.CareerURL,
		DiscoveryMode:    mode,
		SeedSources:      req.Seeds,
		Pass1VerifiedAny: anyVerified,
		Guessed:          guess,
		Candidates:       final,
		Recommended:      rec,
	}
}

// DetectFromCareerURL fetches the career page once and reads ATS identities
// from its final host and its HTML. The page itself is always returned as a
// career_url candidate.
func (s *Service) DetectFromCareerURL(ctx context.Context, careerURL string) []Candidate {
	if careerURL == "" {
		return nil
	}
	res, err := s.client.Probe(ctx, careerURL, s.pageTimeout, "text/html,application/json")
	if err != nil {
		s.log.Debug("discovery: career page fetch failed", zap.String("url", careerURL), zap.Error(err))
		return []Candidate{{
			Type: domain.SourceCareerURL, URL: careerURL, Mode: domain.ModeStatic,
			Confidence: confPageErr, Evidence: []string{"career_url"}, Error: err.Error(),
		}}
	}

	base := []string{"career_url:" + careerURL}
	final := res.FinalURL
	if final == "" {
		final = careerURL
	}
	if final != careerURL {
		base = append(base, "final_url:"+final)
	}
	evidence := func(label string) []string {
		return append(append([]string(nil), base...), label)
	}

	var out []Candidate
	add := func(t domain.SourceType, slug string, conf float64, label string) {
		slug = strings.ToLower(slug)
		if t == domain.SourceGreenhouse && reservedSlugs[slug] {
			return
		}
		out = append(out, Candidate{Type: t, Slug: slug, Confidence: conf, Evidence: evidence(label)})
	}

	host := util.Host(final)
	lowFinal := strings.ToLower(final)
	if strings.Contains(host, "boards.greenhouse.io") {
		if m := ghHostedRE.FindStringSubmatch(lowFinal); m != nil {
			add(domain.SourceGreenhouse, m[1], confHost, "host:boards.greenhouse.io")
		}
	}
	if strings.Contains(host, "jobs.lever.co") {
		if m := leverHostedRE.FindStringSubmatch(lowFinal); m != nil {
			add(domain.SourceLever, m[1], confHost, "host:jobs.lever.co")
		}
	}

	html := strings.ToLower(string(res.Body))
	for _, sc := range []struct {
		re    *regexp.Regexp
		t     domain.SourceType
		label string
	}{
		{ghAPIRE, domain.SourceGreenhouse, "html:gh_api"},
		{ghHostedRE, domain.SourceGreenhouse, "html:gh_hosted"},
		{ghEmbedRE, domain.SourceGreenhouse, "html:gh_embed"},
		{leverAPIRE, domain.SourceLever, "html:lever_api"},
		{leverHostedRE, domain.SourceLever, "html:lever_hosted"},
	} {
		for _, m := range sc.re.FindAllStringSubmatch(html, -1) {
			add(sc.t, m[1], confHTML, sc.label)
		}
	}

	conf := confPageBad
	if res.Status >= 200 && res.Status < 400 {
		conf = confPageOK
	}
	out = append(out, Candidate{
		Type: domain.SourceCareerURL, URL: careerURL, Mode: domain.ModeStatic,
		Confidence: conf, Evidence: evidence(fmt.Sprintf("http:%d", res.Status)),
	})
	return dedupe(out)
}

// Verify probes up to 14 Greenhouse and 14 Lever candidates concurrently and
// returns them with the non-ATS candidates, ranked. ATS candidates beyond the
// per-type cap are dropped.
func (s *Service) Verify(ctx context.Context, cands []Candidate) []Candidate {
	var gh, lv, others []Candidate
	for _, c := range cands {
		switch {
		case c.Type == domain.SourceGreenhouse && c.Slug != "":
			gh = append(gh, c)
		case c.Type == domain.SourceLever && c.Slug != "":
			lv = append(lv, c)
		default:
			others = append(others, c)
		}
	}
	if len(gh) > maxChecksPerType {
		gh = gh[:maxChecksPerType]
	}
	if len(lv) > maxChecksPerType {
		lv = lv[:maxChecksPerType]
	}
	checks := append(gh, lv...)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range checks {
		i := i
		g.Go(func() error {
			c := &checks[i]
			n, err := s.probe(gctx, *c)
			if err != nil {
				c.Error = err.Error()
				return nil
			}
			c.Verified = true
			c.JobCount = &n
			if c.Confidence < confVerified {
				c.Confidence = confVerified
			}
			return nil
		})
	}
	_ = g.Wait()

	out := append(checks, others...)
	rank(out)
	return out
}

// probe returns the live job count for an ATS candidate.
func (s *Service) probe(ctx context.Context, c Candidate) (int, error) {
	var u string
	if c.Type == domain.SourceGreenhouse {
		u = s.gh.ListURL(c.Slug, false)
	} else {
		u = s.lv.ListURL(c.Slug)
	}

	res, err := s.client.Probe(ctx, u, s.verifyTimeout, "application/json")
	if err != nil {
		return 0, err
	}
	if res.Status != 200 {
		return 0, fmt.Errorf("HTTP %d", res.Status)
	}

	if c.Type == domain.SourceGreenhouse {
		var env struct {
			Jobs []json.RawMessage `json:"jobs"`
		}
		if err := json.Unmarshal(res.Body, &env); err != nil || env.Jobs == nil {
			return 0, errUnexpected
		}
		return len(env.Jobs), nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(res.Body, &list); err != nil || list == nil {
		return 0, errUnexpected
	}
	return len(list), nil
}

var errUnexpected = errors.New("Unexpected response")
