// Package careerurl scrapes employer career pages. A fetch crawls a bounded
// set of same-host listing pages, then tries extraction strategies in a fixed
// order: listing markup, JSON-LD and embedded app state, an embedded
// Greenhouse or Lever board, a rendered DOM, and finally individual job
// detail pages.
package careerurl

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/scrape/greenhouse"
	"jobharvest-engine/internal/scrape/lever"
	"jobharvest-engine/internal/scrape/types"
	"jobharvest-engine/internal/scrape/util"
)

type Agent struct {
	client      *util.Client
	cfg         Config
	renderer    Renderer
	greenhouse  types.Fetcher
	lever       types.Fetcher
	detailRetry util.RetryPolicy
	log         *zap.Logger
	now         func() time.Time
}

type Option func(*Agent)

func WithConfig(cfg Config) Option          { return func(a *Agent) { a.cfg = cfg } }
func WithRenderer(r Renderer) Option        { return func(a *Agent) { a.renderer = r } }
func WithClock(now func() time.Time) Option { return func(a *Agent) { a.now = now } }

// WithDetailRetry overrides the retry policy used for detail pages.
func WithDetailRetry(p util.RetryPolicy) Option { return func(a *Agent) { a.detailRetry = p } }

// WithATS replaces the agents used once an embedded board is detected.
func WithATS(gh, lv types.Fetcher) Option {
	return func(a *Agent) {
		a.greenhouse = gh
		a.lever = lv
	}
}

func New(client *util.Client, log *zap.Logger, opts ...Option) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Agent{
		client:      client,
		cfg:         DefaultConfig(),
		detailRetry: util.DetailRetryPolicy(),
		log:         log.Named("career_url"),
		now:         time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.greenhouse == nil {
		a.greenhouse = greenhouse.New(client, log)
	}
	if a.lever == nil {
		a.lever = lever.New(client, log)
	}
	return a
}

func (a *Agent) Name() domain.SourceType { return domain.SourceCareerURL }

// Fetch returns postings for one career URL. It fails only when the seed page
// itself could not be read; every later miss just moves on to the next
// strategy.
func (a *Agent) Fetch(ctx context.Context, src domain.Source, label string) ([]domain.RawPosting, error) {
	start := strings.TrimSpace(src.URL)
	mode := domain.ParseFetchMode(src.Mode)
	log := a.log.With(zap.String("company", label), zap.String("mode", mode))
	if start == "" {
		return nil, nil
	}
	log.Info("career_url: fetch", zap.String("url", start))

	pages, err := a.crawl(ctx, start, mode, log)
	if len(pages) == 0 {
		if err != nil {
			return nil, eris.Wrapf(err, "career_url: %s", start)
		}
		return nil, nil
	}

	if jobs := fromListing(pages); len(jobs) > 0 {
		log.Info("career_url: extracted from list pages", zap.Int("jobs", len(jobs)), zap.Int("pages", len(pages)))
		return toRaw(jobs), nil
	}
	if jobs := fromJSON(pages); len(jobs) > 0 {
		log.Info("career_url: extracted from json", zap.Int("jobs", len(jobs)), zap.Int("pages", len(pages)))
		return toRaw(jobs), nil
	}

	first := pages[0]
	if jobs := a.fromDetected(ctx, DetectEmbeddedATS(first.html, first.url), first.url, label, log); len(jobs) > 0 {
		return jobs, nil
	}

	if mode == domain.ModeStatic && a.cfg.AutoRender && a.cfg.RenderEnabled && a.renderer != nil {
		if jobs := a.escalate(ctx, first.url, label, log); len(jobs) > 0 {
			return jobs, nil
		}
	}

	jobs := dedupeByURL(a.fetchDetails(ctx, first))
	log.Info("career_url: detail fallback", zap.Int("jobs", len(jobs)))
	return toRaw(jobs), nil
}

func fromListing(pages []page) []posting {
	var out []posting
	for _, p := range pages {
		out = append(out, extractListing(p)...)
	}
	return dedupeByURL(out)
}

func fromJSON(pages []page) []posting {
	var out []posting
	for _, p := range pages {
		out = append(out, extractJSONLD(p)...)
		out = append(out, extractNextData(p)...)
	}
	return dedupeByURL(keepHighSignal(out))
}

// fromDetected returns the first non-empty board among detections.
func (a *Agent) fromDetected(ctx context.Context, detections []domain.Detection, fromURL, label string, log *zap.Logger) []domain.RawPosting {
	for _, d := range detections {
		f := a.greenhouse
		if d.Type == domain.SourceLever {
			f = a.lever
		}
		if f == nil || d.Slug == "" {
			continue
		}
		log.Info("career_url: ats autodiscovery", zap.String("type", string(d.Type)), zap.String("slug", d.Slug))
		got, err := f.Fetch(ctx, domain.Source{Type: d.Type, Slug: d.Slug}, label)
		if err != nil {
			log.Warn("career_url: ats autodiscovery failed", zap.String("type", string(d.Type)), zap.String("slug", d.Slug), zap.Error(err))
			continue
		}
		if len(got) == 0 {
			continue
		}
		det := domain.Detection{Type: d.Type, Slug: d.Slug, FromURL: fromURL}
		out := make([]domain.RawPosting, 0, len(got))
		for _, p := range got {
			out = append(out, domain.DetectedPosting{Posting: p, Detection: det})
		}
		return out
	}
	return nil
}

// escalate reruns the fast strategies against a rendered copy of the first
// page.
func (a *Agent) escalate(ctx context.Context, url0, label string, log *zap.Logger) []domain.RawPosting {
	log.Info("career_url: retry with renderer", zap.String("reason", "no_jobs_extracted"))
	rctx, cancel := context.WithTimeout(ctx, a.cfg.TimeBudget)
	defer cancel()
	body, final, err := a.renderer.Render(rctx, url0)
	if err != nil {
		log.Warn("career_url: render failed", zap.Error(err))
		return nil
	}
	if body == "" {
		return nil
	}
	p := newPage(body, final)
	if jobs := fromListing([]page{p}); len(jobs) > 0 {
		log.Info("career_url: extracted from rendered list", zap.Int("jobs", len(jobs)))
		return toRaw(jobs)
	}
	if jobs := fromJSON([]page{p}); len(jobs) > 0 {
		log.Info("career_url: extracted from rendered json", zap.Int("jobs", len(jobs)))
		return toRaw(jobs)
	}
	return a.fromDetected(ctx, DetectEmbeddedATS(p.html, p.url), url0, label, log)
}

func toRaw(in []posting) []domain.RawPosting {
	out := make([]domain.RawPosting, 0, len(in))
	for _, p := range in {
		out = append(out, p)
	}
	return out
}
