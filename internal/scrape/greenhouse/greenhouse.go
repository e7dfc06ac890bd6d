package greenhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/scrape/util"
)

const DefaultBaseURL = "https://boards-api.greenhouse.io"

// Agent reads a public Greenhouse job board. List entries missing a location
// or body are completed from the per-job endpoint.
type Agent struct {
	client  *util.Client
	baseURL string
	timeout time.Duration
	log     *zap.Logger
}

type Option func(*Agent)

func WithBaseURL(u string) Option        { return func(a *Agent) { a.baseURL = strings.TrimRight(u, "/") } }
func WithTimeout(d time.Duration) Option { return func(a *Agent) { a.timeout = d } }

func New(client *util.Client, log *zap.Logger, opts ...Option) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Agent{
		client:  client,
		baseURL: DefaultBaseURL,
		timeout: 30 * time.Second,
		log:     log.Named("greenhouse"),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Agent) Name() domain.SourceType { return domain.SourceGreenhouse }

// ListURL is the board endpoint for slug.
func (a *Agent) ListURL(slug string, content bool) string {
	u := fmt.Sprintf("%s/v1/boards/%s/jobs", a.baseURL, url.PathEscape(slug))
	if content {
		u += "?content=true"
	}
	return u
}

func (a *Agent) detailURL(slug, id string) string {
	return fmt.Sprintf("%s/v1/boards/%s/jobs/%s?content=true", a.baseURL, url.PathEscape(slug), url.PathEscape(id))
}

func (a *Agent) Fetch(ctx context.Context, src domain.Source, label string) ([]domain.RawPosting, error) {
	jobs, err := a.FetchBoard(ctx, src.Slug)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RawPosting, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j)
	}
	a.log.Debug("greenhouse: fetched board", zap.String("company", label), zap.String("slug", src.Slug), zap.Int("jobs", len(out)))
	return out, nil
}

func (a *Agent) FetchBoard(ctx context.Context, slug string) ([]domain.GreenhousePosting, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, eris.New("greenhouse: empty slug")
	}

	var envelope struct {
		Jobs json.RawMessage `json:"jobs"`
	}
	if err := a.client.GetJSON(ctx, a.ListURL(slug, true), a.timeout, &envelope); err != nil {
		return nil, eris.Wrapf(err, "greenhouse: list %s", slug)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(envelope.Jobs, &items); err != nil {
		a.log.Warn("greenhouse: jobs is not a list", zap.String("slug", slug))
		return nil, nil
	}

	out := make([]domain.GreenhousePosting, 0, len(items))
	for _, raw := range items {
		var p domain.GreenhousePosting
		if err := json.Unmarshal(raw, &p); err != nil {
			a.log.Debug("greenhouse: skip malformed job", zap.String("slug", slug), zap.Error(err))
			continue
		}
		if p.NeedsDetail() && p.ID != "" {
			p = a.hydrate(ctx, slug, p)
		}
		out = append(out, p)
	}
	return out, nil
}

// hydrate merges the detail payload; a failed detail fetch keeps the list entry.
func (a *Agent) hydrate(ctx context.Context, slug string, p domain.GreenhousePosting) domain.GreenhousePosting {
	var d domain.GreenhousePosting
	if err := a.client.GetJSON(ctx, a.detailURL(slug, string(p.ID)), a.timeout, &d); err != nil {
		a.log.Debug("greenhouse: detail fetch failed", zap.String("slug", slug), zap.String("id", string(p.ID)), zap.Error(err))
		return p
	}
	return p.Merge(d)
}
