package lever

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

const DefaultBaseURL = "https://api.lever.co"

// Agent reads the public Lever postings API (one unpaginated list per board).
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
		log:     log.Named("lever"),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Agent) Name() domain.SourceType { return domain.SourceLever }

func (a *Agent) ListURL(slug string) string {
	return fmt.Sprintf("%s/v0/postings/%s?mode=json", a.baseURL, url.PathEscape(slug))
}

func (a *Agent) Fetch(ctx context.Context, src domain.Source, label string) ([]domain.RawPosting, error) {
	postings, err := a.FetchBoard(ctx, src.Slug)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RawPosting, 0, len(postings))
	for _, p := range postings {
		out = append(out, p)
	}
	a.log.Debug("lever: fetched board", zap.String("company", label), zap.String("slug", src.Slug), zap.Int("jobs", len(out)))
	return out, nil
}

func (a *Agent) FetchBoard(ctx context.Context, slug string) ([]domain.LeverPosting, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, eris.New("lever: empty slug")
	}

	var items []json.RawMessage
	var body json.RawMessage
	if err := a.client.GetJSON(ctx, a.ListURL(slug), a.timeout, &body); err != nil {
		return nil, eris.Wrapf(err, "lever: list %s", slug)
	}
	if err := json.Unmarshal(body, &items); err != nil {
		a.log.Warn("lever: response is not a list", zap.String("slug", slug))
		return nil, nil
	}

	out := make([]domain.LeverPosting, 0, len(items))
	for _, raw := range items {
		var p domain.LeverPosting
		if err := json.Unmarshal(raw, &p); err != nil {
			a.log.Debug("lever: skip malformed posting", zap.String("slug", slug), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
