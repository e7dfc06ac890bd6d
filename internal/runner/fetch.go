package runner

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/normalize"
)

// batch is one source's raw postings with the origin they normalize under.
type batch struct {
	origin normalize.Origin
	raws   []domain.RawPosting
}

type companyResult struct {
	batches []batch
	errs    map[string]string
}

// fetchAll reads every task with at most MaxWorkers companies in flight.
// A company that exceeds its timeout or fails leaves an error entry and no
// postings; nothing downstream starts until every company has reported.
func (r *Runner) fetchAll(ctx context.Context, tasks []companyTask, log *zap.Logger) ([]batch, map[string]string) {
	results := make([]companyResult, len(tasks))

	var g errgroup.Group
	g.SetLimit(r.opts.MaxWorkers)
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, r.opts.CompanyTimeout)
			defer cancel()
			results[i] = r.fetchCompany(cctx, t, log)
			return nil
		})
	}
	_ = g.Wait()

	var batches []batch
	errs := map[string]string{}
	for _, res := range results {
		batches = append(batches, res.batches...)
		for k, v := range res.errs {
			errs[k] = v
		}
	}
	return batches, errs
}

func (r *Runner) fetchCompany(ctx context.Context, t companyTask, log *zap.Logger) companyResult {
	res := companyResult{errs: map[string]string{}}
	start := time.Now()
	for _, src := range t.sources {
		key := t.label + ":" + string(src.Type)
		if err := ctx.Err(); err != nil {
			res.errs[key] = "company timeout exceeded"
			continue
		}
		f, ok := r.agents[src.Type]
		if !ok {
			res.errs[key] = "Unsupported source type: " + string(src.Type)
			continue
		}
		if src.Type.IsATS() && strings.TrimSpace(src.Slug) == "" {
			res.errs[key] = "Missing company_slug"
			continue
		}

		raws, err := safeFetch(ctx, f.Fetch, src, t.label)
		if err != nil {
			log.Warn("runner: source failed", zap.String("company", t.label), zap.String("type", string(src.Type)), zap.Error(err))
			res.errs[key] = err.Error()
			continue
		}
		res.batches = append(res.batches, batch{
			origin: normalize.Origin{Label: t.label, Slug: src.Slug, Employer: t.employer},
			raws:   raws,
		})
	}
	log.Debug("runner: company done",
		zap.String("company", t.label),
		zap.Int("sources", len(t.sources)),
		zap.Int("errors", len(res.errs)),
		zap.Duration("took", time.Since(start)),
	)
	return res
}

type fetchFunc func(context.Context, domain.Source, string) ([]domain.RawPosting, error)

// safeFetch turns an agent panic into a source error.
func safeFetch(ctx context.Context, fn fetchFunc, src domain.Source, label string) (raws []domain.RawPosting, err error) {
	defer func() {
		if p := recover(); p != nil {
			raws, err = nil, eris.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, src, label)
}

// detections lists the ATS boards career pages resolved to, once per board.
func detections(batches []batch) map[string][]domain.Detection {
	out := map[string][]domain.Detection{}
	seen := map[string]bool{}
	for _, b := range batches {
		for _, raw := range b.raws {
			var d domain.Detection
			switch p := raw.(type) {
			case domain.DetectedPosting:
				d = p.Detection
			case *domain.DetectedPosting:
				d = p.Detection
			default:
				continue
			}
			if !d.Type.IsATS() || d.Slug == "" {
				continue
			}
			k := companyKey(b.origin.Label) + "|" + string(d.Type) + "|" + strings.ToLower(d.Slug)
			if seen[k] {
				continue
			}
			seen[k] = true
			out[b.origin.Label] = append(out[b.origin.Label], d)
		}
	}
	return out
}
