package careerurl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/scrape/util"
)

// crawl walks same-host listing pages breadth-first from start. Both the page
// cap and the wall-clock budget are checked on every iteration, and a seen
// set makes self-linking pagination terminate. The returned error is the
// first fetch failure, meaningful only when no page was read.
func (a *Agent) crawl(ctx context.Context, start, mode string, log *zap.Logger) ([]page, error) {
	maxPages := a.cfg.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	began := a.now()
	inBudget := func() bool { return a.now().Sub(began) <= a.cfg.TimeBudget }
	baseHost := util.Host(start)

	seen := map[string]bool{}
	queue := []string{start}
	enqueue := func(urls []string) {
		for _, u := range urls {
			if u != "" && util.Host(u) == baseHost && !seen[u] {
				queue = append(queue, u)
			}
		}
	}

	var (
		pages    []page
		firstErr error
	)
	for len(queue) > 0 && len(pages) < maxPages && inBudget() && ctx.Err() == nil {
		u := queue[0]
		queue = queue[1:]
		if u == "" || seen[u] {
			continue
		}
		if h := util.Host(u); h != "" && h != baseHost {
			continue
		}

		body, final, err := a.fetchPage(ctx, u, mode, a.cfg.TimeBudget-a.now().Sub(began), log)
		seen[u] = true
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.Debug("career_url: page fetch failed", zap.String("url", u), zap.Error(err))
			continue
		}
		if body == "" {
			continue
		}
		seen[final] = true

		p := newPage(body, final)
		pages = append(pages, p)
		if len(pages) >= maxPages || !inBudget() {
			break
		}

		pg := discoverPagination(p.doc, final)
		enqueue(pg.links)
		if pg.maxPage > 0 {
			enqueue(pageParamURLs(final, pg.maxPage))
		}
		if pg.numeric != nil {
			enqueue(numericParamURLs(final, *pg.numeric))
		}
	}
	return pages, firstErr
}

// fetchPage reads one listing page statically or through the renderer. A
// render request while rendering is disabled yields an empty page. Rendering
// is bounded by left, the time remaining in the crawl budget.
func (a *Agent) fetchPage(ctx context.Context, u, mode string, left time.Duration, log *zap.Logger) (string, string, error) {
	if mode == domain.ModeRender {
		if !a.cfg.RenderEnabled || a.renderer == nil {
			log.Info("career_url: rendering disabled, skipping page", zap.String("url", u))
			return "", u, nil
		}
		rctx, cancel := context.WithTimeout(ctx, left)
		defer cancel()
		return a.renderer.Render(rctx, u)
	}
	res, err := a.client.Get(ctx, u, a.cfg.ListTimeout, "text/html")
	if err != nil {
		return "", u, err
	}
	final := res.FinalURL
	if final == "" {
		final = u
	}
	return string(res.Body), final, nil
}
