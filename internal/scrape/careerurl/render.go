package careerurl

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Renderer returns the DOM of url after client-side scripts ran.
type Renderer interface {
	Render(ctx context.Context, url string) (html, finalURL string, err error)
}

var loadMoreSelectors = []string{
	"button:has-text('Load more')",
	"button:has-text('Show more')",
	"button:has-text('More jobs')",
	"[data-qa*='load'] button",
	"button[aria-label*='Load']",
	"a:has-text('Load more')",
	"a:has-text('Show more')",
}

// Growth below this many bytes does not count as progress.
const minGrowthBytes = 200

const maxGotoTimeout = 60 * time.Second

// PlaywrightRenderer drives headless Chromium. Each Render starts its own
// browser so concurrent company tasks never share page state.
type PlaywrightRenderer struct {
	budget     time.Duration
	noProgress int
	userAgent  string
	log        *zap.Logger
}

func NewPlaywrightRenderer(cfg Config, userAgent string, log *zap.Logger) *PlaywrightRenderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &PlaywrightRenderer{
		budget:     cfg.TimeBudget,
		noProgress: cfg.NoProgress,
		userAgent:  userAgent,
		log:        log.Named("render"),
	}
}

func (r *PlaywrightRenderer) Render(ctx context.Context, url string) (string, string, error) {
	pw, err := playwright.Run()
	if err != nil {
		return "", url, eris.Wrap(err, "render: start playwright")
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		return "", url, eris.Wrap(err, "render: launch chromium")
	}
	defer browser.Close()

	pg, err := browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String(r.userAgent),
	})
	if err != nil {
		return "", url, eris.Wrap(err, "render: new page")
	}
	defer pg.Close()

	left := remaining(ctx, r.budget)
	if left <= 0 {
		return "", url, eris.Errorf("render: no time left for %s", url)
	}
	if _, err := pg.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(min(left, maxGotoTimeout).Milliseconds())),
	}); err != nil {
		return "", url, eris.Wrapf(err, "render: goto %s", url)
	}
	pg.WaitForTimeout(800)

	rounds := settle(ctx, pwPage{pg}, remaining(ctx, r.budget), r.noProgress)
	r.log.Debug("render: settled", zap.String("url", url), zap.Int("rounds", rounds))

	html, err := pg.Content()
	if err != nil {
		return "", url, eris.Wrap(err, "render: read content")
	}
	final := pg.URL()
	if final == "" {
		final = url
	}
	return html, final, nil
}

// remaining caps budget by the time left before ctx's deadline.
func remaining(ctx context.Context, budget time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		budget = min(budget, time.Until(dl))
	}
	return max(budget, 0)
}

// domPage is the part of a browser page the settle loop drives.
type domPage interface {
	ClickLoadMore() bool
	ScrollToBottom()
	Wait(ms float64)
	Content() string
}

// settle clicks load-more controls and scrolls until the DOM stops growing
// for noProgress rounds or the budget runs out. It returns the rounds run.
func settle(ctx context.Context, p domPage, budget time.Duration, noProgress int) int {
	if noProgress < 1 {
		noProgress = 1
	}
	start := time.Now()
	lastLen, stalled, rounds := 0, 0, 0
	for time.Since(start) < budget && ctx.Err() == nil {
		rounds++
		clicked := p.ClickLoadMore()
		p.ScrollToBottom()
		if clicked {
			p.Wait(900)
		} else {
			p.Wait(650)
		}

		if n := len(p.Content()); n <= lastLen+minGrowthBytes {
			stalled++
		} else {
			stalled = 0
			lastLen = n
		}
		if stalled >= noProgress {
			break
		}
	}
	return rounds
}

type pwPage struct{ p playwright.Page }

func (w pwPage) ClickLoadMore() bool {
	for _, sel := range loadMoreSelectors {
		loc := w.p.Locator(sel)
		if n, err := loc.Count(); err != nil || n == 0 {
			continue
		}
		first := loc.First()
		if ok, err := first.IsVisible(); err != nil || !ok {
			continue
		}
		if err := first.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(1500)}); err != nil {
			continue
		}
		return true
	}
	return false
}

func (w pwPage) ScrollToBottom() {
	_, _ = w.p.Evaluate("window.scrollTo(0, document.body.scrollHeight);")
}

func (w pwPage) Wait(ms float64) { w.p.WaitForTimeout(ms) }

func (w pwPage) Content() string {
	html, err := w.p.Content()
	if err != nil {
		return ""
	}
	return html
}
