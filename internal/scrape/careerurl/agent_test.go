package careerurl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/scrape/greenhouse"
	"jobharvest-engine/internal/scrape/lever"
	"jobharvest-engine/internal/scrape/util"
)

func testClient() *util.Client {
	return util.NewClient(util.WithRetryPolicy(util.NoRetry()))
}

func newTestAgent(t *testing.T, cfg Config, opts ...Option) *Agent {
	t.Helper()
	return New(testClient(), zaptest.NewLogger(t), append([]Option{WithConfig(cfg)}, opts...)...)
}

func TestFetch_SelfLinkingPaginationTerminates(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		// Every page links to itself and to a never-ending next page.
		fmt.Fprintf(w, `<html><body>
			<a href="%s">this page</a>
			<a rel="next" href="/careers?p=%d">Next</a>
		</body></html>`, r.URL.String(), n+1)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxPages = 4
	a := newTestAgent(t, cfg)

	got, err := a.Fetch(context.Background(), domain.Source{Type: domain.SourceCareerURL, URL: srv.URL + "/careers"}, "Loop Co")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
}

func TestFetch_CycleVisitsEachPageOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		other := "/b"
		if r.URL.Path == "/b" {
			other = "/a"
		}
		fmt.Fprintf(w, `<a rel="next" href="%s">next</a>`, other)
	}))
	defer srv.Close()

	a := newTestAgent(t, DefaultConfig())
	_, err := a.Fetch(context.Background(), domain.Source{URL: srv.URL + "/a"}, "Cycle")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetch_SynthesizesOffsetPages(t *testing.T) {
	var mu sync.Mutex
	requested := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip := r.URL.Query().Get("skip")
		mu.Lock()
		requested[skip] = true
		mu.Unlock()
		fmt.Fprintf(w, `<table><tr>
			<td><a href="/jobs/listing/role-%[1]s/100%[1]s">Role %[1]s</a></td><td>Team</td><td>Austin, TX</td>
		</tr></table>
		<a href="/jobs?skip=0">1</a><a href="/jobs?skip=20">2</a><a href="/jobs?skip=60">4</a>`, skip)
	}))
	defer srv.Close()

	a := newTestAgent(t, DefaultConfig())
	got, err := a.Fetch(context.Background(), domain.Source{URL: srv.URL + "/jobs"}, "Offsets")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	// Offset 40 is never linked; it is derived from the observed step.
	assert.True(t, requested["40"])
	assert.True(t, requested["60"])
	assert.GreaterOrEqual(t, len(got), 4)
}

func TestFetch_SameURLFromTwoStrategiesCollapses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
			<script type="application/ld+json">{"@context":"https://schema.org","@type":"JobPosting",
				"title":"Data Engineer","url":"/careers/data-engineer-12345",
				"jobLocation":{"address":{"addressLocality":"Denver","addressRegion":"CO","addressCountry":"US"}}}</script>
			<script id="__NEXT_DATA__" type="application/json">{"props":{"jobs":[
				{"title":"Data Engineer","url":"/careers/data-engineer-12345","location":{"name":"Denver, CO"}}]}}</script>
		</head><body><div id="app"></div></body></html>`)
	}))
	defer srv.Close()

	a := newTestAgent(t, DefaultConfig())
	got, err := a.Fetch(context.Background(), domain.Source{URL: srv.URL + "/open-roles"}, "Dup Co")
	require.NoError(t, err)
	require.Len(t, got, 1)

	p, ok := got[0].(domain.CareerPosting)
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/careers/data-engineer-12345", p.URL)
	assert.Equal(t, "Denver, CO US", p.Location)
	assert.Equal(t, util.SHA1Hex(p.URL), p.ID)
}

func TestFetch_EmbeddedGreenhouseSwitchesToAPI(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/boards/acme/jobs" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"jobs":[{"id":42,"title":"Backend Engineer","location":{"name":"Remote - US"},
			"content":"Go and Postgres","absolute_url":"https://boards.greenhouse.io/acme/jobs/42"}]}`)
	}))
	defer api.Close()

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><h1>Join us</h1>
			<div id="grnhse_app"></div>
			<iframe src="https://boards.greenhouse.io/embed/job_board?for=acme&b=https%3A%2F%2Facme.com"></iframe>
		</body></html>`)
	}))
	defer site.Close()

	client := testClient()
	log := zaptest.NewLogger(t)
	gh := greenhouse.New(client, log, greenhouse.WithBaseURL(api.URL))
	lv := lever.New(client, log, lever.WithBaseURL(api.URL))
	a := New(client, log, WithATS(gh, lv))

	got, err := a.Fetch(context.Background(), domain.Source{URL: site.URL + "/careers"}, "Acme")
	require.NoError(t, err)
	require.Len(t, got, 1)

	d, ok := got[0].(domain.DetectedPosting)
	require.True(t, ok)
	assert.Equal(t, domain.SourceGreenhouse, d.Detection.Type)
	assert.Equal(t, "acme", d.Detection.Slug)
	assert.Equal(t, site.URL+"/careers", d.Detection.FromURL)

	gp, ok := d.Posting.(domain.GreenhousePosting)
	require.True(t, ok)
	assert.Equal(t, "Backend Engineer", gp.Title)
}

func TestFetch_DetailFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/careers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<ul>
			<li><a href="/hcm/sites/CX/requisitions/77">Open role</a></li>
			<li><a href="/hcm/sites/CX/requisitions/78">Broken role</a></li>
			<li><a href="/about">About</a></li>
		</ul>`)
	})
	mux.HandleFunc("/hcm/sites/CX/requisitions/77", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1>Site Reliability Engineer</h1>
			<div>Location</div><div>Austin, TX</div><p>Keep things running.</p></body></html>`)
	})
	mux.HandleFunc("/hcm/sites/CX/requisitions/78", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := newTestAgent(t, DefaultConfig(), WithDetailRetry(util.NoRetry()))
	got, err := a.Fetch(context.Background(), domain.Source{URL: srv.URL + "/careers"}, "Oracle Co")
	require.NoError(t, err)
	require.Len(t, got, 1)

	p := got[0].(domain.CareerPosting)
	assert.Equal(t, "Site Reliability Engineer", p.Title)
	assert.Equal(t, "Austin, TX", p.Location)
	assert.Contains(t, p.Content, "Keep things running.")
}

type fakeRenderer struct {
	html      string
	calls     int32
	deadlines []time.Time
}

func (f *fakeRenderer) Render(ctx context.Context, url string) (string, string, error) {
	atomic.AddInt32(&f.calls, 1)
	if dl, ok := ctx.Deadline(); ok {
		f.deadlines = append(f.deadlines, dl)
	}
	return f.html, url, nil
}

func TestFetch_EscalatesToRendererWhenStaticPageIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="root"></div></body></html>`)
	}))
	defer srv.Close()

	r := &fakeRenderer{html: `<div class="job-card"><a href="/job/981">Nurse Manager</a>
		<div class="locations"><span>Miami, FL</span></div></div>`}
	cfg := DefaultConfig()
	cfg.RenderEnabled = true
	a := newTestAgent(t, cfg, WithRenderer(r))

	got, err := a.Fetch(context.Background(), domain.Source{URL: srv.URL + "/jobs"}, "Render Co")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))

	p := got[0].(domain.CareerPosting)
	assert.Equal(t, "Nurse Manager", p.Title)
	assert.Equal(t, "Miami, FL", p.Location)
}

func TestFetch_RenderModeDisabledSkipsPages(t *testing.T) {
	r := &fakeRenderer{html: `<a href="/job/1">x</a>`}
	a := newTestAgent(t, DefaultConfig(), WithRenderer(r))

	got, err := a.Fetch(context.Background(), domain.Source{URL: "https://example.invalid/jobs", Mode: "playwright"}, "Off")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, atomic.LoadInt32(&r.calls))
}

func TestFetch_RenderedPagesShareCrawlBudget(t *testing.T) {
	r := &fakeRenderer{html: `<div class="job-card"><a href="/job/7">Data Engineer</a>
		<div class="locations"><span>Denver, CO</span></div></div>`}
	cfg := DefaultConfig()
	cfg.RenderEnabled = true
	cfg.TimeBudget = 5 * time.Second

	// The crawl clock already reports 4s spent when the first page renders.
	began := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Time{began, began.Add(4 * time.Second)}
	clock := func() time.Time {
		if len(ticks) == 0 {
			return began.Add(4 * time.Second)
		}
		t0 := ticks[0]
		ticks = ticks[1:]
		return t0
	}
	a := newTestAgent(t, cfg, WithRenderer(r), WithClock(clock))

	before := time.Now()
	got, err := a.Fetch(context.Background(), domain.Source{URL: "https://render.example/jobs", Mode: "render"}, "Budget Co")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, r.deadlines, 1)
	assert.True(t, r.deadlines[0].Before(before.Add(1500*time.Millisecond)), "render deadline %v exceeds remaining budget", r.deadlines[0])
}

func TestFetch_SeedFailureIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	a := newTestAgent(t, DefaultConfig())
	_, err := a.Fetch(context.Background(), domain.Source{URL: srv.URL + "/careers"}, "Missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 404")
}
