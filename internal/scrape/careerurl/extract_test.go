package careerurl

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobharvest-engine/internal/domain"
)

func mustPage(t *testing.T, html, u string) page {
	t.Helper()
	p := newPage(html, u)
	require.NotNil(t, p.doc)
	return p
}

func TestExtractListing_RowsTakeLocationFromLastCell(t *testing.T) {
	p := mustPage(t, `<table>
		<tr><td><a href="/jobs/listing/backend-engineer/5512"> Backend
			Engineer </a></td><td>Payments</td><td>Seattle, WA</td></tr>
		<tr><td><a href="https://stripe.com/jobs/listing/pm/5513">PM</a></td></tr>
	</table>`, "https://stripe.com/jobs/search?skip=0")

	got := extractListing(p)
	require.Len(t, got, 2)
	assert.Equal(t, "https://stripe.com/jobs/listing/backend-engineer/5512", got[0].URL)
	assert.Equal(t, "Backend Engineer", got[0].Title)
	assert.Equal(t, "Seattle, WA", got[0].Location)
	assert.Empty(t, got[1].Location)
}

func TestExtractListing_TilesUseAriaLocations(t *testing.T) {
	p := mustPage(t, `
		<li data-qa="searchResultItem" aria-label="Locations,United States,Santa Clara, CA">
			<a href="/en/sites/jobsearch/job/20011"><span class="job-tile__title">Firmware Engineer</span></a>
		</li>
		<div class="job-tile"><a href="/about">About</a></div>`, "https://careers.oracle.com/en/sites/jobsearch/jobs")

	got := extractListing(p)
	require.Len(t, got, 1)
	assert.Equal(t, "Firmware Engineer", got[0].Title)
	assert.Equal(t, "United States", got[0].Location)
	assert.Equal(t, "https://careers.oracle.com/en/sites/jobsearch/job/20011", got[0].URL)
}

func TestExtractListing_AnchorFallback(t *testing.T) {
	p := mustPage(t, `
		<a href="https://boards.greenhouse.io/acme/jobs/1">GH</a>
		<a href="https://jobs.lever.co/acme/abc/apply">Lever</a>
		<a href="/careers/ops-lead-20231">Ops</a>
		<a href="/careers">All careers</a>
		<a href="/blog/2024">Blog</a>`, "https://acme.com/careers")

	var urls []string
	for _, j := range extractListing(p) {
		urls = append(urls, j.URL)
	}
	assert.Equal(t, []string{
		"https://boards.greenhouse.io/acme/jobs/1",
		"https://jobs.lever.co/acme/abc/apply",
		"https://acme.com/careers/ops-lead-20231",
	}, urls)
}

func TestDiscoverPagination(t *testing.T) {
	p := mustPage(t, `
		<link rel="next" href="/jobs?skip=20">
		<a href="/jobs?skip=0">1</a>
		<a href="/jobs?skip=20">2</a>
		<a href="/jobs?skip=40">3</a>
		<a aria-label="Last page" href="/jobs?skip=180">»</a>
		<a href="/jobs?page=2">page two</a>
		<a href="https://other.com/jobs?page=9">elsewhere</a>`, "https://acme.com/jobs")

	pg := discoverPagination(p.doc, p.url)

	assert.Equal(t, []string{
		"https://acme.com/jobs?skip=20",
		"https://acme.com/jobs?skip=180",
		"https://acme.com/jobs?page=2",
	}, pg.links)
	assert.Equal(t, 3, pg.maxPage)
	require.NotNil(t, pg.numeric)
	assert.Equal(t, numericParam{name: "skip", max: 180, step: 20}, *pg.numeric)
}

func TestSynthesizedPageURLs(t *testing.T) {
	assert.Equal(t, []string{
		"https://acme.com/jobs?page=2&q=go",
		"https://acme.com/jobs?page=3&q=go",
	}, pageParamURLs("https://acme.com/jobs?q=go", 3))
	assert.Nil(t, pageParamURLs("https://acme.com/jobs?Page=1", 5))

	assert.Equal(t, []string{
		"https://acme.com/jobs?start=100",
		"https://acme.com/jobs?start=200",
	}, numericParamURLs("https://acme.com/jobs", numericParam{name: "start", max: 250}))
}

func TestExtractJSONLD_GraphAndTypeList(t *testing.T) {
	p := mustPage(t, `<script type="application/ld+json">{"@graph":[
		{"@type":"Organization","name":"Acme"},
		{"@type":["JobPosting"],"name":"Welder","hiringOrganization":{"sameAs":"https://acme.com/jobs/7781"},
		 "jobLocation":[{"address":{"addressLocality":"Houston","addressRegion":"TX","addressCountry":{"name":"US"}}}]}
	]}</script><script type="application/ld+json">{not json</script>`, "https://acme.com/careers")

	got := extractJSONLD(p)
	require.Len(t, got, 1)
	assert.Equal(t, "Welder", got[0].Title)
	assert.Equal(t, "https://acme.com/jobs/7781", got[0].URL)
	assert.Equal(t, "Houston, TX US", got[0].Location)
}

func TestExtractJSONLD_MissingURLFallsBackToPage(t *testing.T) {
	p := mustPage(t, `<script type="application/ld+json">{"@type":"JobPosting","title":"Cook"}</script>`, "https://diner.com/jobs/cook")
	got := extractJSONLD(p)
	require.Len(t, got, 1)
	assert.Equal(t, "https://diner.com/jobs/cook", got[0].URL)
	assert.Empty(t, got[0].Location)
}

func TestFromJSON_DropsLowSignalURLs(t *testing.T) {
	p := mustPage(t, `<script id="__NEXT_DATA__">{"page":{"title":"Careers","url":"/careers"},
		"jobs":[{"text":"Analyst","hostedUrl":"https://jobs.lever.co/acme/1/apply","city":"Boston, MA","content":"desc"}]}</script>`,
		"https://acme.com/careers")

	got := fromJSON([]page{p})
	require.Len(t, got, 1)
	assert.Equal(t, "Analyst", got[0].Title)
	assert.Equal(t, "Boston, MA", got[0].Location)
	assert.Equal(t, "desc", got[0].Content)
}

func TestDetectEmbeddedATS(t *testing.T) {
	html := `
		<script src="https://boards.greenhouse.io/embed/job_board/js?for=Acme-Robotics"></script>
		<a href="https://jobs.lever.co/acme">Lever</a>
		<a href="https://boards-api.greenhouse.io/v1/boards/acme/jobs">API</a>
		<a href="https://job-boards.greenhouse.io/departments">bad</a>`

	got := DetectEmbeddedATS(html, "https://acme.com/careers")
	assert.Equal(t, []domain.Detection{
		{Type: domain.SourceGreenhouse, Slug: "acme", FromURL: "https://acme.com/careers"},
		{Type: domain.SourceGreenhouse, Slug: "acme-robotics", FromURL: "https://acme.com/careers"},
		{Type: domain.SourceLever, Slug: "acme", FromURL: "https://acme.com/careers"},
	}, got)
}

func TestDetectEmbeddedATS_CapsResults(t *testing.T) {
	var b strings.Builder
	for _, s := range []string{"a1", "b22", "c333", "d4444", "e55555", "f666666"} {
		b.WriteString(`<a href="https://jobs.lever.co/` + s + `">x</a>`)
	}
	got := DetectEmbeddedATS(b.String(), "https://x.com")
	require.Len(t, got, maxDetections)
	assert.Equal(t, "a1", got[0].Slug)
}

func TestParseDetail_FallsBackToH2(t *testing.T) {
	d := parseDetail("https://acme.com/requisitions/9", `<h2>Analyst</h2><p>Office locations New York, NY</p>`)
	assert.Equal(t, "Analyst", d.Title)
	assert.Equal(t, "New York, NY", d.Location)
}

type growingPage struct {
	clicks, scrolls int
	sizes           []int
	i               int
}

func (g *growingPage) ClickLoadMore() bool { g.clicks++; return g.i < 2 }
func (g *growingPage) ScrollToBottom()     { g.scrolls++ }
func (g *growingPage) Wait(float64)        {}
func (g *growingPage) Content() string {
	n := g.sizes[len(g.sizes)-1]
	if g.i < len(g.sizes) {
		n = g.sizes[g.i]
	}
	g.i++
	return strings.Repeat("x", n)
}

func TestSettle_StopsAfterNoGrowth(t *testing.T) {
	g := &growingPage{sizes: []int{1000, 2000, 2100, 2150}}
	rounds := settle(context.Background(), g, time.Minute, 2)

	// 1000 and 2000 grow; 2100 (+100) and 2150 stall.
	assert.Equal(t, 4, rounds)
	assert.Equal(t, 4, g.scrolls)
}

func TestSettle_RespectsBudget(t *testing.T) {
	g := &growingPage{sizes: []int{1}}
	assert.Zero(t, settle(context.Background(), g, 0, 2))
}

func TestSettle_StopsAtContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	g := &growingPage{sizes: []int{1000, 5000, 9000}}
	assert.Zero(t, settle(ctx, g, time.Minute, 2))
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, time.Minute, remaining(context.Background(), time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	left := remaining(ctx, time.Minute)
	assert.LessOrEqual(t, left, 2*time.Second)
	assert.Greater(t, left, time.Duration(0))

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	assert.Zero(t, remaining(expired, time.Minute))
}
