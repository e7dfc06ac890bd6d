package greenhouse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/scrape/util"
)

func TestFetchBoard_HydratesIncompleteItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/boards/acme/jobs":
			assert.Equal(t, "true", r.URL.Query().Get("content"))
			fmt.Fprint(w, `{"jobs":[
				{"id":1,"title":"Complete","location":{"name":"Austin, TX"},"content":"body","absolute_url":"https://x/1"},
				{"id":2,"title":"Needs detail","location":{"name":""},"content":""},
				{"id":3,"title":"Detail fails","location":"Remote","content":""},
				"garbage"
			]}`)
		case "/v1/boards/acme/jobs/2":
			fmt.Fprint(w, `{"id":2,"location":{"name":"Boston, MA"},"content":"full text","departments":[{"name":"Eng"}]}`)
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := New(util.NewClient(util.WithRetryPolicy(util.NoRetry())), zaptest.NewLogger(t), WithBaseURL(srv.URL))
	jobs, err := a.FetchBoard(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, "Austin, TX", jobs[0].Location.Name)

	assert.Equal(t, "Needs detail", jobs[1].Title)
	assert.Equal(t, "Boston, MA", jobs[1].Location.Name)
	assert.Equal(t, "full text", jobs[1].Content)
	assert.Equal(t, "Eng", jobs[1].Departments[0].Name)

	assert.Equal(t, domain.FlexString("3"), jobs[2].ID)
	assert.Equal(t, "Remote", jobs[2].Location.Name)
	assert.Empty(t, jobs[2].Content)
}

func TestFetchBoard_NonListJobsIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jobs":{"unexpected":true}}`)
	}))
	defer srv.Close()

	a := New(util.NewClient(), zaptest.NewLogger(t), WithBaseURL(srv.URL))
	jobs, err := a.FetchBoard(context.Background(), "acme")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestFetch_HTTPErrorFailsSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	a := New(util.NewClient(), zaptest.NewLogger(t), WithBaseURL(srv.URL))
	_, err := a.Fetch(context.Background(), domain.Source{Type: domain.SourceGreenhouse, Slug: "nobody"}, "Nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 404")
}
