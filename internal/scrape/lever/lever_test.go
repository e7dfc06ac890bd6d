package lever

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jobharvest-engine/internal/scrape/util"
)

func TestFetchBoard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/postings/acme", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("mode"))
		fmt.Fprint(w, `[
			{"id":"a1","text":"SRE","categories":{"location":"Remote - US","team":"Infra"},"hostedUrl":"https://jobs.lever.co/acme/a1","createdAt":1700000000000},
			{"id":7}
		]`)
	}))
	defer srv.Close()

	a := New(util.NewClient(), zaptest.NewLogger(t), WithBaseURL(srv.URL))
	got, err := a.FetchBoard(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SRE", got[0].Text)
	assert.Equal(t, "Infra", got[0].Categories.Team)
	assert.Equal(t, "2023-11-14T22:13:20Z", got[0].PostedAt())
}

func TestFetchBoard_ObjectResponseIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"Document not found"}`)
	}))
	defer srv.Close()

	a := New(util.NewClient(), zaptest.NewLogger(t), WithBaseURL(srv.URL))
	got, err := a.FetchBoard(context.Background(), "acme")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchBoard_EmptySlug(t *testing.T) {
	a := New(util.NewClient(), zaptest.NewLogger(t))
	_, err := a.FetchBoard(context.Background(), "  ")
	assert.Error(t, err)
}
