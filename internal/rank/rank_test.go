package rank

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/store"
)

func keywordConfig() config.MLConfig {
	return config.MLConfig{
		Backend: config.BackendKeyword,
		ModelID: "kw-test",
		Bias:    -1,
		Rules: []config.Rule{
			{Tag: "go", Weight: 2, Any: []string{"golang", " go "}},
			{Tag: "backend", Weight: 1, Any: []string{"backend", "distributed"}},
		},
		Penalties: []config.Penalty{
			{Reason: "management", Weight: -3, Any: []string{"manager"}},
		},
	}
}

func TestKeywordModel(t *testing.T) {
	m := NewKeywordModel(keywordConfig())

	p, tags := m.Explain(domain.NormalizedJob{Title: "Backend Engineer", Description: "Golang and distributed systems"})
	assert.InDelta(t, sigmoid(2), p, 1e-9)
	assert.Equal(t, []string{"go", "backend"}, tags)

	p, tags = m.Explain(domain.NormalizedJob{Title: "Engineering Manager", Description: "backend"})
	assert.InDelta(t, sigmoid(-3), p, 1e-9)
	assert.Equal(t, []string{"backend"}, tags)

	scores, err := m.Score(context.Background(), []domain.NormalizedJob{
		{DedupeKey: "a", Title: "Golang developer"},
		{Title: "no key"},
	})
	require.NoError(t, err)
	assert.Len(t, scores, 1)
	assert.InDelta(t, sigmoid(1), scores["a"], 1e-9)
	for _, v := range scores {
		assert.True(t, v >= 0 && v <= 1)
	}
}

func TestDetect(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	b := Detect(ctx, config.MLConfig{Backend: config.BackendNone}, nil, log)
	assert.False(t, b.Available())
	scores, err := b.Score(ctx, []domain.NormalizedJob{{DedupeKey: "a"}})
	require.NoError(t, err)
	assert.Empty(t, scores)

	b = Detect(ctx, config.MLConfig{Backend: config.BackendKeyword}, nil, log)
	assert.False(t, b.Available())

	b = Detect(ctx, keywordConfig(), nil, log)
	assert.True(t, b.Available())
	assert.Equal(t, "kw-test", b.ModelID())

	b = Detect(ctx, config.MLConfig{Backend: config.BackendStored}, nil, log)
	assert.False(t, b.Available())
}

func TestStoredScores(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(ctx, db.Pool))

	cfg := config.MLConfig{Backend: config.BackendStored, ModelID: "ext-1"}

	b := Detect(ctx, cfg, db.Pool, zaptest.NewLogger(t))
	u, ok := b.(Unavailable)
	require.True(t, ok)
	assert.Equal(t, "no stored scores", u.Reason)

	require.NoError(t, store.UpsertMLScores(ctx, db.Pool, "ext-1", map[string]float64{"url:a": 0.93}, time.Now()))

	b = Detect(ctx, cfg, db.Pool, zaptest.NewLogger(t))
	require.True(t, b.Available())
	scores, err := b.Score(ctx, []domain.NormalizedJob{{DedupeKey: "url:a"}, {DedupeKey: "url:b"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"url:a": 0.93}, scores)
}
