package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

// UpsertMLScores stores one probability per key under modelID.
func UpsertMLScores(ctx context.Context, q Querier, modelID string, scores map[string]float64, now time.Time) error {
	ts := FormatTime(now)
	for key, p := range scores {
		if _, err := q.ExecContext(ctx, `
INSERT INTO job_ml_scores(dedupe_key, ml_prob, model_id, updated_at)
VALUES(?,?,?,?)
ON CONFLICT(dedupe_key) DO UPDATE SET
  ml_prob = excluded.ml_prob,
  model_id = excluded.model_id,
  updated_at = excluded.updated_at;
`, key, p, modelID, ts); err != nil {
			return eris.Wrapf(err, "store: upsert ml score %s", key)
		}
	}
	return nil
}

// LoadMLScores returns stored probabilities for keys; keys without a score
// are absent from the map.
func LoadMLScores(ctx context.Context, q Querier, keys []string) (map[string]float64, error) {
	out := make(map[string]float64, len(keys))
	for _, k := range keys {
		var p float64
		err := q.QueryRowContext(ctx, `SELECT ml_prob FROM job_ml_scores WHERE dedupe_key = ?;`, k).Scan(&p)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "store: load ml score %s", k)
		}
		out[k] = p
	}
	return out, nil
}

func CountMLScores(ctx context.Context, q Querier) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_ml_scores;`).Scan(&n)
	return n, eris.Wrap(err, "store: count ml scores")
}
