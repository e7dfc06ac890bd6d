package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

type Run struct {
	RunID      string          `json:"run_id"`
	StartedAt  string          `json:"started_at"`
	FinishedAt string          `json:"finished_at"`
	Stats      json.RawMessage `json:"stats"`
}

func InsertRun(ctx context.Context, q Querier, runID string, started, finished time.Time, stats any) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "store: encode run stats")
	}
	_, err = q.ExecContext(ctx, `
INSERT INTO runs(run_id, started_at, finished_at, stats_json)
VALUES(?,?,?,?)
ON CONFLICT(run_id) DO UPDATE SET
  started_at = excluded.started_at,
  finished_at = excluded.finished_at,
  stats_json = excluded.stats_json;
`, runID, FormatTime(started), FormatTime(finished), string(b))
	return eris.Wrapf(err, "store: insert run %s", runID)
}

// GetRun returns (nil, nil) when the run does not exist.
func GetRun(ctx context.Context, q Querier, runID string) (*Run, error) {
	var (
		r     Run
		stats string
	)
	err := q.QueryRowContext(ctx,
		`SELECT run_id, started_at, finished_at, stats_json FROM runs WHERE run_id = ?;`, runID,
	).Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &stats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get run %s", runID)
	}
	r.Stats = json.RawMessage(stats)
	return &r, nil
}

// ListRuns returns the most recent runs first.
func ListRuns(ctx context.Context, q Querier, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := q.QueryContext(ctx, `
SELECT run_id, started_at, finished_at, stats_json
FROM runs
ORDER BY started_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r     Run
			stats string
		)
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &stats); err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		r.Stats = json.RawMessage(stats)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "store: list runs")
}

type RunSettings struct {
	RunID        string `json:"run_id"`
	UserID       string `json:"user_id"`
	SettingsHash string `json:"settings_hash"`
	SettingsJSON string `json:"settings_json"`
	CreatedAt    string `json:"created_at"`
}

func SaveRunSettings(ctx context.Context, q Querier, s RunSettings) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO run_settings(run_id, user_id, settings_hash, settings_json, created_at)
VALUES(?,?,?,?,?)
ON CONFLICT(run_id) DO UPDATE SET
  user_id = excluded.user_id,
  settings_hash = excluded.settings_hash,
  settings_json = excluded.settings_json,
  created_at = excluded.created_at;
`, s.RunID, s.UserID, s.SettingsHash, s.SettingsJSON, s.CreatedAt)
	return eris.Wrapf(err, "store: save run settings %s", s.RunID)
}

func GetRunSettings(ctx context.Context, q Querier, runID string) (*RunSettings, error) {
	var s RunSettings
	err := q.QueryRowContext(ctx, `
SELECT run_id, user_id, settings_hash, settings_json, created_at
FROM run_settings WHERE run_id = ?;
`, runID).Scan(&s.RunID, &s.UserID, &s.SettingsHash, &s.SettingsJSON, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get run settings %s", runID)
	}
	return &s, nil
}
