package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"jobharvest-engine/internal/domain"
)

type ListJobsOpts struct {
	Sort   string // first_seen|company|title|ml
	Window string // 24h|7d|all
	Limit  int
	Now    time.Time
}

// LatestJob is a jobs_latest row joined with its first sighting and stored
// ML probability, when there is one.
type LatestJob struct {
	domain.StoredJob
	LastSeen string   `json:"last_seen"`
	MLProb   *float64 `json:"ml_prob,omitempty"`
}

func ListLatest(ctx context.Context, q Querier, opts ListJobsOpts) ([]LatestJob, error) {
	if opts.Limit <= 0 || opts.Limit > 2000 {
		opts.Limit = 500
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	// whitelisted; never interpolate caller input
	order := map[string]string{
		"first_seen": "s.first_seen DESC",
		"company":    "l.company_name ASC, l.title ASC",
		"title":      "l.title ASC",
		"ml":         "m.ml_prob DESC NULLS LAST, s.first_seen DESC",
	}[opts.Sort]
	if order == "" {
		order = "s.first_seen DESC"
	}

	var cutoff string
	switch opts.Window {
	case "24h":
		cutoff = FormatTime(opts.Now.Add(-24 * time.Hour))
	case "all":
	default:
		cutoff = FormatTime(opts.Now.Add(-7 * 24 * time.Hour))
	}

	query := fmt.Sprintf(`
SELECT l.dedupe_key, l.company_name, l.title, l.location, l.url, l.description,
       l.department, l.team, l.date_posted, l.source_type, l.past_h1b_support, l.work_mode,
       s.first_seen, s.last_seen, m.ml_prob
FROM jobs_latest l
JOIN jobs_seen s ON s.dedupe_key = l.dedupe_key
LEFT JOIN job_ml_scores m ON m.dedupe_key = l.dedupe_key
WHERE s.last_seen >= ?
ORDER BY %s
LIMIT ?;
`, order)

	rows, err := q.QueryContext(ctx, query, cutoff, opts.Limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list latest")
	}
	defer rows.Close()

	var out []LatestJob
	for rows.Next() {
		var (
			j      LatestJob
			src    string
			mode   string
			mlProb sql.NullFloat64
		)
		if err := rows.Scan(
			&j.DedupeKey, &j.CompanyLabel, &j.Title, &j.Location, &j.URL, &j.Description,
			&j.Department, &j.Team, &j.DatePosted, &src, &j.PastH1BSupport, &mode,
			&j.FirstSeen, &j.LastSeen, &mlProb,
		); err != nil {
			return nil, eris.Wrap(err, "store: scan latest")
		}
		j.SourceType = domain.SourceType(src)
		j.WorkMode = domain.WorkMode(mode)
		if mlProb.Valid {
			p := mlProb.Float64
			j.MLProb = &p
		}
		out = append(out, j)
	}
	return out, eris.Wrap(rows.Err(), "store: list latest")
}

// FirstSeen looks up first sightings for keys; unknown keys are absent.
func FirstSeen(ctx context.Context, q Querier, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		var ts string
		err := q.QueryRowContext(ctx, `SELECT first_seen FROM jobs_seen WHERE dedupe_key = ?;`, k).Scan(&ts)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "store: first seen %s", k)
		}
		out[k] = ts
	}
	return out, nil
}

// CleanupStale deletes snapshots not seen within keepFor. jobs_seen rows stay
// so a job that returns is still not new.
func CleanupStale(ctx context.Context, q Querier, keepFor time.Duration, now time.Time) (int64, error) {
	cutoff := FormatTime(now.Add(-keepFor))
	res, err := q.ExecContext(ctx, `
DELETE FROM jobs_latest
WHERE dedupe_key IN (SELECT dedupe_key FROM jobs_seen WHERE last_seen < ?);
`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "store: cleanup stale")
	}
	return res.RowsAffected()
}
