package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"jobharvest-engine/internal/domain"
)

// RunContext ties a state upsert to a run. Zero value means "no run".
type RunContext struct {
	RunID        string
	SettingsHash string
}

func (r RunContext) valid() bool { return r.RunID != "" && r.SettingsHash != "" }

// UpsertAndComputeNew records every job as seen at now, refreshes its latest
// snapshot and reports which keys were never seen before. first_seen is
// written once per key and never changes afterwards. When rc names a run the
// jobs are also recorded as included members of it.
//
// Jobs must carry a dedupe key. Repeating a call with the same input leaves
// first_seen untouched and reports no new jobs.
func UpsertAndComputeNew(ctx context.Context, q Querier, jobs []domain.NormalizedJob, rc RunContext, now time.Time) (current, fresh []domain.StoredJob, err error) {
	ts := FormatTime(now)

	for _, j := range jobs {
		if j.DedupeKey == "" {
			return nil, nil, eris.Errorf("store: job %q has no dedupe key", j.Title)
		}

		var firstSeen string
		err := q.QueryRowContext(ctx, `SELECT first_seen FROM jobs_seen WHERE dedupe_key = ?;`, j.DedupeKey).Scan(&firstSeen)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			firstSeen = ts
			if _, err := q.ExecContext(ctx,
				`INSERT INTO jobs_seen(dedupe_key, first_seen, last_seen) VALUES(?,?,?);`,
				j.DedupeKey, ts, ts,
			); err != nil {
				return nil, nil, eris.Wrapf(err, "store: insert seen %s", j.DedupeKey)
			}
			fresh = append(fresh, domain.StoredJob{NormalizedJob: j, FirstSeen: firstSeen})
		case err != nil:
			return nil, nil, eris.Wrapf(err, "store: read seen %s", j.DedupeKey)
		default:
			if _, err := q.ExecContext(ctx,
				`UPDATE jobs_seen SET last_seen = ? WHERE dedupe_key = ?;`,
				ts, j.DedupeKey,
			); err != nil {
				return nil, nil, eris.Wrapf(err, "store: touch seen %s", j.DedupeKey)
			}
		}

		if err := upsertLatest(ctx, q, j); err != nil {
			return nil, nil, err
		}

		if rc.valid() {
			if err := upsertMembership(ctx, q, rc, j.DedupeKey, true, ts); err != nil {
				return nil, nil, err
			}
		}

		current = append(current, domain.StoredJob{NormalizedJob: j, FirstSeen: firstSeen})
	}
	return current, fresh, nil
}

func upsertLatest(ctx context.Context, q Querier, j domain.NormalizedJob) error {
	h1b := j.PastH1BSupport
	if h1b == "" {
		h1b = domain.H1BNo
	}
	mode := j.WorkMode
	if mode == "" {
		mode = domain.WorkModeUnknown
	}

	_, err := q.ExecContext(ctx, `
INSERT INTO jobs_latest(
  dedupe_key, company_name, title, location, url, description,
  department, team, date_posted, source_type, past_h1b_support, work_mode
) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(dedupe_key) DO UPDATE SET
  company_name = excluded.company_name,
  title = excluded.title,
  location = excluded.location,
  url = excluded.url,
  description = excluded.description,
  department = excluded.department,
  team = excluded.team,
  date_posted = excluded.date_posted,
  source_type = excluded.source_type,
  past_h1b_support = excluded.past_h1b_support,
  work_mode = excluded.work_mode;
`,
		j.DedupeKey, j.CompanyLabel, j.Title, j.Location, j.URL, j.Description,
		j.Department, j.Team, j.DatePosted, string(j.SourceType), h1b, string(mode),
	)
	return eris.Wrapf(err, "store: upsert latest %s", j.DedupeKey)
}

// Membership is one evaluated job's final decision in a run.
type Membership struct {
	DedupeKey string
	Included  bool
}

// RecordMembership writes run_jobs rows for every evaluated job, included or
// not. Rows are keyed by (run_id, dedupe_key) so a retry overwrites.
func RecordMembership(ctx context.Context, q Querier, rc RunContext, rows []Membership, now time.Time) error {
	if !rc.valid() {
		return eris.New("store: membership needs run id and settings hash")
	}
	ts := FormatTime(now)
	for _, m := range rows {
		if err := upsertMembership(ctx, q, rc, m.DedupeKey, m.Included, ts); err != nil {
			return err
		}
	}
	return nil
}

func upsertMembership(ctx context.Context, q Querier, rc RunContext, key string, included bool, ts string) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO run_jobs(run_id, dedupe_key, included, settings_hash, matched_at)
VALUES(?,?,?,?,?)
ON CONFLICT(run_id, dedupe_key) DO UPDATE SET
  included = excluded.included,
  settings_hash = excluded.settings_hash,
  matched_at = excluded.matched_at;
`, rc.RunID, key, boolInt(included), rc.SettingsHash, ts)
	return eris.Wrapf(err, "store: run membership %s", key)
}

// MatchedUnderSettings returns every key ever included by a run evaluated
// under settingsHash, oldest match first.
func MatchedUnderSettings(ctx context.Context, q Querier, settingsHash string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
SELECT dedupe_key
FROM run_jobs
WHERE settings_hash = ? AND included = 1
GROUP BY dedupe_key
ORDER BY MIN(matched_at), dedupe_key;
`, settingsHash)
	if err != nil {
		return nil, eris.Wrap(err, "store: matched under settings")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "store: scan matched key")
		}
		out = append(out, k)
	}
	return out, eris.Wrap(rows.Err(), "store: matched under settings")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
