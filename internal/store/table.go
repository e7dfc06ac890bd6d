package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rotisserie/eris"
)

const schemaVersion = 1

var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS jobs_seen (
  dedupe_key TEXT PRIMARY KEY,
  first_seen TEXT NOT NULL,
  last_seen TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS jobs_latest (
  dedupe_key TEXT PRIMARY KEY,
  company_name TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  department TEXT NOT NULL DEFAULT '',
  team TEXT NOT NULL DEFAULT '',
  date_posted TEXT NOT NULL DEFAULT '',
  source_type TEXT NOT NULL DEFAULT '',
  past_h1b_support TEXT NOT NULL DEFAULT 'no',
  work_mode TEXT NOT NULL DEFAULT 'unknown'
);`,
	`CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL,
  stats_json TEXT NOT NULL DEFAULT '{}'
);`,
	`CREATE TABLE IF NOT EXISTS run_jobs (
  run_id TEXT NOT NULL,
  dedupe_key TEXT NOT NULL,
  included INTEGER NOT NULL,
  settings_hash TEXT NOT NULL,
  matched_at TEXT NOT NULL,
  PRIMARY KEY(run_id, dedupe_key)
);`,
	`CREATE INDEX IF NOT EXISTS idx_run_jobs_settings_hash ON run_jobs(settings_hash);`,
	`CREATE INDEX IF NOT EXISTS idx_run_jobs_dedupe_key ON run_jobs(dedupe_key);`,
	`CREATE TABLE IF NOT EXISTS run_settings (
  run_id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  settings_hash TEXT NOT NULL,
  settings_json TEXT NOT NULL,
  created_at TEXT NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS idx_run_settings_settings_hash ON run_settings(settings_hash);`,
	`CREATE TABLE IF NOT EXISTS run_job_audit (
  run_id TEXT NOT NULL,
  dedupe_key TEXT NOT NULL,
  included INTEGER NOT NULL,
  settings_hash TEXT NOT NULL,
  created_at TEXT NOT NULL,
  company_name TEXT NOT NULL,
  title TEXT NOT NULL,
  location TEXT NOT NULL,
  url TEXT NOT NULL,
  source_type TEXT NOT NULL,
  work_mode TEXT NOT NULL,
  reasons_json TEXT NOT NULL,
  PRIMARY KEY(run_id, dedupe_key)
);`,
	`CREATE INDEX IF NOT EXISTS idx_run_job_audit_included ON run_job_audit(included);`,
	`CREATE TABLE IF NOT EXISTS job_overrides (
  dedupe_key TEXT PRIMARY KEY,
  action TEXT NOT NULL CHECK(action IN ('include','exclude')),
  note TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS job_ml_scores (
  dedupe_key TEXT PRIMARY KEY,
  ml_prob REAL NOT NULL,
  model_id TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS idx_job_ml_scores_model_id ON job_ml_scores(model_id);`,
	`CREATE TABLE IF NOT EXISTS company_sources (
  company TEXT NOT NULL,
  type TEXT NOT NULL,
  slug TEXT NOT NULL,
  from_url TEXT NOT NULL DEFAULT '',
  discovered_at TEXT NOT NULL,
  PRIMARY KEY(company, type, slug)
);`,
}

// Migrate brings the schema to the current user_version.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "migrate: begin")
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return eris.Wrap(err, "migrate: read user_version")
	}

	if v >= schemaVersion {
		return tx.Commit()
	}

	for _, stmt := range schemaV1 {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "migrate: %.60s", stmt)
		}
	}

	// Databases created before work_mode was tracked.
	if !columnExists(ctx, tx, "jobs_latest", "work_mode") {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE jobs_latest ADD COLUMN work_mode TEXT NOT NULL DEFAULT 'unknown';`); err != nil {
			return eris.Wrap(err, "migrate: add work_mode")
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, schemaVersion)); err != nil {
		return eris.Wrap(err, "migrate: set user_version")
	}

	return tx.Commit()
}

func columnExists(ctx context.Context, q Querier, table, col string) bool {
	query := fmt.Sprintf(`
SELECT 1
FROM pragma_table_info('%s')
WHERE name = ?
LIMIT 1;
`, table)

	var one int
	err := q.QueryRowContext(ctx, query, col).Scan(&one)
	return err == nil
}
