package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"jobharvest-engine/internal/domain"
)

// AuditRow is the explained decision for one evaluated job in one run.
type AuditRow struct {
	RunID        string   `json:"run_id"`
	DedupeKey    string   `json:"dedupe_key"`
	Included     bool     `json:"included"`
	SettingsHash string   `json:"settings_hash"`
	CreatedAt    string   `json:"created_at"`
	CompanyName  string   `json:"company_name"`
	Title        string   `json:"title"`
	Location     string   `json:"location"`
	URL          string   `json:"url"`
	SourceType   string   `json:"source_type"`
	WorkMode     string   `json:"work_mode"`
	Reasons      []string `json:"reasons"`
}

// NewAuditRow snapshots j with its final decision and reason trail.
func NewAuditRow(rc RunContext, j domain.NormalizedJob, included bool, reasons []string, now time.Time) AuditRow {
	if reasons == nil {
		reasons = []string{}
	}
	mode := string(j.WorkMode)
	if mode == "" {
		mode = string(domain.WorkModeUnknown)
	}
	return AuditRow{
		RunID:        rc.RunID,
		DedupeKey:    j.DedupeKey,
		Included:     included,
		SettingsHash: rc.SettingsHash,
		CreatedAt:    FormatTime(now),
		CompanyName:  j.CompanyLabel,
		Title:        j.Title,
		Location:     j.Location,
		URL:          j.URL,
		SourceType:   string(j.SourceType),
		WorkMode:     mode,
		Reasons:      reasons,
	}
}

func WriteAudit(ctx context.Context, q Querier, rows []AuditRow) error {
	for _, r := range rows {
		reasons, err := json.Marshal(r.Reasons)
		if err != nil {
			return eris.Wrap(err, "store: encode reasons")
		}
		_, err = q.ExecContext(ctx, `
INSERT INTO run_job_audit(
  run_id, dedupe_key, included, settings_hash, created_at,
  company_name, title, location, url, source_type, work_mode, reasons_json
) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(run_id, dedupe_key) DO UPDATE SET
  included = excluded.included,
  settings_hash = excluded.settings_hash,
  created_at = excluded.created_at,
  company_name = excluded.company_name,
  title = excluded.title,
  location = excluded.location,
  url = excluded.url,
  source_type = excluded.source_type,
  work_mode = excluded.work_mode,
  reasons_json = excluded.reasons_json;
`,
			r.RunID, r.DedupeKey, boolInt(r.Included), r.SettingsHash, r.CreatedAt,
			r.CompanyName, r.Title, r.Location, r.URL, r.SourceType, r.WorkMode, string(reasons),
		)
		if err != nil {
			return eris.Wrapf(err, "store: write audit %s", r.DedupeKey)
		}
	}
	return nil
}

// ListAudit returns a run's audit rows ordered by company and title. A nil
// included matches both decisions.
func ListAudit(ctx context.Context, q Querier, runID string, included *bool) ([]AuditRow, error) {
	query := `
SELECT run_id, dedupe_key, included, settings_hash, created_at,
       company_name, title, location, url, source_type, work_mode, reasons_json
FROM run_job_audit
WHERE run_id = ?`
	args := []any{runID}
	if included != nil {
		query += ` AND included = ?`
		args = append(args, boolInt(*included))
	}
	query += ` ORDER BY company_name, title, dedupe_key;`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list audit")
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var (
			r       AuditRow
			inc     int
			reasons string
		)
		if err := rows.Scan(
			&r.RunID, &r.DedupeKey, &inc, &r.SettingsHash, &r.CreatedAt,
			&r.CompanyName, &r.Title, &r.Location, &r.URL, &r.SourceType, &r.WorkMode, &reasons,
		); err != nil {
			return nil, eris.Wrap(err, "store: scan audit")
		}
		r.Included = inc == 1
		if err := json.Unmarshal([]byte(reasons), &r.Reasons); err != nil {
			return nil, eris.Wrapf(err, "store: decode reasons %s", r.DedupeKey)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "store: list audit")
}
