package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	OverrideInclude = "include"
	OverrideExclude = "exclude"
)

var ErrInvalidOverride = eris.New("store: override action must be include or exclude")

type Override struct {
	DedupeKey string `json:"dedupe_key"`
	Action    string `json:"action"`
	Note      string `json:"note"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// SetOverride creates or replaces the manual decision for key. created_at is
// kept from the first write.
func SetOverride(ctx context.Context, q Querier, key, action, note string, now time.Time) error {
	key = strings.TrimSpace(key)
	action = strings.ToLower(strings.TrimSpace(action))
	if key == "" {
		return eris.New("store: override needs a dedupe key")
	}
	if action != OverrideInclude && action != OverrideExclude {
		return eris.Wrapf(ErrInvalidOverride, "got %q", action)
	}
	ts := FormatTime(now)
	_, err := q.ExecContext(ctx, `
INSERT INTO job_overrides(dedupe_key, action, note, created_at, updated_at)
VALUES(?,?,?,?,?)
ON CONFLICT(dedupe_key) DO UPDATE SET
  action = excluded.action,
  note = excluded.note,
  updated_at = excluded.updated_at;
`, key, action, note, ts, ts)
	return eris.Wrapf(err, "store: set override %s", key)
}

// DeleteOverride reports whether a row was removed.
func DeleteOverride(ctx context.Context, q Querier, key string) (bool, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM job_overrides WHERE dedupe_key = ?;`, key)
	if err != nil {
		return false, eris.Wrapf(err, "store: delete override %s", key)
	}
	n, err := res.RowsAffected()
	return n > 0, eris.Wrap(err, "store: delete override")
}

func ListOverrides(ctx context.Context, q Querier) ([]Override, error) {
	rows, err := q.QueryContext(ctx, `
SELECT dedupe_key, action, note, created_at, updated_at
FROM job_overrides
ORDER BY updated_at DESC, dedupe_key;
`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list overrides")
	}
	defer rows.Close()

	var out []Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.DedupeKey, &o.Action, &o.Note, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan override")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "store: list overrides")
}

// LoadOverrides maps dedupe key to action for the runner.
func LoadOverrides(ctx context.Context, q Querier) (map[string]string, error) {
	list, err := ListOverrides(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for _, o := range list {
		out[o.DedupeKey] = o.Action
	}
	return out, nil
}
