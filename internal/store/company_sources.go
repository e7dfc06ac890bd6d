package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"jobharvest-engine/internal/domain"
)

// DiscoveredSource is an ATS board found on a company's career page.
type DiscoveredSource struct {
	Company      string            `json:"company"`
	Type         domain.SourceType `json:"type"`
	Slug         string            `json:"slug"`
	FromURL      string            `json:"from_url"`
	DiscoveredAt string            `json:"discovered_at"`
}

func UpsertDiscoveredSource(ctx context.Context, q Querier, company string, d domain.Detection, now time.Time) error {
	company = normalizeCompanyKey(company)
	slug := strings.ToLower(strings.TrimSpace(d.Slug))
	if company == "" || slug == "" || !d.Type.IsATS() {
		return nil
	}

	_, err := q.ExecContext(ctx, `
INSERT INTO company_sources(company, type, slug, from_url, discovered_at)
VALUES(?,?,?,?,?)
ON CONFLICT(company, type, slug) DO UPDATE SET
  from_url = excluded.from_url,
  discovered_at = excluded.discovered_at;
`, company, string(d.Type), slug, strings.TrimSpace(d.FromURL), FormatTime(now))

	return eris.Wrapf(err, "store: upsert company source %s", company)
}

// DiscoveredSources returns a company's stored boards, or every company's
// when company is empty.
func DiscoveredSources(ctx context.Context, q Querier, company string) ([]DiscoveredSource, error) {
	query := `SELECT company, type, slug, from_url, discovered_at FROM company_sources`
	var args []any
	if c := normalizeCompanyKey(company); c != "" {
		query += ` WHERE company = ?`
		args = append(args, c)
	}
	query += ` ORDER BY company, type, slug;`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list company sources")
	}
	defer rows.Close()

	var out []DiscoveredSource
	for rows.Next() {
		var (
			s DiscoveredSource
			t string
		)
		if err := rows.Scan(&s.Company, &t, &s.Slug, &s.FromURL, &s.DiscoveredAt); err != nil {
			return nil, eris.Wrap(err, "store: scan company source")
		}
		s.Type = domain.SourceType(t)
		out = append(out, s)
	}
	return out, eris.Wrap(rows.Err(), "store: list company sources")
}

func normalizeCompanyKey(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ToLower(s)
	return s
}
