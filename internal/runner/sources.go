package runner

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/store"
)

// companyTask is every source configured under one company label.
type companyTask struct {
	label    string
	employer string
	sources  []domain.Source
}

// groupCompanies folds companies sharing a label into one task. The label is
// the company name, else the first ATS slug, else "unknown".
func groupCompanies(companies []domain.Company) []companyTask {
	idx := map[string]int{}
	var tasks []companyTask
	for _, c := range companies {
		label := companyLabel(c)
		i, ok := idx[label]
		if !ok {
			i = len(tasks)
			idx[label] = i
			tasks = append(tasks, companyTask{label: label})
		}
		if tasks[i].employer == "" {
			tasks[i].employer = strings.TrimSpace(c.EmployerName)
		}
		tasks[i].sources = append(tasks[i].sources, c.Sources...)
	}
	return tasks
}

func companyLabel(c domain.Company) string {
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	for _, s := range c.Sources {
		if slug := strings.TrimSpace(s.Slug); slug != "" {
			return slug
		}
	}
	return "unknown"
}

func companyKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ApplyDiscoveries upgrades companies with ATS boards found on earlier runs.
// The found board is added and the career page it was found on is retired.
// It returns the upgraded list and how many sources were added.
func ApplyDiscoveries(companies []domain.Company, found []store.DiscoveredSource) ([]domain.Company, int) {
	if len(found) == 0 {
		return companies, 0
	}
	byCompany := map[string][]store.DiscoveredSource{}
	for _, f := range found {
		k := companyKey(f.Company)
		byCompany[k] = append(byCompany[k], f)
	}

	out := make([]domain.Company, len(companies))
	added := 0
	for i, c := range companies {
		out[i] = c
		hits := byCompany[companyKey(c.Name)]
		if len(hits) == 0 {
			continue
		}
		sources := append([]domain.Source(nil), c.Sources...)
		for _, h := range hits {
			ats := domain.Source{Type: domain.SourceType(h.Type), Slug: h.Slug}
			if hasSource(sources, ats) {
				continue
			}
			sources = retireCareerURL(sources, h.FromURL)
			sources = domain.MergeSources(sources, []domain.Source{ats})
			added++
		}
		out[i].Sources = sources
	}
	return out, added
}

func hasSource(list []domain.Source, s domain.Source) bool {
	for _, x := range list {
		if x.Key() == s.Key() {
			return true
		}
	}
	return false
}

func retireCareerURL(list []domain.Source, fromURL string) []domain.Source {
	fromURL = strings.TrimSpace(fromURL)
	if fromURL == "" {
		return list
	}
	out := list[:0:0]
	for _, s := range list {
		if s.Type == domain.SourceCareerURL && strings.TrimSpace(s.URL) == fromURL {
			continue
		}
		out = append(out, s)
	}
	return out
}

// RecordDetections stores every detected board in one transaction, so a
// failure leaves none of this run's detections behind.
func RecordDetections(ctx context.Context, db *store.DB, found map[string][]domain.Detection, now time.Time) error {
	labels := make([]string, 0, len(found))
	for label := range found {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, label := range labels {
			for _, d := range found[label] {
				if err := store.UpsertDiscoveredSource(ctx, tx, label, d, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
