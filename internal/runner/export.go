package runner

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"

	"jobharvest-engine/internal/domain"
)

var exportFields = []string{
	"dedupe_key", "first_seen", "past_h1b_support", "source_type",
	"company_name", "job_id", "title", "location", "department", "team",
	"date_posted", "url", "description",
}

// SortForExport orders jobs with past sponsors first, then by first_seen.
func SortForExport(jobs []domain.StoredJob) {
	sort.SliceStable(jobs, func(i, k int) bool {
		hi, hk := jobs[i].PastH1BSupport == domain.H1BYes, jobs[k].PastH1BSupport == domain.H1BYes
		if hi != hk {
			return hi
		}
		return jobs[i].FirstSeen < jobs[k].FirstSeen
	})
}

// WriteExports replaces jobs.{json,csv} and new_jobs.{json,csv} in dir.
func WriteExports(dir string, current, fresh []domain.StoredJob) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "runner: create %s", dir)
	}
	current = append([]domain.StoredJob{}, current...)
	fresh = append([]domain.StoredJob{}, fresh...)
	SortForExport(current)
	SortForExport(fresh)

	for name, jobs := range map[string][]domain.StoredJob{"jobs": current, "new_jobs": fresh} {
		if err := writeJSONAtomic(filepath.Join(dir, name+".json"), jobs); err != nil {
			return err
		}
		if err := writeCSVAtomic(filepath.Join(dir, name+".csv"), jobs); err != nil {
			return err
		}
	}
	return nil
}

func exportRow(j domain.StoredJob) []string {
	return []string{
		j.DedupeKey, j.FirstSeen, j.PastH1BSupport, string(j.SourceType),
		j.CompanyLabel, j.JobID, j.Title, j.Location, j.Department, j.Team,
		j.DatePosted, j.URL, j.Description,
	}
}

func writeJSONAtomic(path string, jobs []domain.StoredJob) error {
	return writeAtomic(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	})
}

func writeCSVAtomic(path string, jobs []domain.StoredJob) error {
	return writeAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(exportFields); err != nil {
			return err
		}
		for _, j := range jobs {
			if err := w.Write(exportRow(j)); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

// writeAtomic writes through a temp file in the same directory and renames it
// over path, so readers never see a partial export.
func writeAtomic(path string, write func(*os.File) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "runner: temp for %s", path)
	}
	tmp := f.Name()
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return eris.Wrapf(err, "runner: write %s", path)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return eris.Wrapf(err, "runner: close %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return eris.Wrapf(err, "runner: rename %s", path)
	}
	return nil
}
