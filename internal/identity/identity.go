// Package identity derives the stable dedupe key that decides whether two
// postings are the same job.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"jobharvest-engine/internal/domain"
)

const (
	PrefixURL  = "url:"
	PrefixID   = "id:"
	PrefixHash = "hash:"
)

// DedupeKey prefers the posting URL, then the source-native id, then a
// fingerprint of the descriptive fields.
func DedupeKey(j domain.NormalizedJob) string {
	if strings.TrimSpace(j.URL) != "" {
		return PrefixURL + sha1Hex(norm(j.URL))
	}
	if strings.TrimSpace(j.JobID) != "" {
		return PrefixID + string(j.SourceType) + ":" + j.CompanyLabel + ":" + j.JobID
	}
	fallback := strings.Join([]string{j.CompanyLabel, j.Title, j.Location, j.Department, j.Team}, "|")
	return PrefixHash + sha1Hex(norm(fallback))
}

// Assign returns copies of jobs with their keys set.
func Assign(jobs []domain.NormalizedJob) []domain.NormalizedJob {
	out := make([]domain.NormalizedJob, len(jobs))
	for i, j := range jobs {
		out[i] = j.WithDedupeKey(DedupeKey(j))
	}
	return out
}

// Unique keeps the first job per dedupe key, preserving order. Keys must be
// assigned already.
func Unique(jobs []domain.NormalizedJob) []domain.NormalizedJob {
	seen := make(map[string]bool, len(jobs))
	out := make([]domain.NormalizedJob, 0, len(jobs))
	for _, j := range jobs {
		if seen[j.DedupeKey] {
			continue
		}
		seen[j.DedupeKey] = true
		out = append(out, j)
	}
	return out
}

func norm(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
