package rank

import (
	"context"
	"math"
	"strings"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/domain"
)

// KeywordModel is a logistic model over keyword rules: each rule or penalty
// contributes its weight at most once, and the sum plus bias goes through a
// sigmoid.
type KeywordModel struct {
	id        string
	bias      float64
	rules     []config.Rule
	penalties []config.Penalty
}

func NewKeywordModel(cfg config.MLConfig) *KeywordModel {
	id := cfg.ModelID
	if id == "" {
		id = "keyword"
	}
	return &KeywordModel{id: id, bias: cfg.Bias, rules: cfg.Rules, penalties: cfg.Penalties}
}

func (m *KeywordModel) ModelID() string { return m.id }
func (m *KeywordModel) Available() bool { return true }

func (m *KeywordModel) Score(_ context.Context, jobs []domain.NormalizedJob) (map[string]float64, error) {
	out := make(map[string]float64, len(jobs))
	for _, j := range jobs {
		if j.DedupeKey == "" {
			continue
		}
		p, _ := m.Explain(j)
		out[j.DedupeKey] = p
	}
	return out, nil
}

// Explain returns the probability and the tags of the rules that fired.
func (m *KeywordModel) Explain(j domain.NormalizedJob) (float64, []string) {
	text := strings.ToLower(j.Title + " " + j.Description)

	logit := m.bias
	var tags []string

	for _, r := range m.rules {
		if anyIn(text, r.Any) {
			logit += r.Weight
			tags = append(tags, r.Tag)
		}
	}
	for _, p := range m.penalties {
		if anyIn(text, p.Any) {
			logit += p.Weight
		}
	}

	return sigmoid(logit), uniq(tags)
}

func anyIn(text string, needles []string) bool {
	for _, needle := range needles {
		n := strings.ToLower(strings.TrimSpace(needle))
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func uniq(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, t := range in {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
