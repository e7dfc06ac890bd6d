package runner

import (
	"context"

	"go.uber.org/zap"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/filter"
	"jobharvest-engine/internal/rank"
	"jobharvest-engine/internal/store"
)

const (
	ReasonForceInclude  = "override:force_include"
	ReasonForceExclude  = "override:force_exclude"
	ReasonMLRescued     = "ml:rescued"
	ReasonMLUnavailable = "ml:unavailable"
)

// Decision is the final verdict for one evaluated job.
type Decision struct {
	Job      domain.NormalizedJob `json:"job"`
	Included bool                 `json:"included"`
	Reasons  []string             `json:"reasons"`
	MLProb   *float64             `json:"ml_prob,omitempty"`
}

type decideStats struct {
	Overrides     int
	Rescued       int
	MLUnavailable bool
	Scores        map[string]float64
}

// Decide applies the filter, then user overrides, then the ML rescue gate.
// Overrides always win; rescue never touches an overridden job or a drop made
// by a location-derived gate.
func Decide(ctx context.Context, jobs []domain.NormalizedJob, s domain.Settings, overrides map[string]string, scorer rank.ScoringBackend, log *zap.Logger) ([]Decision, decideStats) {
	if log == nil {
		log = zap.NewNop()
	}
	var st decideStats

	eng := filter.New(s)
	out := make([]Decision, len(jobs))
	for i, j := range jobs {
		keep, reasons := eng.Explain(j)
		out[i] = Decision{Job: j, Included: keep, Reasons: append([]string{}, reasons...)}
	}

	overridden := make([]bool, len(out))
	for i := range out {
		switch overrides[out[i].Job.DedupeKey] {
		case store.OverrideInclude:
			out[i].Included = true
			out[i].Reasons = append(out[i].Reasons, ReasonForceInclude)
		case store.OverrideExclude:
			out[i].Included = false
			out[i].Reasons = append(out[i].Reasons, ReasonForceExclude)
		default:
			continue
		}
		overridden[i] = true
		st.Overrides++
	}

	if !s.MLEnabled {
		return out, st
	}

	if scorer == nil || !scorer.Available() {
		st.MLUnavailable = true
	} else {
		scores, err := scorer.Score(ctx, jobs)
		if err != nil {
			log.Warn("runner: ml scoring failed", zap.String("model", scorer.ModelID()), zap.Error(err))
			st.MLUnavailable = true
		} else {
			st.Scores = scores
		}
	}

	for i := range out {
		if p, ok := st.Scores[out[i].Job.DedupeKey]; ok {
			out[i].MLProb = &p
		}
	}

	if s.MLMode != domain.MLModeRescue {
		return out, st
	}
	for i := range out {
		d := &out[i]
		if d.Included || overridden[i] || filter.HasHardGate(d.Reasons) {
			continue
		}
		if st.MLUnavailable {
			d.Reasons = append(d.Reasons, ReasonMLUnavailable)
			continue
		}
		if d.MLProb != nil && *d.MLProb >= s.MLRescueThreshold {
			d.Included = true
			d.Reasons = append(d.Reasons, ReasonMLRescued)
			st.Rescued++
		}
	}
	return out, st
}

func kept(ds []Decision) []domain.NormalizedJob {
	var out []domain.NormalizedJob
	for _, d := range ds {
		if d.Included {
			out = append(out, d.Job)
		}
	}
	return out
}
