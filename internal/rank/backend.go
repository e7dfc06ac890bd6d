// Package rank provides the relevance scoring backends consumed by the run
// orchestrator. A backend is chosen once at startup; callers only ever see
// the ScoringBackend interface.
package rank

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/store"
)

// ScoringBackend maps jobs to relevance probabilities in [0,1], keyed by
// dedupe key. Jobs the backend cannot score are absent from the map.
type ScoringBackend interface {
	ModelID() string
	Available() bool
	Score(ctx context.Context, jobs []domain.NormalizedJob) (map[string]float64, error)
}

// Unavailable is the backend used when no model can be loaded.
type Unavailable struct {
	Reason string
}

func (Unavailable) ModelID() string { return "" }
func (Unavailable) Available() bool { return false }
func (Unavailable) Score(context.Context, []domain.NormalizedJob) (map[string]float64, error) {
	return map[string]float64{}, nil
}

// StoredScores serves probabilities written to job_ml_scores by an external
// trainer.
type StoredScores struct {
	db    *sql.DB
	model string
}

func NewStoredScores(db *sql.DB, modelID string) *StoredScores {
	return &StoredScores{db: db, model: modelID}
}

func (s *StoredScores) ModelID() string { return s.model }
func (s *StoredScores) Available() bool { return true }

func (s *StoredScores) Score(ctx context.Context, jobs []domain.NormalizedJob) (map[string]float64, error) {
	keys := make([]string, 0, len(jobs))
	for _, j := range jobs {
		if j.DedupeKey != "" {
			keys = append(keys, j.DedupeKey)
		}
	}
	return store.LoadMLScores(ctx, s.db, keys)
}

// Detect picks the backend described by cfg. It never fails; anything that
// prevents scoring yields Unavailable with the reason logged.
func Detect(ctx context.Context, cfg config.MLConfig, db *sql.DB, log *zap.Logger) ScoringBackend {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("rank")

	var b ScoringBackend
	switch cfg.Backend {
	case config.BackendKeyword:
		if len(cfg.Rules) == 0 {
			b = Unavailable{Reason: "keyword backend has no rules"}
		} else {
			b = NewKeywordModel(cfg)
		}
	case config.BackendStored:
		b = detectStored(ctx, cfg, db)
	default:
		b = Unavailable{Reason: "ml backend disabled"}
	}

	if u, ok := b.(Unavailable); ok {
		log.Info("rank: scoring unavailable", zap.String("reason", u.Reason))
	} else {
		log.Info("rank: scoring backend ready", zap.String("backend", cfg.Backend), zap.String("model_id", b.ModelID()))
	}
	return b
}

func detectStored(ctx context.Context, cfg config.MLConfig, db *sql.DB) ScoringBackend {
	if db == nil {
		return Unavailable{Reason: "no database"}
	}
	n, err := store.CountMLScores(ctx, db)
	if err != nil {
		return Unavailable{Reason: err.Error()}
	}
	if n == 0 {
		return Unavailable{Reason: "no stored scores"}
	}
	return NewStoredScores(db, cfg.ModelID)
}
