package types

import (
	"context"

	"jobharvest-engine/internal/domain"
)

// Fetcher is a source agent. Fetch fails only when the whole source could not
// be read; per-posting problems are absorbed inside the agent.
type Fetcher interface {
	Name() domain.SourceType
	Fetch(ctx context.Context, src domain.Source, label string) ([]domain.RawPosting, error)
}

// Registry maps source types to their agents.
type Registry map[domain.SourceType]Fetcher

func NewRegistry(fetchers ...Fetcher) Registry {
	r := make(Registry, len(fetchers))
	for _, f := range fetchers {
		if f != nil {
			r[f.Name()] = f
		}
	}
	return r
}
