package httpapi

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/discovery"
	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/runner"
	"jobharvest-engine/internal/store"
)

type Deps struct {
	DB  *store.DB
	Hub *events.Hub
	Log *zap.Logger

	// Atomic stores
	CfgVal    *atomic.Value // stores config.Config
	RunStatus *atomic.Value // stores httpapi.RunStatus

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// Entrypoints (inject for testability)
	RunOnce  func(ctx context.Context, cfg config.Config) (*runner.Result, error)
	Discover func(ctx context.Context, req discovery.Request) discovery.Result

	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}
