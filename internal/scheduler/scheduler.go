package scheduler

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

type Task func(ctx context.Context) error

const (
	ModeOff  = "off"
	ModeOnce = "once"
	ModeLoop = "loop"
)

// Every runs task now and then on each tick until ctx ends. Errors are logged
// and never stop the loop. Ticks that arrive while task runs are dropped.
func Every(ctx context.Context, interval time.Duration, name string, task Task, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	run := func() {
		if err := task(ctx); err != nil {
			log.Error("scheduler: task failed", zap.String("task", name), zap.Error(err))
		}
	}

	run()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			run()
		}
	}
}

// Run dispatches on mode: off does nothing, once runs task a single time and
// returns its error, loop blocks in Every.
func Run(ctx context.Context, mode string, interval time.Duration, name string, task Task, log *zap.Logger) error {
	switch mode {
	case ModeOff, "":
		return nil
	case ModeOnce:
		return task(ctx)
	case ModeLoop:
		if interval <= 0 {
			return eris.Errorf("scheduler: loop interval must be > 0, got %s", interval)
		}
		Every(ctx, interval, name, task, log)
		return nil
	default:
		return eris.Errorf("scheduler: unknown mode %q", mode)
	}
}
