package app

import (
	"context"
	"time"

	"impactwatch/pkg/logx"
)

// advanceQueue is one queue.advance tick; it does nothing while the monitor
// is stopped.
func (a *App) advanceQueue(ctx context.Context) int {
	if !a.mon.Active() {
		return 0
	}
	return a.q.Advance(ctx)
}

// drainPublish is one publish.drain tick. Ready items stay queued while the
// monitor is stopped.
func (a *App) drainPublish(ctx context.Context) error {
	defer a.metrics.SetQueueLength(a.q.Len())
	if !a.mon.Active() {
		return nil
	}
	return a.pub.Drain(ctx)
}

// onToggle persists pending work when the monitor is stopped so a restart
// while stopped loses nothing.
func (a *App) onToggle(ctx context.Context, active bool) {
	a.log.Info("monitor toggled", logx.Bool("active", active))
	if active {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.saveState(ctx); err != nil {
		a.log.Warn("state save on stop failed", logx.Err(err))
	}
}
