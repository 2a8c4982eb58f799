package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"impactwatch/internal/queue"
	"impactwatch/internal/status"
	"impactwatch/pkg/logx"
)

// state is the persisted snapshot: pending work, dedup memory and today's
// counters survive a restart.
type state struct {
	Day     string            `json:"day"`
	SavedAt time.Time         `json:"saved_at"`
	Queue   []queue.Item      `json:"queue"`
	Seen    []string          `json:"seen"`
	Daily   status.DailyStats `json:"daily"`
}

func (a *App) saveState(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	st := state{
		Day:     a.mon.Today(),
		SavedAt: time.Now(),
		Queue:   a.q.Snapshot(),
		Seen:    a.seen.Snapshot(),
		Daily:   a.mon.Daily(),
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return a.store.SaveSnapshot(ctx, st.Day, b)
}

// loadState restores today's snapshot, else the most recent one. Counters
// from another day are not restored.
func (a *App) loadState(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	today := a.mon.Today()
	day := today
	b, ok, err := a.store.LoadSnapshot(ctx, today)
	if err != nil {
		return err
	}
	if !ok {
		day, b, ok, err = a.store.LatestSnapshot(ctx)
		if err != nil || !ok {
			return err
		}
	}
	var st state
	if err := json.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("snapshot %s: %w", day, err)
	}
	a.seen.Restore(st.Seen)
	restored := a.q.Restore(st.Queue)
	counters := a.mon.RestoreDaily(st.Daily)
	a.log.Info("state restored",
		logx.String("day", day),
		logx.Int("queue", restored),
		logx.Int("seen", len(st.Seen)),
		logx.Bool("daily_restored", counters),
	)
	return nil
}
