// Package poller is the poll loop: each cycle it lists live games, reads the
// plays added since the last cycle, scores and filters them, and hands new
// notable plays to the queue.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"impactwatch/internal/classify"
	"impactwatch/internal/dedup"
	"impactwatch/internal/eventbus"
	"impactwatch/internal/plays"
	"impactwatch/internal/queue"
	"impactwatch/internal/savant"
	"impactwatch/internal/status"
	"impactwatch/pkg/logx"
)

type Source interface {
	ListLiveEvents(ctx context.Context) ([]plays.GameRef, error)
	ListPlaysSince(ctx context.Context, game plays.GameRef, cursor int) ([]plays.RawEvent, error)
}

// Refiner supplies statcast rows used to replace estimated impact with
// Savant's win-expectancy delta.
type Refiner interface {
	Search(ctx context.Context, gamePK int64, date string) ([]savant.Row, error)
}

type Queue interface {
	Enqueue(e plays.RawEvent) error
	Len() int
}

// Pinger is called every KeepaliveEvery cycles.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Strategy       classify.Strategy
	UseSavant      bool
	KeepaliveEvery int
}

type Deps struct {
	Source  Source
	Queue   Queue
	Seen    *dedup.SeenSet
	Monitor *status.Monitor
	Refiner Refiner
	Pinger  Pinger
	Bus     eventbus.Bus
	Log     logx.Logger
	Now     func() time.Time
}

type Poller struct {
	src     Source
	q       Queue
	seen    *dedup.SeenSet
	mon     *status.Monitor
	refiner Refiner
	pinger  Pinger
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time

	mu      sync.Mutex
	cfg     Config
	cursors map[int64]int
	cycles  uint64
}

func New(cfg Config, d Deps) *Poller {
	if d.Bus == nil {
		d.Bus = eventbus.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if cfg.Strategy == nil {
		cfg.Strategy, _ = classify.NewStrategy(classify.StrategyImpact, classify.DefaultThresholds(), 0)
	}
	return &Poller{
		src:     d.Source,
		q:       d.Queue,
		seen:    d.Seen,
		mon:     d.Monitor,
		refiner: d.Refiner,
		pinger:  d.Pinger,
		bus:     d.Bus,
		log:     d.Log,
		now:     d.Now,
		cfg:     cfg,
		cursors: map[int64]int{},
	}
}

// Apply swaps the filter strategy and flags after a config reload.
func (p *Poller) Apply(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg.Strategy == nil {
		cfg.Strategy = p.cfg.Strategy
	}
	p.cfg = cfg
}

func (p *Poller) config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

func (p *Poller) cursor(pk int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.cursors[pk]; ok {
		return c
	}
	return -1
}

func (p *Poller) setCursor(pk int64, c int) {
	p.mu.Lock()
	if prev, ok := p.cursors[pk]; !ok || c > prev {
		p.cursors[pk] = c
	}
	p.mu.Unlock()
}

// retainCursors forgets games that dropped off the live list.
func (p *Poller) retainCursors(games []plays.GameRef) {
	live := make(map[int64]bool, len(games))
	for _, g := range games {
		live[g.GamePK] = true
	}
	p.mu.Lock()
	for pk := range p.cursors {
		if !live[pk] {
			delete(p.cursors, pk)
		}
	}
	p.mu.Unlock()
}

// Cycle runs one poll. A stopped monitor skips the body but still counts the
// cycle for keep-alive purposes. The returned error is the live-games fetch
// failure, if any; per-game failures are logged and skipped.
func (p *Poller) Cycle(ctx context.Context) error {
	p.mu.Lock()
	p.cycles++
	n := p.cycles
	p.mu.Unlock()

	cfg := p.config()
	defer p.keepalive(ctx, cfg, n)

	if p.mon != nil && !p.mon.Active() {
		p.log.Debug("monitor stopped; skipping scan", logx.Uint64("cycle", n))
		return nil
	}

	start := p.now()
	games, err := p.src.ListLiveEvents(ctx)
	if err != nil {
		p.record(start, 0, 0, 0, err)
		p.bus.Publish(eventbus.Event{Type: eventbus.PollFailed, Data: eventbus.PollData{DurationSeconds: p.now().Sub(start).Seconds()}})
		return err
	}
	p.retainCursors(games)

	var checked, notable int
	for _, g := range games {
		if ctx.Err() != nil {
			break
		}
		c, k := p.scanGame(ctx, cfg, g)
		checked += c
		notable += k
	}

	p.record(start, len(games), checked, notable, nil)
	dur := p.now().Sub(start)
	p.bus.Publish(eventbus.Event{Type: eventbus.PollCompleted, Data: eventbus.PollData{
		DurationSeconds: dur.Seconds(), Games: len(games), Plays: checked, Notable: notable,
	}})

	fields := []logx.Field{
		logx.Uint64("scan", n),
		logx.Duration("duration", dur),
		logx.Int("games", len(games)),
		logx.Int("plays", checked),
		logx.Int("notable", notable),
	}
	if p.q != nil {
		fields = append(fields, logx.Int("queue_len", p.q.Len()))
	}
	if p.mon != nil {
		d := p.mon.Daily()
		fields = append(fields, logx.Int("today_queued", d.Queued), logx.Int("today_enriched", d.Enriched), logx.Int("today_published", d.Published))
	}
	p.log.Info("scan complete", fields...)
	return nil
}

func (p *Poller) record(start time.Time, games, checked, notable int, err error) {
	if p.mon == nil {
		return
	}
	p.mon.RecordPoll(status.PollReport{
		At:       start,
		Duration: p.now().Sub(start),
		Games:    games,
		Plays:    checked,
		Notable:  notable,
		Err:      err,
	})
}

// scanGame processes the new plays of g. The cursor does not move past a
// notable play the full queue rejected, so it is read again next cycle.
func (p *Poller) scanGame(ctx context.Context, cfg Config, g plays.GameRef) (checked, notable int) {
	evs, err := p.src.ListPlaysSince(ctx, g, p.cursor(g.GamePK))
	if err != nil {
		p.log.Warn("plays fetch failed", logx.Int64("game_pk", g.GamePK), logx.String("matchup", g.Matchup()), logx.Err(err))
		return 0, 0
	}

	rf := &refinement{}
	held := false
	for _, e := range evs {
		checked++
		ok, dropped := p.consider(ctx, cfg, g, e, rf)
		if ok {
			notable++
		}
		held = held || dropped
		if !held {
			p.setCursor(g.GamePK, e.AtBatIndex)
		}
	}
	return checked, notable
}

// refinement caches one Savant lookup per game per cycle.
type refinement struct {
	fetched bool
	rows    []savant.Row
}

// consider scores e and queues it when notable. dropped is true when the
// queue was full; such a play is not marked seen.
func (p *Poller) consider(ctx context.Context, cfg Config, g plays.GameRef, e plays.RawEvent, rf *refinement) (queued, dropped bool) {
	id := e.ID()
	if p.seen != nil && p.seen.Seen(id) {
		return false, false
	}

	if cfg.UseSavant && p.refiner != nil {
		if !rf.fetched {
			rf.fetched = true
			var err error
			rf.rows, err = p.refiner.Search(ctx, g.GamePK, g.GameDate)
			if err != nil {
				p.log.Debug("savant lookup failed", logx.Int64("game_pk", g.GamePK), logx.Err(err))
			}
		}
		if m, ok := savant.MatchWinExpDelta(rf.rows, e); ok {
			e.DeltaHomeWinExp = m.Delta
		}
	}

	d := cfg.Strategy.Decide(e)
	e.Impact = d.Impact
	if !d.Notable {
		return false, false
	}

	err := p.q.Enqueue(e)
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		return false, true
	case err != nil && !errors.Is(err, queue.ErrDuplicate):
		p.log.Debug("enqueue skipped", logx.String("id", id), logx.Err(err))
		return false, false
	}
	// Marking here also keeps a second copy of id in this cycle out.
	if p.seen != nil {
		p.seen.Mark(id)
	}
	if errors.Is(err, queue.ErrDuplicate) {
		return false, false
	}

	p.log.Info("notable play detected",
		logx.String("id", id),
		logx.String("matchup", g.Matchup()),
		logx.String("event", e.Event),
		logx.Percent("impact", e.Impact),
		logx.Float64("leverage", e.Leverage),
		logx.String("reason", d.Reason),
		logx.String("description", e.Description),
	)
	p.bus.Publish(eventbus.Event{Type: eventbus.EventSeen, Data: eventbus.ItemData{EventID: id}})
	return true, false
}

func (p *Poller) keepalive(ctx context.Context, cfg Config, cycle uint64) {
	if p.pinger == nil || cfg.KeepaliveEvery <= 0 || cycle%uint64(cfg.KeepaliveEvery) != 0 {
		return
	}
	if err := p.pinger.Ping(ctx); err != nil {
		p.log.Warn("keep-alive ping failed", logx.Err(err))
	}
}
