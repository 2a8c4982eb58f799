// Package queue holds detected plays between detection and publishing.
//
// The poll loop is the only producer (Enqueue). One worker advances items
// through enrichment (Advance). The Publisher is the only consumer
// (DrainReady, and Requeue after a failed publish). A single mutex guards
// the collection; it is never held across an enrichment call.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"impactwatch/internal/clip"
	"impactwatch/internal/eventbus"
	"impactwatch/internal/plays"
	"impactwatch/pkg/logx"
)

var (
	ErrQueueFull = errors.New("queue full")
	ErrDuplicate = errors.New("already queued")
)

// Enricher creates the media artifact for a play.
type Enricher interface {
	TryCreateClip(ctx context.Context, e plays.RawEvent) (plays.Artifact, error)
}

type Config struct {
	MaxSize       int
	MaxAttempts   int
	RetryInterval time.Duration
	// Enrich false publishes every item text-only without calling the
	// enricher.
	Enrich bool
}

func (c Config) withDefaults() Config {
	c.MaxSize = max(c.MaxSize, 1)
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 5 * time.Minute
	}
	return c
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option { return func(q *Queue) { q.now = now } }
func WithLogger(log logx.Logger) Option     { return func(q *Queue) { q.log = log } }
func WithBus(bus eventbus.Bus) Option       { return func(q *Queue) { q.bus = bus } }

type Queue struct {
	enricher Enricher
	now      func() time.Time
	log      logx.Logger
	bus      eventbus.Bus
	ready    chan struct{}

	mu       sync.Mutex
	cfg      Config
	items    []*Item // creation order
	byID     map[string]*Item
	inflight map[*Item]struct{}
}

func New(cfg Config, enricher Enricher, opts ...Option) *Queue {
	q := &Queue{
		enricher: enricher,
		now:      time.Now,
		log:      logx.Nop(),
		bus:      eventbus.Nop{},
		ready:    make(chan struct{}, 1),
		cfg:      cfg.withDefaults(),
		byID:     map[string]*Item{},
		inflight: map[*Item]struct{}{},
	}
	for _, o := range opts {
		o(q)
	}
	if enricher == nil {
		q.cfg.Enrich = false
	}
	return q
}

// SetConfig applies reloaded limits. Items already queued keep their state;
// a lower MaxSize only affects future Enqueue calls.
func (q *Queue) SetConfig(cfg Config) {
	q.mu.Lock()
	q.cfg = cfg.withDefaults()
	if q.enricher == nil {
		q.cfg.Enrich = false
	}
	q.mu.Unlock()
}

// Ready is signalled (coalesced) whenever an item becomes drainable.
func (q *Queue) Ready() <-chan struct{} { return q.ready }

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue) emit(typ string, it *Item, n int, err error) {
	d := eventbus.ItemData{EventID: it.ID(), Attempts: it.Attempts, QueueLen: n}
	if err != nil {
		d.Err = err.Error()
	}
	q.bus.Publish(eventbus.Event{Type: typ, Data: d})
}

// Enqueue adds e. A full queue or a duplicate id drops the event; the
// returned error is informational and Enqueue never blocks.
func (q *Queue) Enqueue(e plays.RawEvent) error {
	now := q.now()
	it := &Item{Event: e, CreatedAt: now, NextRetryAt: now}

	q.mu.Lock()
	id := it.ID()
	if _, dup := q.byID[id]; dup {
		q.mu.Unlock()
		return ErrDuplicate
	}
	if len(q.items) >= q.cfg.MaxSize {
		n := len(q.items)
		limit := q.cfg.MaxSize
		q.mu.Unlock()
		q.log.Warn("queue full; dropping play", logx.String("id", id), logx.Int("len", n), logx.Int("max", limit))
		q.emit(eventbus.QueueDropped, it, n, ErrQueueFull)
		return ErrQueueFull
	}
	if !q.cfg.Enrich {
		it.State = Enriched
	}
	q.items = append(q.items, it)
	q.byID[id] = it
	n := len(q.items)
	q.mu.Unlock()

	q.log.Info("play queued",
		logx.String("id", id),
		logx.String("event", e.Event),
		logx.Percent("impact", e.Impact),
		logx.String("state", it.State.String()),
		logx.Int("len", n),
	)
	q.emit(eventbus.QueueEnqueued, it, n, nil)
	if it.State == Enriched {
		q.signal()
	}
	return nil
}

// Advance attempts enrichment for every pending item whose retry time has
// passed. It returns the number of attempts made.
func (q *Queue) Advance(ctx context.Context) int {
	now := q.now()

	q.mu.Lock()
	var due []*Item
	for _, it := range q.items {
		if it.State != PendingEnrichment || now.Before(it.NextRetryAt) {
			continue
		}
		if _, busy := q.inflight[it]; busy {
			continue
		}
		q.inflight[it] = struct{}{}
		due = append(due, it)
	}
	q.mu.Unlock()

	attempted := 0
	for _, it := range due {
		if ctx.Err() != nil {
			q.mu.Lock()
			delete(q.inflight, it)
			q.mu.Unlock()
			continue
		}
		attempted++
		art, err := q.tryEnrich(ctx, it)
		q.apply(it, art, err)
	}
	return attempted
}

// tryEnrich turns an enricher panic into a failed attempt so the item is
// never left marked in flight.
func (q *Queue) tryEnrich(ctx context.Context, it *Item) (art plays.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("enricher panic", logx.String("id", it.ID()), logx.Any("panic", r))
			art, err = plays.Artifact{}, fmt.Errorf("%w: enricher panic: %v", clip.ErrNotReady, r)
		}
	}()
	return q.enricher.TryCreateClip(ctx, it.Event)
}

func (q *Queue) apply(it *Item, art plays.Artifact, err error) {
	now := q.now()

	q.mu.Lock()
	delete(q.inflight, it)
	if q.byID[it.ID()] != it {
		// Replaced by Restore while enriching.
		q.mu.Unlock()
		return
	}
	maxAttempts := q.cfg.MaxAttempts
	var typ string
	if err == nil {
		it.State = Enriched
		it.Artifact = &art
		it.LastError = ""
		typ = eventbus.QueueEnriched
	} else {
		it.Attempts++
		it.LastError = err.Error()
		if errors.Is(err, clip.ErrPermanent) || it.Attempts >= maxAttempts {
			it.State = Abandoned
			it.Fallback = true
			typ = eventbus.QueueAbandoned
		} else {
			it.NextRetryAt = now.Add(q.cfg.RetryInterval)
			typ = eventbus.QueueRetry
		}
	}
	attempts := it.Attempts
	next := it.NextRetryAt
	n := len(q.items)
	q.mu.Unlock()

	id := it.ID()
	switch typ {
	case eventbus.QueueEnriched:
		q.log.Info("clip ready", logx.String("id", id), logx.String("path", art.Path), logx.Int64("bytes", art.Bytes))
		q.signal()
	case eventbus.QueueAbandoned:
		q.log.Warn("clip abandoned; publishing text-only",
			logx.String("id", id), logx.Int("attempts", attempts), logx.Int("max_attempts", maxAttempts), logx.Err(err))
		q.signal()
	default:
		q.log.Info("clip not ready; will retry",
			logx.String("id", id), logx.Int("attempts", attempts), logx.Time("next_retry_at", next), logx.Err(err))
	}
	q.emit(typ, it, n, err)
}

// DrainReady removes and returns every ENRICHED item and every ABANDONED
// item still owed its fallback publish, oldest first.
func (q *Queue) DrainReady() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*Item
	keep := q.items[:0]
	for _, it := range q.items {
		if it.drainable() {
			if it.State == Abandoned {
				it.Fallback = false
			}
			out = append(out, it)
			delete(q.byID, it.ID())
			continue
		}
		keep = append(keep, it)
	}
	clear(q.items[len(keep):])
	q.items = keep
	return out
}

// Requeue returns an item whose publish failed. The item already held a
// slot, so the size cap does not apply. An abandoned item gets its fallback
// flag back so it is drained again.
func (q *Queue) Requeue(it *Item) error {
	if it == nil {
		return nil
	}
	q.mu.Lock()
	id := it.ID()
	if _, dup := q.byID[id]; dup {
		q.mu.Unlock()
		return fmt.Errorf("requeue %s: %w", id, ErrDuplicate)
	}
	if it.State == Abandoned {
		it.Fallback = true
	}
	q.items = append(q.items, it)
	q.byID[id] = it
	q.mu.Unlock()
	return nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg.MaxSize
}

// Details renders the current items for the status page.
func (q *Queue) Details() []View {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]View, 0, len(q.items))
	for _, it := range q.items {
		v := View{
			ID:          it.ID(),
			Event:       it.Event.Event,
			Matchup:     it.Event.Game.Matchup(),
			Impact:      it.Event.Impact,
			State:       it.State.String(),
			Attempts:    it.Attempts,
			CreatedAt:   it.CreatedAt,
			HasArtifact: it.Artifact != nil,
		}
		if it.State == PendingEnrichment {
			v.NextRetryAt = it.NextRetryAt
		}
		out = append(out, v)
	}
	return out
}

// Snapshot copies every item for persistence.
func (q *Queue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, it.clone())
	}
	return out
}

// Restore replaces the contents with items (in order), dropping duplicates
// and terminal PUBLISHED entries. It reports how many were restored.
func (q *Queue) Restore(items []Item) int {
	q.mu.Lock()
	q.items = q.items[:0]
	clear(q.byID)
	clear(q.inflight)
	ready := false
	for i := range items {
		it := items[i].clone()
		if it.State == Published || (it.State == Abandoned && !it.Fallback) {
			continue
		}
		if it.State == PendingEnrichment && !q.cfg.Enrich {
			it.State = Enriched
		}
		id := it.ID()
		if _, dup := q.byID[id]; dup {
			continue
		}
		q.items = append(q.items, &it)
		q.byID[id] = &it
		ready = ready || it.drainable()
	}
	n := len(q.items)
	q.mu.Unlock()
	if ready {
		q.signal()
	}
	return n
}
