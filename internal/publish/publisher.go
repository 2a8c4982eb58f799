// Package publish drains ready items from the queue and posts them to every
// enabled channel.
//
// An item is done once all channels have accepted it. Channels that already
// succeeded are skipped on retry, and a failing item is retried at most
// MaxAttempts times before it is dropped.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"impactwatch/internal/eventbus"
	"impactwatch/internal/queue"
	"impactwatch/internal/storage"
	"impactwatch/internal/transport"
	"impactwatch/pkg/logx"
)

var ErrPublish = errors.New("publish failed")

// Source is the consumer side of the queue.
type Source interface {
	DrainReady() []*queue.Item
	Requeue(it *queue.Item) error
}

// Journal records published items.
type Journal interface {
	AppendPublished(ctx context.Context, r storage.PublishRecord) error
}

type Config struct {
	MaxAttempts   int
	RatePerSec    float64
	KeepArtifacts bool
	// Timeout bounds each channel post.
	Timeout  time.Duration
	Headline string
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Headline == "" {
		c.Headline = HeadlineMarquee
	}
	return c
}

func limit(perSec float64) rate.Limit {
	if perSec <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSec)
}

type Publisher struct {
	src      Source
	channels []transport.Channel
	journal  Journal
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time
	limiter  *rate.Limiter

	// drainMu serialises Drain; a drain woken by Ready must not interleave
	// with the periodic one.
	drainMu sync.Mutex

	mu  sync.RWMutex
	cfg Config
}

type Option func(*Publisher)

func WithJournal(j Journal) Option          { return func(p *Publisher) { p.journal = j } }
func WithBus(b eventbus.Bus) Option         { return func(p *Publisher) { p.bus = b } }
func WithLogger(l logx.Logger) Option       { return func(p *Publisher) { p.log = l } }
func WithClock(now func() time.Time) Option { return func(p *Publisher) { p.now = now } }

func New(cfg Config, src Source, channels []transport.Channel, opts ...Option) *Publisher {
	cfg = cfg.withDefaults()
	p := &Publisher{
		src:      src,
		channels: channels,
		bus:      eventbus.Nop{},
		log:      logx.Nop(),
		now:      time.Now,
		limiter:  rate.NewLimiter(limit(cfg.RatePerSec), 1),
		cfg:      cfg,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetConfig applies reloaded settings.
func (p *Publisher) SetConfig(cfg Config) {
	cfg = cfg.withDefaults()
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	p.limiter.SetLimit(limit(cfg.RatePerSec))
}

func (p *Publisher) config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Channels lists the enabled channel names.
func (p *Publisher) Channels() []string {
	out := make([]string, 0, len(p.channels))
	for _, ch := range p.channels {
		out = append(out, ch.Name())
	}
	return out
}

// Drain publishes every ready item. The error joins the per-item failures,
// each wrapping ErrPublish.
func (p *Publisher) Drain(ctx context.Context) error {
	p.drainMu.Lock()
	defer p.drainMu.Unlock()

	items := p.src.DrainReady()
	var errs []error
	for i, it := range items {
		if ctx.Err() != nil {
			// Hand the rest back untouched.
			for _, rest := range items[i:] {
				_ = p.src.Requeue(rest)
			}
			return ctx.Err()
		}
		if err := p.publish(ctx, it); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) publish(ctx context.Context, it *queue.Item) error {
	cfg := p.config()
	id := it.ID()
	post := BuildPost(cfg.Headline, it, p.now())

	if len(p.channels) == 0 {
		p.log.Warn("no channels enabled; dropping play", logx.String("id", id))
		p.finish(ctx, cfg, it)
		return nil
	}

	var failed []error
	for _, ch := range p.channels {
		name := ch.Name()
		if it.DeliveredTo(name) {
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			failed = append(failed, err)
			break
		}
		cctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err := ch.Post(cctx, post)
		cancel()
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", name, err))
			p.log.Warn("channel post failed", logx.String("id", id), logx.String("channel", name), logx.Err(err))
			p.bus.Publish(eventbus.Event{Type: eventbus.PublishFailed, Data: eventbus.ItemData{
				EventID: id, Attempts: it.PublishAttempts + 1, Channel: name, Err: err.Error(),
			}})
			continue
		}
		it.MarkDelivered(name)
	}

	if len(failed) == 0 {
		p.finish(ctx, cfg, it)
		return nil
	}

	it.PublishAttempts++
	err := fmt.Errorf("%w: %s: %w", ErrPublish, id, errors.Join(failed...))
	if it.PublishAttempts >= cfg.MaxAttempts {
		p.log.Error("publish gave up",
			logx.String("id", id),
			logx.Int("attempts", it.PublishAttempts),
			logx.Any("delivered", it.Delivered),
			logx.Err(err),
		)
		p.bus.Publish(eventbus.Event{Type: eventbus.PublishGaveUp, Data: eventbus.ItemData{EventID: id, Attempts: it.PublishAttempts, Err: err.Error()}})
		p.removeArtifact(cfg, it)
		return err
	}
	if rqErr := p.src.Requeue(it); rqErr != nil {
		p.log.Warn("requeue failed", logx.String("id", id), logx.Err(rqErr))
	}
	return err
}

// finish marks a fully delivered item published.
func (p *Publisher) finish(ctx context.Context, cfg Config, it *queue.Item) {
	id := it.ID()
	fallback := it.State == queue.Abandoned
	it.State = queue.Published

	rec := storage.PublishRecord{
		At:       p.now(),
		EventID:  id,
		Title:    it.Event.Event + " - " + it.Event.Game.Matchup(),
		Channels: append([]string(nil), it.Delivered...),
		Fallback: fallback,
		Artifact: it.Artifact != nil,
	}
	if p.journal != nil {
		if err := p.journal.AppendPublished(ctx, rec); err != nil && !errors.Is(err, storage.ErrDisabled) {
			p.log.Debug("journal append failed", logx.String("id", id), logx.Err(err))
		}
	}
	p.removeArtifact(cfg, it)

	p.log.Info("play published",
		logx.String("id", id),
		logx.Any("channels", it.Delivered),
		logx.Bool("fallback", fallback),
		logx.Bool("with_clip", it.Artifact != nil),
		logx.Int("publish_attempts", it.PublishAttempts+1),
	)
	p.bus.Publish(eventbus.Event{Type: eventbus.PublishSent, Time: rec.At, Data: eventbus.ItemData{EventID: id, Attempts: it.PublishAttempts}})
}

func (p *Publisher) removeArtifact(cfg Config, it *queue.Item) {
	if cfg.KeepArtifacts || it.Artifact == nil || it.Artifact.Path == "" {
		return
	}
	if err := os.Remove(it.Artifact.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.log.Debug("artifact cleanup failed", logx.String("path", it.Artifact.Path), logx.Err(err))
	}
}
