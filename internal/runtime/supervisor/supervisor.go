package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"impactwatch/pkg/logx"
)

// Supervisor manages goroutines tied to a shared context.
//   - Named goroutines (for logging and the status page)
//   - Panic recovery
//   - Optional cancel-on-first-error
//   - Graceful stop with timeout-aware waiting
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool
	errOnce     sync.Once
	firstErr    atomic.Value // stores error
	doneOnce    sync.Once
	doneCh      chan struct{}
	wg          sync.WaitGroup

	mu    sync.Mutex
	stats map[string]*LoopStats
}

type Option func(*Supervisor)

// LoopStats is a best-effort view of one named goroutine.
type LoopStats struct {
	Name        string    `json:"name"`
	Active      bool      `json:"active"`
	Runs        uint64    `json:"runs"`
	Panics      uint64    `json:"panics"`
	Restarts    uint64    `json:"restarts"`
	LastStartAt time.Time `json:"last_start_at"`
	LastErrAt   time.Time `json:"last_err_at"`
	LastErr     string    `json:"last_err,omitempty"`
}

// Snapshot is a point-in-time view of a supervisor.
type Snapshot struct {
	FirstError string      `json:"first_error,omitempty"`
	Loops      []LoopStats `json:"loops"`
}

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the supervisor context on the first non-nil
// error from any goroutine.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func NewSupervisor(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
		stats:  map[string]*LoopStats{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the supervisor context without waiting for goroutines to exit.
func (s *Supervisor) Cancel() { s.cancel() }

func (s *Supervisor) Err() error {
	if err, ok := s.firstErr.Load().(error); ok {
		return err
	}
	return nil
}

func (s *Supervisor) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	var snap Snapshot
	if err := s.Err(); err != nil {
		snap.FirstError = err.Error()
	}
	s.mu.Lock()
	for _, st := range s.stats {
		snap.Loops = append(snap.Loops, *st)
	}
	s.mu.Unlock()
	sort.Slice(snap.Loops, func(i, j int) bool { return snap.Loops[i].Name < snap.Loops[j].Name })
	return snap
}

// note applies fn to the stats entry for name.
func (s *Supervisor) note(name string, fn func(st *LoopStats)) {
	s.mu.Lock()
	st := s.stats[name]
	if st == nil {
		st = &LoopStats{Name: name}
		s.stats[name] = st
	}
	fn(st)
	s.mu.Unlock()
}

func (s *Supervisor) noteErr(name string, err error) {
	s.note(name, func(st *LoopStats) {
		st.LastErr = err.Error()
		st.LastErrAt = time.Now()
	})
}

// run executes fn with panic capture.
func (s *Supervisor) run(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	s.note(name, func(st *LoopStats) {
		st.Active = true
		st.Runs++
		st.LastStartAt = time.Now()
	})
	defer func() {
		if r := recover(); r != nil {
			s.note(name, func(st *LoopStats) { st.Panics++ })
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
		s.note(name, func(st *LoopStats) { st.Active = false })
	}()
	return fn(ctx)
}

func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Debug("goroutine started", logx.String("name", name))
		err := s.run(s.ctx, name, fn)
		if err != nil && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%s: %w", name, err)
			s.noteErr(name, err)
			s.setErr(err)
			if s.cancelOnErr {
				s.cancel()
			}
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// RestartOption configures GoRestart.
type RestartOption func(*restartCfg)

type restartCfg struct {
	minBackoff      time.Duration
	maxBackoff      time.Duration
	maxRestarts     int // <=0 means unlimited
	stopOnCleanExit bool
	publishFirstErr bool
}

// WithRestartBackoff configures the exponential backoff window used between restarts.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(c *restartCfg) {
		if min > 0 {
			c.minBackoff = min
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithMaxRestarts limits restarts before giving up. The initial run is not
// counted.
func WithMaxRestarts(n int) RestartOption { return func(c *restartCfg) { c.maxRestarts = n } }

// WithPublishFirstError surfaces the first failure in Err() (and so in
// /health) while still auto-restarting.
func WithPublishFirstError(enabled bool) RestartOption {
	return func(c *restartCfg) { c.publishFirstErr = enabled }
}

// WithStopOnCleanExit makes GoRestart stop (not restart) if fn returns nil.
// Default is true.
func WithStopOnCleanExit(enabled bool) RestartOption {
	return func(c *restartCfg) { c.stopOnCleanExit = enabled }
}

// GoRestart runs fn and restarts it on error/panic with jittered exponential
// backoff until the supervisor is cancelled.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartCfg{
		minBackoff:      250 * time.Millisecond,
		maxBackoff:      30 * time.Second,
		stopOnCleanExit: true,
	}
	for _, o := range opts {
		o(&cfg)
	}
	cfg.maxBackoff = max(cfg.maxBackoff, cfg.minBackoff)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := s.ctx
		backoff := cfg.minBackoff
		restarts := 0
		for ctx.Err() == nil {
			startedAt := time.Now()
			err := s.run(ctx, name, fn)

			// Returning because shutdown began is a clean stop.
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			if err == nil {
				if cfg.stopOnCleanExit {
					return
				}
				err = errors.New("exited")
			}

			err = fmt.Errorf("%s: %w", name, err)
			s.noteErr(name, err)
			if cfg.publishFirstErr {
				s.setErr(err)
			}

			restarts++
			if cfg.maxRestarts > 0 && restarts > cfg.maxRestarts {
				s.log.Error("goroutine gave up after restarts", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				s.setErr(err)
				if s.cancelOnErr {
					s.cancel()
				}
				return
			}
			s.note(name, func(st *LoopStats) { st.Restarts++ })

			// A long healthy run resets the backoff.
			if time.Since(startedAt) >= 30*time.Second {
				backoff = cfg.minBackoff
			}
			wait := min(backoff, cfg.maxBackoff)
			if j := int64(wait) / 5; j > 0 {
				wait += time.Duration(time.Now().UnixNano() % (j + 1))
			}
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))

			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			backoff = min(backoff*2, cfg.maxBackoff)
		}
	}()
}

// GoRestart0 is GoRestart for functions that don't return an error.
func (s *Supervisor) GoRestart0(name string, fn func(ctx context.Context), opts ...RestartOption) {
	if fn == nil {
		return
	}
	s.GoRestart(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	}, opts...)
}

// GoEvery runs fn on a fixed cadence: after each run it sleeps
// max(0, interval-elapsed). interval is re-read every cycle so reloads take
// effect without a restart. A cycle error is logged and the loop continues;
// a panic restarts the loop under GoRestart. wake, when non-nil, triggers an
// early cycle.
func (s *Supervisor) GoEvery(name string, interval func() time.Duration, wake <-chan struct{}, fn func(ctx context.Context) error) {
	if fn == nil || interval == nil {
		return
	}
	s.GoRestart(name, func(ctx context.Context) error {
		for {
			started := time.Now()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				s.noteErr(name, err)
				s.log.Warn("cycle failed", logx.String("name", name), logx.Err(err))
			}
			wait := max(0, interval()-time.Since(started))
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			case <-wake:
				t.Stop()
			}
		}
	}, WithStopOnCleanExit(true), WithPublishFirstError(true))
}

func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}

func (s *Supervisor) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() { s.firstErr.Store(err) })
}
