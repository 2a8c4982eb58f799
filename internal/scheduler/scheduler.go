package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"impactwatch/pkg/logx"
)

// job is one registered schedule.
type job struct {
	name    string
	spec    string
	timeout time.Duration
	fn      func(ctx context.Context) error

	entry   cron.EntryID
	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
}

// Entry is a read-only view of a job for the status page.
type Entry struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	Next    time.Time `json:"next"`
	Runs    uint64    `json:"runs"`
	Skipped uint64    `json:"skipped"`
}

type Service struct {
	log    logx.Logger
	parser cron.Parser

	mu   sync.Mutex
	loc  *time.Location
	c    *cron.Cron
	ctx  context.Context
	jobs map[string]*job
}

func New(loc *time.Location, log logx.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		loc:    loc,
		jobs:   map[string]*job{},
	}
}

// Add registers (or replaces, by name) a job. Runs never overlap: a tick
// that fires while the previous run is in flight is skipped.
func (s *Service) Add(name, schedule string, timeout time.Duration, fn func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if fn == nil {
		return errors.New("job required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	spec := ps.Spec()
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old := s.jobs[name]; old != nil && s.c != nil {
		s.c.Remove(old.entry)
	}
	j := &job{name: name, spec: spec, timeout: timeout, fn: fn}
	s.jobs[name] = j
	if s.c != nil {
		if err := s.registerLocked(j); err != nil {
			return err
		}
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec))
	return nil
}

func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return false
	}
	if s.c != nil {
		s.c.Remove(j.entry)
	}
	delete(s.jobs, name)
	return true
}

func (s *Service) registerLocked(j *job) error {
	id, err := s.c.AddFunc(j.spec, func() { s.fire(j) })
	if err != nil {
		return err
	}
	j.entry = id
	return nil
}

func (s *Service) fire(j *job) {
	if !j.running.CompareAndSwap(false, true) {
		j.skipped.Add(1)
		s.log.Debug("job still running; tick skipped", logx.String("name", j.name))
		return
	}
	defer j.running.Store(false)

	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil || parent.Err() != nil {
		return
	}
	ctx := parent
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, j.timeout)
		defer cancel()
	}

	j.runs.Add(1)
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("job panicked", logx.String("name", j.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return j.fn(ctx)
	}()
	if err != nil {
		s.log.Warn("job failed", logx.String("name", j.name), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("job done", logx.String("name", j.name), logx.Duration("took", time.Since(start)))
}

// Start begins triggering. Jobs receive ctx (or a child with their timeout).
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.startLocked()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

func (s *Service) startLocked() {
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, j := range s.jobs {
		if err := s.registerLocked(j); err != nil {
			s.log.Error("schedule register failed", logx.String("name", j.name), logx.Err(err))
		}
	}
	s.c.Start()
}

// SetLocation changes the trigger timezone, restarting cron when running.
func (s *Service) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc.String() == loc.String() {
		return
	}
	s.loc = loc
	if s.c == nil {
		return
	}
	s.c.Stop()
	s.startLocked()
	s.log.Info("scheduler timezone changed", logx.String("tz", loc.String()))
}

// Stop stops triggering and waits (bounded by ctx) for running jobs.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		e := Entry{Name: j.name, Spec: j.spec, Runs: j.runs.Load(), Skipped: j.skipped.Load()}
		if s.c != nil {
			e.Next = s.c.Entry(j.entry).Next
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}
