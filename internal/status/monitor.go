// Package status is the process-lifetime monitor context: the start/stop
// flag, the poll timeline and the daily counters the dashboard reports.
package status

import (
	"sync"
	"time"

	"impactwatch/internal/eventbus"
	"impactwatch/internal/queue"
)

// Counter names one DailyStats field.
type Counter int

const (
	Seen Counter = iota
	Queued
	Dropped
	Enriched
	Abandoned
	Published
	Failed
)

// DailyStats resets at the configured local-time boundary.
type DailyStats struct {
	Day       string    `json:"day"`
	Seen      int       `json:"seen"`
	Queued    int       `json:"queued"`
	Dropped   int       `json:"dropped"`
	Enriched  int       `json:"enriched"`
	Abandoned int       `json:"abandoned"`
	Published int       `json:"published"`
	Failed    int       `json:"failed"`
	ResetAt   time.Time `json:"reset_at"`
}

func (d *DailyStats) add(c Counter, n int) {
	switch c {
	case Seen:
		d.Seen += n
	case Queued:
		d.Queued += n
	case Dropped:
		d.Dropped += n
	case Enriched:
		d.Enriched += n
	case Abandoned:
		d.Abandoned += n
	case Published:
		d.Published += n
	case Failed:
		d.Failed += n
	}
}

// QueueView is the part of the queue the status page reads.
type QueueView interface {
	Len() int
	Cap() int
	Details() []queue.View
}

// SeenView is the part of the SeenSet the status page reads.
type SeenView interface {
	Len() int
	Cap() int
}

// PollReport is what the poll loop records after each cycle.
type PollReport struct {
	At       time.Time
	Duration time.Duration
	Games    int
	Plays    int
	Notable  int
	Err      error
}

type Monitor struct {
	now func() time.Time

	mu          sync.RWMutex
	loc         *time.Location
	active      bool
	startedAt   time.Time
	toggledAt   time.Time
	lastPoll    time.Time
	lastReport  PollReport
	scans       uint64
	daily       DailyStats
	queue       QueueView
	seen        SeenView
	lastEventID string
	lastPubAt   time.Time
}

type Option func(*Monitor)

func WithClock(now func() time.Time) Option  { return func(m *Monitor) { m.now = now } }
func WithLocation(loc *time.Location) Option { return func(m *Monitor) { m.loc = loc } }

// NewMonitor returns an active monitor whose day is the current local date.
func NewMonitor(q QueueView, s SeenView, opts ...Option) *Monitor {
	m := &Monitor{now: time.Now, loc: time.Local, queue: q, seen: s, active: true}
	for _, o := range opts {
		o(m)
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	now := m.now()
	m.startedAt = now
	m.toggledAt = now
	m.daily = DailyStats{Day: m.dayOf(now), ResetAt: now}
	return m
}

func (m *Monitor) dayOf(t time.Time) string { return t.In(m.loc).Format("2006-01-02") }

// SetLocation changes the zone used for day keys. The current counters keep
// their day.
func (m *Monitor) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	m.mu.Lock()
	m.loc = loc
	m.mu.Unlock()
}

// Day is the key of the current counters.
func (m *Monitor) Day() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.daily.Day
}

// Today is the local date right now.
func (m *Monitor) Today() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dayOf(m.now())
}

func (m *Monitor) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// SetActive flips the start/stop flag and reports whether it changed.
func (m *Monitor) SetActive(on bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == on {
		return false
	}
	m.active = on
	m.toggledAt = m.now()
	return true
}

func (m *Monitor) RecordPoll(r PollReport) {
	if r.At.IsZero() {
		r.At = m.now()
	}
	m.mu.Lock()
	m.lastPoll = r.At
	m.lastReport = r
	m.scans++
	m.mu.Unlock()
}

func (m *Monitor) Scans() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scans
}

func (m *Monitor) Add(c Counter, n int) {
	m.mu.Lock()
	m.daily.add(c, n)
	m.mu.Unlock()
}

// NotePublished records the most recent published play.
func (m *Monitor) NotePublished(id string, at time.Time) {
	m.mu.Lock()
	m.lastEventID = id
	m.lastPubAt = at
	m.mu.Unlock()
}

func (m *Monitor) Daily() DailyStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.daily
}

// ResetDaily zeroes the counters and starts a new day, returning the
// counters that were closed.
func (m *Monitor) ResetDaily(now time.Time) DailyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.daily
	m.daily = DailyStats{Day: m.dayOf(now), ResetAt: now}
	return prev
}

// RestoreDaily loads persisted counters. Counters from another day are
// discarded.
func (m *Monitor) RestoreDaily(d DailyStats) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.Day != m.dayOf(m.now()) {
		return false
	}
	m.daily = d
	return true
}

// Observe counts one pipeline event. It is registered with
// eventbus.MemBus.Observe so no event is lost.
func (m *Monitor) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.EventSeen:
		m.Add(Seen, 1)
	case eventbus.QueueEnqueued:
		m.Add(Queued, 1)
	case eventbus.QueueDropped:
		m.Add(Dropped, 1)
	case eventbus.QueueEnriched:
		m.Add(Enriched, 1)
	case eventbus.QueueAbandoned:
		m.Add(Abandoned, 1)
	case eventbus.PublishSent:
		m.Add(Published, 1)
		if d, ok := e.Data.(eventbus.ItemData); ok {
			m.NotePublished(d.EventID, e.Time)
		}
	case eventbus.PublishGaveUp:
		m.Add(Failed, 1)
	}
}
