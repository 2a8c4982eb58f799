package status

import (
	"time"

	"impactwatch/internal/queue"
)

type Snapshot struct {
	Active        bool           `json:"active"`
	Status        string         `json:"status"`
	StartedAt     time.Time      `json:"started_at"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Uptime        string         `json:"uptime"`
	ToggledAt     time.Time      `json:"toggled_at"`
	LastPoll      *time.Time     `json:"last_poll,omitempty"`
	LastPollError string         `json:"last_poll_error,omitempty"`
	LastScan      ScanSummary    `json:"last_scan"`
	TotalScans    uint64         `json:"total_scans"`
	Daily         DailyStats     `json:"daily"`
	QueueLength   int            `json:"queue_length"`
	QueueCapacity int            `json:"queue_capacity"`
	SeenLength    int            `json:"seen_length"`
	SeenCapacity  int            `json:"seen_capacity"`
	Queue         []queue.View   `json:"queue"`
	LastPublished *LastPublished `json:"last_published,omitempty"`
}

type ScanSummary struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Games           int     `json:"games"`
	Plays           int     `json:"plays"`
	Notable         int     `json:"notable"`
}

type LastPublished struct {
	EventID string    `json:"event_id"`
	At      time.Time `json:"at"`
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	now := m.now()
	s := Snapshot{
		Active:        m.active,
		Status:        "stopped",
		StartedAt:     m.startedAt,
		ToggledAt:     m.toggledAt,
		TotalScans:    m.scans,
		Daily:         m.daily,
		UptimeSeconds: int64(now.Sub(m.startedAt) / time.Second),
		Uptime:        now.Sub(m.startedAt).Truncate(time.Second).String(),
		LastScan: ScanSummary{
			DurationSeconds: m.lastReport.Duration.Seconds(),
			Games:           m.lastReport.Games,
			Plays:           m.lastReport.Plays,
			Notable:         m.lastReport.Notable,
		},
	}
	if m.active {
		s.Status = "running"
	}
	if !m.lastPoll.IsZero() {
		lp := m.lastPoll
		s.LastPoll = &lp
	}
	if m.lastReport.Err != nil {
		s.LastPollError = m.lastReport.Err.Error()
	}
	if m.lastEventID != "" {
		s.LastPublished = &LastPublished{EventID: m.lastEventID, At: m.lastPubAt}
	}
	q, seen := m.queue, m.seen
	m.mu.RUnlock()

	// The queue and SeenSet have their own locks.
	if q != nil {
		s.QueueLength = q.Len()
		s.QueueCapacity = q.Cap()
		s.Queue = q.Details()
	}
	if seen != nil {
		s.SeenLength = seen.Len()
		s.SeenCapacity = seen.Cap()
	}
	return s
}
