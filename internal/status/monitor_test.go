package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"impactwatch/internal/dedup"
	"impactwatch/internal/eventbus"
	"impactwatch/internal/plays"
	"impactwatch/internal/queue"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestMonitor(t *testing.T) (*Monitor, *clock, *queue.Queue, *dedup.SeenSet) {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	clk := &clock{t: time.Date(2025, 7, 4, 16, 0, 0, 0, time.UTC)} // 12:00 EDT
	q := queue.New(queue.Config{MaxSize: 10}, nil)
	seen := dedup.NewSeenSet(100)
	return NewMonitor(q, seen, WithClock(clk.Now), WithLocation(ny)), clk, q, seen
}

func TestSetActive(t *testing.T) {
	t.Parallel()
	m, _, _, _ := newTestMonitor(t)
	if !m.Active() {
		t.Fatal("monitor should start active")
	}
	if !m.SetActive(false) || m.SetActive(false) {
		t.Fatal("SetActive should report only real changes")
	}
	if s := m.Snapshot(); s.Active || s.Status != "stopped" {
		t.Fatalf("snapshot = %+v", s)
	}
}

func TestDailyResetAndRestore(t *testing.T) {
	t.Parallel()
	m, clk, _, _ := newTestMonitor(t)
	if m.Day() != "2025-07-04" {
		t.Fatalf("day = %s", m.Day())
	}
	m.Add(Seen, 3)
	m.Add(Published, 1)

	clk.Set(time.Date(2025, 7, 5, 13, 0, 0, 0, time.UTC)) // 09:00 EDT
	prev := m.ResetDaily(clk.Now())
	if prev.Seen != 3 || prev.Published != 1 || prev.Day != "2025-07-04" {
		t.Fatalf("closed day = %+v", prev)
	}
	if d := m.Daily(); d.Seen != 0 || d.Day != "2025-07-05" {
		t.Fatalf("new day = %+v", d)
	}

	if m.RestoreDaily(prev) {
		t.Fatal("restored counters from a previous day")
	}
	if !m.RestoreDaily(DailyStats{Day: "2025-07-05", Queued: 4}) || m.Daily().Queued != 4 {
		t.Fatalf("same-day restore failed: %+v", m.Daily())
	}
}

func TestObserveCountsEvents(t *testing.T) {
	t.Parallel()
	m, _, _, _ := newTestMonitor(t)
	bus := eventbus.New()
	remove := bus.Observe(m.Observe)
	defer remove()
	// A full subscriber drops events; the observer still sees all of them.
	_, unsub := bus.Subscribe(1)
	defer unsub()

	for _, typ := range []string{
		eventbus.EventSeen, eventbus.EventSeen, eventbus.QueueEnqueued,
		eventbus.QueueDropped, eventbus.QueueEnriched, eventbus.QueueAbandoned,
		eventbus.PublishFailed, eventbus.PublishGaveUp,
	} {
		bus.Publish(eventbus.Event{Type: typ})
	}
	at := time.Date(2025, 7, 4, 17, 0, 0, 0, time.UTC)
	bus.Publish(eventbus.Event{Type: eventbus.PublishSent, Time: at, Data: eventbus.ItemData{EventID: "1_2_9_bottom"}})

	if bus.Dropped() == 0 {
		t.Fatal("expected the one-slot subscriber to drop events")
	}
	want := DailyStats{Day: "2025-07-04", Seen: 2, Queued: 1, Dropped: 1, Enriched: 1, Abandoned: 1, Published: 1, Failed: 1}
	got := m.Daily()
	got.ResetAt = time.Time{}
	if got != want {
		t.Fatalf("daily = %+v, want %+v", got, want)
	}
	if s := m.Snapshot(); s.LastPublished == nil || s.LastPublished.EventID != "1_2_9_bottom" || !s.LastPublished.At.Equal(at) {
		t.Fatalf("last published = %+v", s.LastPublished)
	}

	remove()
	bus.Publish(eventbus.Event{Type: eventbus.EventSeen})
	if m.Daily().Seen != 2 {
		t.Fatalf("removed observer still counted: %+v", m.Daily())
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	m, clk, q, seen := newTestMonitor(t)
	_ = q.Enqueue(plays.RawEvent{Game: plays.GameRef{GamePK: 1, HomeAbbr: "NYM", AwayAbbr: "ATL"}, AtBatIndex: 4, Inning: 9, HalfInning: "top", Event: "Home Run", Impact: 0.41})
	seen.Mark("a")
	seen.Mark("b")

	if s := m.Snapshot(); s.LastPoll != nil {
		t.Fatalf("last poll before any scan: %v", s.LastPoll)
	}
	clk.Set(clk.Now().Add(90 * time.Second))
	m.RecordPoll(PollReport{Duration: 1500 * time.Millisecond, Games: 3, Plays: 12, Notable: 1, Err: errors.New("one game failed")})

	s := m.Snapshot()
	if s.QueueLength != 1 || s.QueueCapacity != 10 || s.SeenLength != 2 || s.SeenCapacity != 100 {
		t.Fatalf("lengths = %+v", s)
	}
	if s.TotalScans != 1 || s.LastScan.Games != 3 || s.LastScan.DurationSeconds != 1.5 || s.LastPollError == "" {
		t.Fatalf("scan = %+v", s)
	}
	if s.UptimeSeconds != 90 || s.Uptime != "1m30s" {
		t.Fatalf("uptime = %d %q", s.UptimeSeconds, s.Uptime)
	}
	if len(s.Queue) != 1 || s.Queue[0].Matchup != "ATL @ NYM" || s.Queue[0].State != "ENRICHED" {
		t.Fatalf("queue details = %+v", s.Queue)
	}

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	_ = json.Unmarshal(b, &back)
	for _, k := range []string{"active", "last_poll", "daily", "queue_length"} {
		if _, ok := back[k]; !ok {
			t.Fatalf("json missing %q: %s", k, b)
		}
	}
}
