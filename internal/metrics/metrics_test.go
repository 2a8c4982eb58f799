package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"impactwatch/internal/eventbus"
)

func gather(t *testing.T, m *Metrics) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

func counter(mf *dto.MetricFamily, label, value string) float64 {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func TestObserve(t *testing.T) {
	t.Parallel()
	m := New(func() uint64 { return 4 })

	m.Observe(eventbus.Event{Type: eventbus.EventSeen})
	m.Observe(eventbus.Event{Type: eventbus.QueueEnqueued, Data: eventbus.ItemData{QueueLen: 3}})
	m.Observe(eventbus.Event{Type: eventbus.PublishFailed, Data: eventbus.ItemData{Channel: "slack"}})
	m.Observe(eventbus.Event{Type: eventbus.PublishFailed, Data: eventbus.ItemData{Channel: "slack"}})
	m.Observe(eventbus.Event{Type: eventbus.PollCompleted, Data: eventbus.PollData{DurationSeconds: 1.2}})
	m.Observe(eventbus.Event{Type: eventbus.PollFailed})
	m.Observe(eventbus.Event{Type: eventbus.MonitorStopped})

	mfs := gather(t, m)
	ev := mfs["impactwatch_events_total"]
	if counter(ev, "kind", KindSeen) != 1 || counter(ev, "kind", KindQueued) != 1 || counter(ev, "kind", KindPublishFailed) != 2 {
		t.Fatalf("events_total = %v", ev)
	}
	if counter(ev, "kind", KindPublished) != 0 {
		t.Fatal("published kind should be pre-registered at 0")
	}
	if got := counter(mfs["impactwatch_channel_failures_total"], "channel", "slack"); got != 2 {
		t.Fatalf("channel failures = %v", got)
	}
	if got := mfs["impactwatch_queue_length"].GetMetric()[0].GetGauge().GetValue(); got != 3 {
		t.Fatalf("queue_length = %v", got)
	}
	if got := mfs["impactwatch_poll_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Fatalf("poll histogram count = %v", got)
	}
	if got := counter(mfs["impactwatch_polls_total"], "result", "error"); got != 1 {
		t.Fatalf("polls error = %v", got)
	}
	if got := mfs["impactwatch_monitor_active"].GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Fatalf("monitor_active = %v", got)
	}
	if got := mfs["impactwatch_eventbus_dropped"].GetMetric()[0].GetGauge().GetValue(); got != 4 {
		t.Fatalf("eventbus_dropped = %v", got)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()
	m := New(nil)
	m.SetQueueLength(2)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 || !strings.Contains(string(body), "impactwatch_queue_length 2") {
		t.Fatalf("status %d body:\n%s", rec.Code, body)
	}
}
