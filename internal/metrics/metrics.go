// Package metrics exposes pipeline counters in Prometheus format. Values are
// fed from the event bus so no pipeline package imports prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"impactwatch/internal/eventbus"
)

const namespace = "impactwatch"

// Event kinds of impactwatch_events_total.
const (
	KindSeen          = "seen"
	KindQueued        = "queued"
	KindDropped       = "dropped"
	KindEnriched      = "enriched"
	KindRetried       = "retried"
	KindAbandoned     = "abandoned"
	KindPublished     = "published"
	KindPublishFailed = "publish_failed"
	KindGaveUp        = "gave_up"
)

var kindByEvent = map[string]string{
	eventbus.EventSeen:      KindSeen,
	eventbus.QueueEnqueued:  KindQueued,
	eventbus.QueueDropped:   KindDropped,
	eventbus.QueueEnriched:  KindEnriched,
	eventbus.QueueRetry:     KindRetried,
	eventbus.QueueAbandoned: KindAbandoned,
	eventbus.PublishSent:    KindPublished,
	eventbus.PublishFailed:  KindPublishFailed,
	eventbus.PublishGaveUp:  KindGaveUp,
}

type Metrics struct {
	reg *prometheus.Registry

	events       *prometheus.CounterVec
	channelFails *prometheus.CounterVec
	polls        *prometheus.CounterVec
	queueLen     prometheus.Gauge
	pollDur      prometheus.Histogram
	active       prometheus.Gauge
	busDropped   prometheus.GaugeFunc
}

// New registers the collectors on a private registry. dropped, when
// non-nil, reports the bus's dropped-event count.
func New(dropped func() uint64) *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	m.events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Pipeline events by kind.",
	}, []string{"kind"})
	m.channelFails = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "channel_failures_total",
		Help:      "Failed channel posts by channel.",
	}, []string{"channel"})
	m.polls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "polls_total",
		Help:      "Poll cycles by result.",
	}, []string{"result"})
	m.queueLen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_length",
		Help:      "Items in the processing queue.",
	})
	m.pollDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "poll_duration_seconds",
		Help:      "Duration of poll cycles.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	})
	m.active = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "monitor_active",
		Help:      "1 while monitoring, 0 when stopped from the dashboard.",
	})
	m.active.Set(1)

	m.reg.MustRegister(m.events, m.channelFails, m.polls, m.queueLen, m.pollDur, m.active,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if dropped != nil {
		m.busDropped = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eventbus_dropped",
			Help:      "Events dropped by slow bus subscribers.",
		}, func() float64 { return float64(dropped()) })
		m.reg.MustRegister(m.busDropped)
	}
	for _, k := range kindByEvent {
		m.events.WithLabelValues(k)
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Observe(e eventbus.Event) {
	if k, ok := kindByEvent[e.Type]; ok {
		m.events.WithLabelValues(k).Inc()
	}
	switch e.Type {
	case eventbus.PollCompleted:
		m.polls.WithLabelValues("ok").Inc()
		if d, ok := e.Data.(eventbus.PollData); ok {
			m.pollDur.Observe(d.DurationSeconds)
		}
	case eventbus.PollFailed:
		m.polls.WithLabelValues("error").Inc()
	case eventbus.MonitorStarted:
		m.active.Set(1)
	case eventbus.MonitorStopped:
		m.active.Set(0)
	}
	if d, ok := e.Data.(eventbus.ItemData); ok {
		if e.Type == eventbus.PublishFailed && d.Channel != "" {
			m.channelFails.WithLabelValues(d.Channel).Inc()
		}
		if d.QueueLen > 0 || e.Type == eventbus.QueueEnqueued || e.Type == eventbus.QueueDropped {
			m.queueLen.Set(float64(d.QueueLen))
		}
	}
}

// SetQueueLength is called after each drain, when the bus carries no length.
func (m *Metrics) SetQueueLength(n int) { m.queueLen.Set(float64(n)) }
