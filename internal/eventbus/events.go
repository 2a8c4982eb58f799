package eventbus

// Pipeline event types.
const (
	PollCompleted = "poll.completed"
	PollFailed    = "poll.failed"

	EventSeen = "event.seen"

	QueueEnqueued  = "queue.enqueued"
	QueueDropped   = "queue.dropped"
	QueueEnriched  = "queue.enriched"
	QueueRetry     = "queue.retry"
	QueueAbandoned = "queue.abandoned"

	PublishSent   = "publish.sent"
	PublishFailed = "publish.failed"
	PublishGaveUp = "publish.gave_up"

	MonitorStarted = "monitor.started"
	MonitorStopped = "monitor.stopped"
	DailyReset     = "status.daily_reset"
)

// PollData accompanies PollCompleted.
type PollData struct {
	DurationSeconds float64
	Games           int
	Plays           int
	Notable         int
}

// ItemData accompanies queue.* and publish.* events.
type ItemData struct {
	EventID  string
	Attempts int
	QueueLen int
	Channel  string
	Err      string
}
