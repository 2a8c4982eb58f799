package queue

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"impactwatch/internal/plays"
)

type State int

const (
	PendingEnrichment State = iota
	Enriched
	Published
	Abandoned
)

var stateNames = [...]string{"PENDING_ENRICHMENT", "ENRICHED", "PUBLISHED", "ABANDONED"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if strings.EqualFold(string(b), n) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown queue state %q", b)
}

// Item is one detected play moving through the queue.
type Item struct {
	Event       plays.RawEvent  `json:"event"`
	State       State           `json:"state"`
	Attempts    int             `json:"attempts"`
	NextRetryAt time.Time       `json:"next_retry_at"`
	CreatedAt   time.Time       `json:"created_at"`
	Artifact    *plays.Artifact `json:"artifact,omitempty"`
	LastError   string          `json:"last_error,omitempty"`

	// Fallback marks an abandoned item owed exactly one text-only publish.
	Fallback bool `json:"fallback,omitempty"`

	PublishAttempts int      `json:"publish_attempts,omitempty"`
	Delivered       []string `json:"delivered,omitempty"`
}

func (it *Item) ID() string { return it.Event.ID() }

// drainable reports whether the Publisher should take the item.
func (it *Item) drainable() bool {
	return it.State == Enriched || (it.State == Abandoned && it.Fallback)
}

// DeliveredTo reports whether channel already received this item.
func (it *Item) DeliveredTo(channel string) bool {
	return slices.Contains(it.Delivered, channel)
}

// MarkDelivered records a successful channel post.
func (it *Item) MarkDelivered(channel string) {
	if !it.DeliveredTo(channel) {
		it.Delivered = append(it.Delivered, channel)
	}
}

func (it *Item) clone() Item {
	c := *it
	c.Delivered = slices.Clone(it.Delivered)
	if it.Artifact != nil {
		a := *it.Artifact
		c.Artifact = &a
	}
	return c
}

// View is the status-page rendering of an item.
type View struct {
	ID          string    `json:"id"`
	Event       string    `json:"event"`
	Matchup     string    `json:"matchup"`
	Impact      float64   `json:"impact"`
	State       string    `json:"state"`
	Attempts    int       `json:"attempts"`
	NextRetryAt time.Time `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	HasArtifact bool      `json:"has_artifact"`
}
