package transport

import (
	"context"
	"errors"
	"strconv"
	"time"

	"impactwatch/internal/plays"
)

// ErrNotConfigured is returned by channel constructors when the credential
// (webhook URL, bot token) is missing.
var ErrNotConfigured = errors.New("channel not configured")

// Field is one labelled value rendered by rich channels (Discord embed
// fields, Slack section fields).
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Post is a channel-neutral outbound message.
//
// Text is the full plain-text rendering (used by text-only channels and as a
// caption); Title/Description/Fields feed the channels that support cards.
type Post struct {
	Title       string
	Description string
	Text        string
	Fields      []Field
	Footer      string
	Color       int
	Timestamp   time.Time

	// Artifact is optional; channels that can upload media attach it.
	Artifact *plays.Artifact
}

// Channel delivers a Post to one destination.
type Channel interface {
	Name() string
	Post(ctx context.Context, p Post) error
}

// StatusError reports a non-success HTTP response from a webhook.
type StatusError struct {
	Channel string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return e.Channel + ": unexpected status " + strconv.Itoa(e.Code)
	}
	return e.Channel + ": unexpected status " + strconv.Itoa(e.Code) + ": " + e.Body
}
