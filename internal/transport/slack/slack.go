// Package slack posts impact plays to a Slack incoming webhook.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"impactwatch/internal/transport"
)

type Config struct {
	WebhookURL string
	Username   string
	IconEmoji  string
	Timeout    time.Duration
}

type Channel struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Channel, error) {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil, transport.ErrNotConfigured
	}
	if cfg.Username == "" {
		cfg.Username = "MLB Impact Tracker"
	}
	if cfg.IconEmoji == "" {
		cfg.IconEmoji = ":baseball:"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Channel{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (c *Channel) Name() string { return "slack" }

// Post renders p as a single legacy attachment. Incoming webhooks cannot
// upload files, so an artifact only adds a hint to the footer.
func (c *Channel) Post(ctx context.Context, p transport.Post) error {
	msg := buildMessage(c.cfg, p)
	if err := slack.PostWebhookCustomHTTPContext(ctx, c.cfg.WebhookURL, c.http, msg); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}

func buildMessage(cfg Config, p transport.Post) *slack.WebhookMessage {
	att := slack.Attachment{
		Color:    colorHex(p.Color),
		Title:    p.Title,
		Text:     p.Description,
		Fallback: fallbackText(p),
		Footer:   p.Footer,
	}
	for _, f := range p.Fields {
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		att.Fields = append(att.Fields, slack.AttachmentField{Title: f.Name, Value: f.Value, Short: f.Inline})
	}
	if !p.Timestamp.IsZero() {
		att.Ts = json.Number(strconv.FormatInt(p.Timestamp.Unix(), 10))
	}
	if p.Artifact != nil && att.Footer != "" {
		att.Footer += " · clip posted to Discord"
	}
	return &slack.WebhookMessage{
		Username:    cfg.Username,
		IconEmoji:   cfg.IconEmoji,
		Attachments: []slack.Attachment{att},
	}
}

func fallbackText(p transport.Post) string {
	if p.Text != "" {
		return p.Text
	}
	if p.Description == "" {
		return p.Title
	}
	return p.Title + ": " + p.Description
}

func colorHex(c int) string {
	if c == 0 {
		c = 0xFF6B35
	}
	return fmt.Sprintf("#%06X", c&0xFFFFFF)
}
