package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"impactwatch/internal/transport"
)

const (
	defaultUsername = "MLB Impact Tracker"
	defaultFooter   = "Enhanced MLB Impact Tracker"
	defaultColor    = 0xFF6B35

	// Discord rejects attachments above this size for unboosted servers.
	maxUploadBytes = 25 << 20
)

type Config struct {
	WebhookURL string
	Username   string
	AvatarURL  string
	Timeout    time.Duration
}

// Channel posts to a Discord incoming webhook.
type Channel struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Channel, error) {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil, transport.ErrNotConfigured
	}
	if cfg.Username == "" {
		cfg.Username = defaultUsername
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Channel{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (c *Channel) Name() string { return "discord" }

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Image       *embedImage  `json:"image,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embedImage struct {
	URL string `json:"url"`
}

type payload struct {
	Content   string  `json:"content,omitempty"`
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []embed `json:"embeds"`
}

func (c *Channel) buildPayload(p transport.Post, attachName string) payload {
	color := p.Color
	if color == 0 {
		color = defaultColor
	}
	footer := p.Footer
	if footer == "" {
		footer = defaultFooter
	}
	e := embed{
		Title:       p.Title,
		Description: p.Description,
		Color:       color,
		Footer:      &embedFooter{Text: footer},
	}
	if !p.Timestamp.IsZero() {
		e.Timestamp = p.Timestamp.UTC().Format(time.RFC3339)
	}
	for _, f := range p.Fields {
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		e.Fields = append(e.Fields, embedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if attachName != "" {
		e.Image = &embedImage{URL: "attachment://" + attachName}
	}
	return payload{
		Username:  c.cfg.Username,
		AvatarURL: c.cfg.AvatarURL,
		Embeds:    []embed{e},
	}
}

// Post sends p as an embed. With an artifact the request is a multipart
// upload (payload_json + file); oversized or unreadable artifacts degrade to
// an embed-only post.
func (c *Channel) Post(ctx context.Context, p transport.Post) error {
	if p.Artifact != nil && p.Artifact.Path != "" {
		if st, err := os.Stat(p.Artifact.Path); err == nil && st.Size() <= maxUploadBytes {
			return c.postMultipart(ctx, p)
		}
	}
	body, err := json.Marshal(c.buildPayload(p, ""))
	if err != nil {
		return fmt.Errorf("discord: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Channel) postMultipart(ctx context.Context, p transport.Post) error {
	name := filepath.Base(p.Artifact.Path)
	if name == "" || name == "." {
		name = "impact_play.gif"
	}
	pj, err := json.Marshal(c.buildPayload(p, name))
	if err != nil {
		return fmt.Errorf("discord: encode payload: %w", err)
	}

	f, err := os.Open(p.Artifact.Path)
	if err != nil {
		return fmt.Errorf("discord: open artifact: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("payload_json", string(pj)); err != nil {
		return err
	}
	ct := p.Artifact.ContentType
	if ct == "" {
		ct = "image/gif"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, name))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("discord: read artifact: %w", err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func (c *Channel) do(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &transport.StatusError{Channel: "discord", Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
