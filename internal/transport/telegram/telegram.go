// Package telegram delivers impact plays to a Telegram chat through the Bot
// API. It also satisfies logx.TextSender so operator warnings can be routed
// to the same chat.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"impactwatch/internal/transport"
)

const (
	textLimit    = 4000
	captionLimit = 1024
)

type Config struct {
	Token   string
	ChatID  int64
	Timeout time.Duration

	// APIURL overrides the Bot API endpoint (tests, local bot server).
	APIURL string
}

type Channel struct {
	cfg Config
	bot *tele.Bot

	// Telegram throttles bursts per chat; serialize sends from concurrent
	// publishers and the log sink.
	mu sync.Mutex
}

func New(cfg Config) (*Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
		return nil, transport.ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:   cfg.APIURL,
		Token: cfg.Token,
		// Send-only; no getMe round trip and no update polling.
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Channel{cfg: cfg, bot: b}, nil
}

func (c *Channel) Name() string { return "telegram" }

// Post sends the clip as an animation with the text as caption when one is
// attached, otherwise the text alone. Text that does not fit a caption is
// sent as follow-up messages.
func (c *Channel) Post(ctx context.Context, p transport.Post) error {
	text := p.Text
	if text == "" {
		text = strings.TrimSpace(p.Title + "\n\n" + p.Description)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p.Artifact != nil && p.Artifact.Path != "" {
		if _, err := os.Stat(p.Artifact.Path); err == nil {
			caption, rest := splitCaption(text)
			chat := &tele.Chat{ID: c.cfg.ChatID}
			anim := &tele.Animation{File: tele.FromDisk(p.Artifact.Path), Caption: caption}
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := c.bot.Send(chat, anim); err != nil {
				return wrap(err)
			}
			if rest == "" {
				return nil
			}
			return c.sendChunks(ctx, rest)
		}
	}
	return c.sendChunks(ctx, text)
}

// SendText implements logx.TextSender.
func (c *Channel) SendText(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendChunks(ctx, text)
}

func (c *Channel) sendChunks(ctx context.Context, text string) error {
	chat := &tele.Chat{ID: c.cfg.ChatID}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return wrap(err)
		}
	}
	return nil
}

func wrap(err error) error {
	var te *tele.Error
	if errors.As(err, &te) {
		return &transport.StatusError{Channel: "telegram", Code: te.Code, Body: te.Description}
	}
	return errors.Join(errors.New("telegram: send failed"), err)
}

func splitCaption(text string) (caption, rest string) {
	rs := []rune(text)
	if len(rs) <= captionLimit {
		return text, ""
	}
	chunks := splitText(text, captionLimit)
	caption = chunks[0]
	rest = strings.TrimLeft(string(rs[len([]rune(caption)):]), "\n")
	return caption, rest
}

// splitText breaks s into chunks of at most limit runes, preferring newline
// boundaries when that does not produce tiny chunks.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
