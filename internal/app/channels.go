package app

import (
	"errors"

	"impactwatch/internal/config"
	"impactwatch/internal/transport"
	"impactwatch/internal/transport/discord"
	"impactwatch/internal/transport/slack"
	"impactwatch/internal/transport/telegram"
	"impactwatch/pkg/logx"
)

// buildChannels constructs every configured channel. Channels without
// credentials are skipped; CheckCredentials has already failed startup if
// a required one is missing.
func buildChannels(cfg *config.Config, s *config.Settings, log logx.Logger) ([]transport.Channel, *telegram.Channel, error) {
	c := cfg.Channels
	var (
		out  []transport.Channel
		tg   *telegram.Channel
		errs []error
	)
	add := func(ch transport.Channel, err error) {
		switch {
		case errors.Is(err, transport.ErrNotConfigured):
		case err != nil:
			errs = append(errs, err)
		default:
			out = append(out, ch)
			log.Info("channel enabled", logx.String("channel", ch.Name()))
		}
	}

	d, err := discord.New(discord.Config{
		WebhookURL: c.Discord.WebhookURL,
		Username:   c.Discord.Username,
		AvatarURL:  c.Discord.AvatarURL,
		Timeout:    2 * s.RequestTimeout,
	})
	add(d, err)

	sl, err := slack.New(slack.Config{
		WebhookURL: c.Slack.WebhookURL,
		Username:   c.Slack.Username,
		IconEmoji:  c.Slack.IconEmoji,
		Timeout:    s.RequestTimeout,
	})
	add(sl, err)

	tg, err = telegram.New(telegram.Config{
		Token:   c.Telegram.Token,
		ChatID:  c.Telegram.ChatID,
		Timeout: 2 * s.RequestTimeout,
	})
	add(tg, err)
	if err != nil {
		tg = nil
	}
	return out, tg, errors.Join(errs...)
}
