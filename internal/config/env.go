package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ErrMissingCredential marks a required integration without credentials.
var ErrMissingCredential = errors.New("missing required credential")

// LoadEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env %s: %w", path, err)
	}
	return nil
}

// ApplyEnv fills empty secret/deployment fields of cfg from the
// environment. Values already present in the file win.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if cfg == nil {
		return nil
	}
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}
	fill := func(dst *string, key string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = get(key)
		}
	}

	fill(&cfg.Channels.Discord.WebhookURL, "DISCORD_WEBHOOK_URL")
	fill(&cfg.Channels.Slack.WebhookURL, "SLACK_WEBHOOK_URL")
	fill(&cfg.Channels.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	fill(&cfg.Dashboard.Token, "DASHBOARD_TOKEN")
	fill(&cfg.Keepalive.SiteURL, "SITE_URL")

	if cfg.Channels.Telegram.ChatID == 0 {
		if raw := get("TELEGRAM_CHAT_ID"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("TELEGRAM_CHAT_ID: invalid chat id %q: %w", raw, err)
			}
			cfg.Channels.Telegram.ChatID = id
		}
	}

	// PaaS-style port binding: listen on all interfaces.
	if port := get("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("PORT: invalid port %q", port)
		}
		cfg.Dashboard.Enabled = true
		cfg.Dashboard.Addr = net.JoinHostPort("0.0.0.0", port)
	}
	return nil
}

// ChannelState reports which posting channels have credentials.
type ChannelState struct {
	Name       string
	Configured bool
	Required   bool
}

// States lists every known channel with its configured/required flags.
func (c ChannelsConfig) States() []ChannelState {
	req := map[string]bool{}
	for _, n := range c.Required {
		req[strings.ToLower(strings.TrimSpace(n))] = true
	}
	return []ChannelState{
		{Name: "discord", Configured: strings.TrimSpace(c.Discord.WebhookURL) != "", Required: req["discord"]},
		{Name: "slack", Configured: strings.TrimSpace(c.Slack.WebhookURL) != "", Required: req["slack"]},
		{Name: "telegram", Configured: strings.TrimSpace(c.Telegram.Token) != "" && c.Telegram.ChatID != 0, Required: req["telegram"]},
	}
}

// CheckCredentials returns an ErrMissingCredential-wrapped error naming
// every required channel that is not configured, plus the names of optional
// channels that will run disabled.
func CheckCredentials(cfg *Config) (disabled []string, err error) {
	if cfg == nil {
		return nil, nil
	}
	var missing []string
	for _, st := range cfg.Channels.States() {
		if st.Configured {
			continue
		}
		if st.Required {
			missing = append(missing, st.Name)
			continue
		}
		disabled = append(disabled, st.Name)
	}
	if len(missing) > 0 {
		return disabled, fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}
	return disabled, nil
}
