package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestApplyEnvFillsEmptyFields(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.Channels.Slack.WebhookURL = "https://hooks.slack.test/from-file"
	err := applyEnv(cfg, lookupFrom(map[string]string{
		"DISCORD_WEBHOOK_URL": "https://discord.test/hook",
		"SLACK_WEBHOOK_URL":   "https://hooks.slack.test/from-env",
		"TELEGRAM_BOT_TOKEN":  "123:abc",
		"TELEGRAM_CHAT_ID":    "-1001",
		"SITE_URL":            "https://watch.example.com",
		"PORT":                "9090",
	}))
	if err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.Channels.Discord.WebhookURL != "https://discord.test/hook" {
		t.Fatalf("discord = %q", cfg.Channels.Discord.WebhookURL)
	}
	if cfg.Channels.Slack.WebhookURL != "https://hooks.slack.test/from-file" {
		t.Fatalf("slack should keep file value, got %q", cfg.Channels.Slack.WebhookURL)
	}
	if cfg.Channels.Telegram.ChatID != -1001 {
		t.Fatalf("chat id = %d, want -1001", cfg.Channels.Telegram.ChatID)
	}
	if !cfg.Dashboard.Enabled || cfg.Dashboard.Addr != "0.0.0.0:9090" {
		t.Fatalf("dashboard = %+v, want enabled on 0.0.0.0:9090", cfg.Dashboard)
	}
	if cfg.Keepalive.SiteURL != "https://watch.example.com" {
		t.Fatalf("site url = %q", cfg.Keepalive.SiteURL)
	}
}

func TestApplyEnvRejectsBadChatID(t *testing.T) {
	t.Parallel()
	err := applyEnv(&Config{}, lookupFrom(map[string]string{"TELEGRAM_CHAT_ID": "general"}))
	if err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
}

func TestCheckCredentials(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.Channels.Required = []string{"discord"}
	cfg.Channels.Slack.WebhookURL = "https://hooks.slack.test/x"

	disabled, err := CheckCredentials(cfg)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	if len(disabled) != 1 || disabled[0] != "telegram" {
		t.Fatalf("disabled = %v, want [telegram]", disabled)
	}

	cfg.Channels.Discord.WebhookURL = "https://discord.test/hook"
	if _, err := CheckCredentials(cfg); err != nil {
		t.Fatalf("CheckCredentials after fix: %v", err)
	}
}

func TestLoadEnvMissingFileIsNotAnError(t *testing.T) {
	t.Parallel()
	if err := LoadEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("LoadEnv(missing) = %v, want nil", err)
	}
}

func TestLoadEnvDoesNotOverride(t *testing.T) {
	const key = "IMPACTWATCH_TEST_ENV_KEY"
	t.Setenv(key, "process")
	p := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(p, []byte(key+"=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadEnv(p); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv(key); got != "process" {
		t.Fatalf("%s = %q, want process", key, got)
	}
}
