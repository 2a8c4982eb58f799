package config

// Config is the on-disk configuration (YAML or JSON).
//
// All durations are Go duration strings (e.g. "500ms", "120s", "5m").
// Zero/omitted values fall back to the defaults in defaults.go.
type Config struct {
	Monitor   MonitorConfig   `json:"monitor"`
	Impact    ImpactConfig    `json:"impact"`
	Dedup     DedupConfig     `json:"dedup,omitempty"`
	Queue     QueueConfig     `json:"queue,omitempty"`
	Publisher PublisherConfig `json:"publisher,omitempty"`
	Clip      ClipConfig      `json:"clip"`
	Channels  ChannelsConfig  `json:"channels"`
	Dashboard DashboardConfig `json:"dashboard,omitempty"`
	Keepalive KeepaliveConfig `json:"keepalive,omitempty"`
	Status    StatusConfig    `json:"status,omitempty"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Logging   LoggingConfig   `json:"logging"`
}

// MonitorConfig controls the poll loop.
//
// Strategy selects the filter policy:
//   - "impact" (default): league-wide, threshold classifier on impact/leverage
//   - "team_homeruns": home runs by batters of TeamID
type MonitorConfig struct {
	Strategy string `json:"strategy,omitempty"`
	TeamID   int    `json:"team_id,omitempty"`

	PollInterval   string `json:"poll_interval,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
	// FinishedWindow keeps final games in the live set for this long after
	// their scheduled start so late plays are not missed.
	FinishedWindow string `json:"finished_window,omitempty"`
	HeartbeatEvery string `json:"heartbeat_every,omitempty"`

	APIBase string `json:"api_base,omitempty"` // default: https://statsapi.mlb.com
}

type ImpactConfig struct {
	High         float64 `json:"high,omitempty"`
	Mid          float64 `json:"mid,omitempty"`
	Low          float64 `json:"low,omitempty"`
	HighLeverage float64 `json:"high_leverage,omitempty"`
	MidLeverage  float64 `json:"mid_leverage,omitempty"`

	// UseSavant refines impact with statcast delta_home_win_exp.
	UseSavant  bool   `json:"use_savant,omitempty"`
	SavantBase string `json:"savant_base,omitempty"` // default: https://baseballsavant.mlb.com
}

type DedupConfig struct {
	Capacity int `json:"capacity,omitempty"`
}

type QueueConfig struct {
	MaxSize       int    `json:"max_size,omitempty"`
	MaxAttempts   int    `json:"max_attempts,omitempty"`
	RetryInterval string `json:"retry_interval,omitempty"`
	AdvanceEvery  string `json:"advance_every,omitempty"`
}

type PublisherConfig struct {
	DrainEvery  string  `json:"drain_every,omitempty"`
	MaxAttempts int     `json:"max_attempts,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	// KeepArtifacts leaves GIFs on disk after a successful publish.
	KeepArtifacts bool `json:"keep_artifacts,omitempty"`
}

// ClipConfig controls enrichment. When Enabled is false items skip
// enrichment and are published text-only.
type ClipConfig struct {
	Enabled     bool   `json:"enabled"`
	WorkDir     string `json:"work_dir,omitempty"` // default: ./gifs
	FFmpeg      string `json:"ffmpeg,omitempty"`   // default: ffmpeg (PATH lookup)
	MaxSeconds  int    `json:"max_seconds,omitempty"`
	FPS         int    `json:"fps,omitempty"`
	Width       int    `json:"width,omitempty"`
	MaxBytes    int64  `json:"max_bytes,omitempty"`
	GiveUpAfter string `json:"give_up_after,omitempty"`
}

// ChannelsConfig holds posting destinations. Credentials are usually left
// empty here and supplied through the environment (see env.go).
//
// Required names channels whose missing credentials abort startup; every
// other channel is optional and is disabled with a warning.
type ChannelsConfig struct {
	Required []string       `json:"required,omitempty"`
	Discord  DiscordConfig  `json:"discord"`
	Slack    SlackConfig    `json:"slack"`
	Telegram TelegramConfig `json:"telegram"`
}

type DiscordConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"` // do not log
	Username   string `json:"username,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"` // do not log
	Username   string `json:"username,omitempty"`
	IconEmoji  string `json:"icon_emoji,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token,omitempty"` // do not log
	ChatID int64  `json:"chat_id,omitempty"`
}

// DashboardConfig controls the status HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8080").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DashboardConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:8080"; $PORT overrides
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type KeepaliveConfig struct {
	SiteURL     string `json:"site_url,omitempty"`
	EveryCycles int    `json:"every_cycles,omitempty"`
	Systemd     bool   `json:"systemd,omitempty"`
}

type StatusConfig struct {
	ResetCron string `json:"reset_cron,omitempty"` // default: "0 9 * * *"
	Timezone  string `json:"timezone,omitempty"`   // default: America/New_York
}

// StorageConfig controls snapshot persistence.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./impactwatch_state" }
type StorageConfig struct {
	Driver        string `json:"driver"`
	Path          string `json:"path"`
	BusyTimeout   string `json:"busy_timeout,omitempty"` // sqlite
	SnapshotEvery string `json:"snapshot_every,omitempty"`
	JournalKeep   int    `json:"journal_keep,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warnings to the telegram channel's chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
