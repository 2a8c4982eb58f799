package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // status.timezone must resolve on hosts without zoneinfo
)

const (
	StrategyImpact       = "impact"
	StrategyTeamHomeRuns = "team_homeruns"

	DefaultPollInterval   = 120 * time.Second
	DefaultRequestTimeout = 15 * time.Second
	DefaultFinishedWindow = 3 * time.Hour
	DefaultHeartbeatEvery = 10 * time.Minute

	DefaultQueueMaxSize    = 10
	DefaultMaxAttempts     = 5
	DefaultRetryInterval   = 5 * time.Minute
	DefaultAdvanceEvery    = 60 * time.Second
	DefaultDrainEvery      = 60 * time.Second
	DefaultSeenCapacity    = 100
	DefaultPublishAttempts = 5
	DefaultPublishRate     = 1.0

	DefaultHigh         = 0.40
	DefaultMid          = 0.30
	DefaultLow          = 0.25
	DefaultHighLeverage = 3.0
	DefaultMidLeverage  = 2.5

	DefaultResetCron = "0 9 * * *"
	DefaultTimezone  = "America/New_York"

	DefaultDashboardAddr = "127.0.0.1:8080"
	DefaultKeepaliveN    = 3
	DefaultSnapshotEvery = time.Minute
	DefaultJournalKeep   = 500
	DefaultGiveUpAfter   = 6 * time.Hour

	minRequestTimeout = 10 * time.Second
	maxRequestTimeout = 30 * time.Second
)

// Settings is the resolved, typed view of a Config with all defaults applied.
// Components take their sections from here; nothing downstream parses
// duration strings.
type Settings struct {
	Strategy       string
	TeamID         int
	PollInterval   time.Duration
	RequestTimeout time.Duration
	FinishedWindow time.Duration
	HeartbeatEvery time.Duration
	APIBase        string

	Thresholds Thresholds
	UseSavant  bool
	SavantBase string

	SeenCapacity int

	QueueMaxSize  int
	MaxAttempts   int
	RetryInterval time.Duration
	AdvanceEvery  time.Duration

	DrainEvery      time.Duration
	PublishAttempts int
	PublishRate     float64
	KeepArtifacts   bool

	Clip ClipSettings

	Dashboard DashboardSettings

	SiteURL         string
	KeepaliveCycles int
	Systemd         bool

	ResetCron string
	Location  *time.Location

	SnapshotEvery time.Duration
	JournalKeep   int
}

type Thresholds struct {
	High, Mid, Low            float64
	HighLeverage, MidLeverage float64
}

type ClipSettings struct {
	Enabled     bool
	WorkDir     string
	FFmpeg      string
	MaxSeconds  int
	FPS         int
	Width       int
	MaxBytes    int64
	GiveUpAfter time.Duration
}

type DashboardSettings struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

// Resolve applies defaults and validates cfg. It is also the reload
// validator: a config that does not resolve is never committed.
func Resolve(cfg *Config) (*Settings, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	var (
		s    Settings
		errs []error
	)
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
			return def
		}
		return d
	}

	m := cfg.Monitor
	s.Strategy = strings.ToLower(strings.TrimSpace(m.Strategy))
	if s.Strategy == "" {
		s.Strategy = StrategyImpact
	}
	switch s.Strategy {
	case StrategyImpact:
	case StrategyTeamHomeRuns:
		if m.TeamID <= 0 {
			errs = append(errs, errors.New("monitor.team_id: required for strategy team_homeruns"))
		}
	default:
		errs = append(errs, fmt.Errorf("monitor.strategy: unknown strategy %q", m.Strategy))
	}
	s.TeamID = m.TeamID
	s.PollInterval = dur("monitor.poll_interval", m.PollInterval, DefaultPollInterval)
	s.RequestTimeout = clampDuration(dur("monitor.request_timeout", m.RequestTimeout, DefaultRequestTimeout), minRequestTimeout, maxRequestTimeout)
	s.FinishedWindow = dur("monitor.finished_window", m.FinishedWindow, DefaultFinishedWindow)
	s.HeartbeatEvery = dur("monitor.heartbeat_every", m.HeartbeatEvery, DefaultHeartbeatEvery)
	s.APIBase = orString(m.APIBase, "https://statsapi.mlb.com")

	im := cfg.Impact
	s.Thresholds = Thresholds{
		High:         orFloat(im.High, DefaultHigh),
		Mid:          orFloat(im.Mid, DefaultMid),
		Low:          orFloat(im.Low, DefaultLow),
		HighLeverage: orFloat(im.HighLeverage, DefaultHighLeverage),
		MidLeverage:  orFloat(im.MidLeverage, DefaultMidLeverage),
	}
	if th := s.Thresholds; !(th.High >= th.Mid && th.Mid >= th.Low) {
		errs = append(errs, fmt.Errorf("impact: thresholds must satisfy high >= mid >= low (got %.2f/%.2f/%.2f)", th.High, th.Mid, th.Low))
	}
	if th := s.Thresholds; th.Low < 0 || th.MidLeverage < 0 || th.HighLeverage < 0 {
		errs = append(errs, errors.New("impact: thresholds must be >= 0"))
	}
	s.UseSavant = im.UseSavant
	s.SavantBase = orString(im.SavantBase, "https://baseballsavant.mlb.com")

	s.SeenCapacity = orInt(cfg.Dedup.Capacity, DefaultSeenCapacity)

	q := cfg.Queue
	s.QueueMaxSize = orInt(q.MaxSize, DefaultQueueMaxSize)
	s.MaxAttempts = orInt(q.MaxAttempts, DefaultMaxAttempts)
	s.RetryInterval = dur("queue.retry_interval", q.RetryInterval, DefaultRetryInterval)
	s.AdvanceEvery = dur("queue.advance_every", q.AdvanceEvery, DefaultAdvanceEvery)

	p := cfg.Publisher
	s.DrainEvery = dur("publisher.drain_every", p.DrainEvery, DefaultDrainEvery)
	s.PublishAttempts = orInt(p.MaxAttempts, DefaultPublishAttempts)
	s.PublishRate = orFloat(p.RatePerSec, DefaultPublishRate)
	s.KeepArtifacts = p.KeepArtifacts

	c := cfg.Clip
	s.Clip = ClipSettings{
		Enabled:     c.Enabled,
		WorkDir:     orString(c.WorkDir, "./gifs"),
		FFmpeg:      orString(c.FFmpeg, "ffmpeg"),
		MaxSeconds:  orInt(c.MaxSeconds, 10),
		FPS:         orInt(c.FPS, 15),
		Width:       orInt(c.Width, 480),
		MaxBytes:    c.MaxBytes,
		GiveUpAfter: dur("clip.give_up_after", c.GiveUpAfter, DefaultGiveUpAfter),
	}
	if s.Clip.MaxBytes <= 0 {
		s.Clip.MaxBytes = 15 << 20
	}

	d := cfg.Dashboard
	s.Dashboard = DashboardSettings{
		Enabled:       d.Enabled,
		Addr:          orString(d.Addr, DefaultDashboardAddr),
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
		ReadTimeout:   dur("dashboard.read_timeout", d.ReadTimeout, 10*time.Second),
		WriteTimeout:  dur("dashboard.write_timeout", d.WriteTimeout, 15*time.Second),
		IdleTimeout:   dur("dashboard.idle_timeout", d.IdleTimeout, 60*time.Second),
	}

	s.SiteURL = strings.TrimRight(strings.TrimSpace(cfg.Keepalive.SiteURL), "/")
	s.KeepaliveCycles = orInt(cfg.Keepalive.EveryCycles, DefaultKeepaliveN)
	s.Systemd = cfg.Keepalive.Systemd

	s.ResetCron = orString(cfg.Status.ResetCron, DefaultResetCron)
	tz := orString(cfg.Status.Timezone, DefaultTimezone)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		errs = append(errs, fmt.Errorf("status.timezone: %w", err))
		loc = time.UTC
	}
	s.Location = loc

	s.SnapshotEvery = DefaultSnapshotEvery
	s.JournalKeep = DefaultJournalKeep
	if st := cfg.Storage; st != nil {
		s.SnapshotEvery = dur("storage.snapshot_every", st.SnapshotEvery, DefaultSnapshotEvery)
		s.JournalKeep = orInt(st.JournalKeep, DefaultJournalKeep)
	}

	for _, name := range cfg.Channels.Required {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "discord", "slack", "telegram":
		default:
			errs = append(errs, fmt.Errorf("channels.required: unknown channel %q", name))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &s, nil
}

func orString(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orFloat(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

