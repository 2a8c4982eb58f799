package app

import (
	"impactwatch/internal/classify"
	"impactwatch/internal/clip"
	"impactwatch/internal/config"
	"impactwatch/internal/dashboard"
	"impactwatch/internal/poller"
	"impactwatch/internal/publish"
	"impactwatch/internal/queue"
	"impactwatch/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Remote: logx.RemoteConfig{
			Enabled:    l.Telegram.Enabled,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapThresholds(s *config.Settings) classify.Thresholds {
	return classify.Thresholds{
		High:         s.Thresholds.High,
		Mid:          s.Thresholds.Mid,
		Low:          s.Thresholds.Low,
		HighLeverage: s.Thresholds.HighLeverage,
		MidLeverage:  s.Thresholds.MidLeverage,
	}
}

func mapPollerConfig(s *config.Settings) (poller.Config, error) {
	st, err := classify.NewStrategy(s.Strategy, mapThresholds(s), s.TeamID)
	if err != nil {
		return poller.Config{}, err
	}
	return poller.Config{
		Strategy:       st,
		UseSavant:      s.UseSavant,
		KeepaliveEvery: s.KeepaliveCycles,
	}, nil
}

// scheduleTeam is the schedule filter: only the team strategy narrows it.
func scheduleTeam(s *config.Settings) int {
	if s.Strategy == config.StrategyTeamHomeRuns {
		return s.TeamID
	}
	return 0
}

func mapQueueConfig(s *config.Settings) queue.Config {
	return queue.Config{
		MaxSize:       s.QueueMaxSize,
		MaxAttempts:   s.MaxAttempts,
		RetryInterval: s.RetryInterval,
		Enrich:        s.Clip.Enabled,
	}
}

func mapPublishConfig(s *config.Settings) publish.Config {
	headline := publish.HeadlineMarquee
	if s.Strategy == config.StrategyTeamHomeRuns {
		headline = publish.HeadlineHomeRun
	}
	return publish.Config{
		MaxAttempts:   s.PublishAttempts,
		RatePerSec:    s.PublishRate,
		KeepArtifacts: s.KeepArtifacts,
		Timeout:       s.RequestTimeout,
		Headline:      headline,
	}
}

func mapClipConfig(s *config.Settings) clip.Config {
	c := s.Clip
	return clip.Config{
		WorkDir:     c.WorkDir,
		FFmpeg:      c.FFmpeg,
		MaxSeconds:  c.MaxSeconds,
		FPS:         c.FPS,
		Width:       c.Width,
		MaxBytes:    c.MaxBytes,
		GiveUpAfter: c.GiveUpAfter,
		Timeout:     s.RequestTimeout,
	}
}

func mapDashboardConfig(s *config.Settings) dashboard.Config {
	d := s.Dashboard
	return dashboard.Config{
		Enabled:       d.Enabled,
		Addr:          d.Addr,
		Token:         d.Token,
		AllowInsecure: d.AllowInsecure,
		ReadTimeout:   d.ReadTimeout,
		WriteTimeout:  d.WriteTimeout,
		IdleTimeout:   d.IdleTimeout,
	}
}
