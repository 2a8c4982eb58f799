package config

import (
	"reflect"
	"sort"
	"strings"

	"impactwatch/pkg/logx"
)

// SummarizeConfigChange returns (1) the changed top-level sections,
// (2) safe structured attrs for logging (never includes secrets like tokens
// or webhook URLs), and (3) the subset of changed sections that only take
// effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	restart := make([]string, 0, 2)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Monitor, newCfg.Monitor) {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.String("monitor.strategy", newCfg.Monitor.Strategy),
			logx.String("monitor.poll_interval", newCfg.Monitor.PollInterval),
			logx.Int("monitor.team_id", newCfg.Monitor.TeamID),
		)
		if oldCfg.Monitor.APIBase != newCfg.Monitor.APIBase {
			restart = append(restart, "monitor.api_base")
		}
	}

	if !reflect.DeepEqual(oldCfg.Impact, newCfg.Impact) {
		changed = append(changed, "impact")
		attrs = append(attrs,
			logx.Float64("impact.high", newCfg.Impact.High),
			logx.Float64("impact.mid", newCfg.Impact.Mid),
			logx.Float64("impact.low", newCfg.Impact.Low),
			logx.Bool("impact.use_savant", newCfg.Impact.UseSavant),
		)
	}

	if !reflect.DeepEqual(oldCfg.Queue, newCfg.Queue) || oldCfg.Dedup != newCfg.Dedup {
		changed = append(changed, "queue")
		attrs = append(attrs,
			logx.Int("queue.max_size", newCfg.Queue.MaxSize),
			logx.Int("queue.max_attempts", newCfg.Queue.MaxAttempts),
			logx.String("queue.retry_interval", newCfg.Queue.RetryInterval),
			logx.Int("dedup.capacity", newCfg.Dedup.Capacity),
		)
	}

	if oldCfg.Publisher != newCfg.Publisher {
		changed = append(changed, "publisher")
		attrs = append(attrs,
			logx.String("publisher.drain_every", newCfg.Publisher.DrainEvery),
			logx.Int("publisher.max_attempts", newCfg.Publisher.MaxAttempts),
		)
	}

	if oldCfg.Clip != newCfg.Clip {
		changed = append(changed, "clip")
		attrs = append(attrs, logx.Bool("clip.enabled", newCfg.Clip.Enabled))
		restart = append(restart, "clip")
	}

	// Channels (never log credentials, only whether they are set).
	if !reflect.DeepEqual(oldCfg.Channels, newCfg.Channels) {
		changed = append(changed, "channels")
		for _, st := range newCfg.Channels.States() {
			attrs = append(attrs, logx.Bool("channels."+st.Name+"_set", st.Configured))
		}
		restart = append(restart, "channels")
	}

	if oldCfg.Dashboard != newCfg.Dashboard {
		changed = append(changed, "dashboard")
		attrs = append(attrs,
			logx.Bool("dashboard.enabled", newCfg.Dashboard.Enabled),
			logx.String("dashboard.addr", strings.TrimSpace(newCfg.Dashboard.Addr)),
			logx.Bool("dashboard.token_set", strings.TrimSpace(newCfg.Dashboard.Token) != ""),
			logx.Bool("dashboard.allow_insecure", newCfg.Dashboard.AllowInsecure),
		)
	}

	if oldCfg.Keepalive != newCfg.Keepalive || oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.String("status.reset_cron", newCfg.Status.ResetCron),
			logx.String("status.timezone", newCfg.Status.Timezone),
			logx.Bool("keepalive.site_url_set", newCfg.Keepalive.SiteURL != ""),
		)
	}

	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
		if oS.Driver != nS.Driver || oS.Path != nS.Path || oS.BusyTimeout != nS.BusyTimeout {
			restart = append(restart, "storage")
		}
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}
