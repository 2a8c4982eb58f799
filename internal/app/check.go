package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"impactwatch/internal/config"
	"impactwatch/internal/dashboard"
	"impactwatch/pkg/logx"
)

// CheckResult is one line of the startup health check.
type CheckResult struct {
	Name   string
	OK     bool
	Fatal  bool
	Detail string
}

// Check verifies the collaborators the pipeline needs. Only a Fatal failure
// should prevent startup; the rest degrade (e.g. text-only publishing).
func (a *App) Check(ctx context.Context) []CheckResult {
	cfg, s := a.cfgm.Get()
	var out []CheckResult

	pctx, cancel := context.WithTimeout(ctx, s.RequestTimeout)
	err := a.mlb.Ping(pctx)
	cancel()
	out = append(out, result("mlb_api", err, false))

	if s.Clip.Enabled {
		out = append(out, result("clip_renderer", a.renderer.Check(), false))
	}

	disabled, err := config.CheckCredentials(cfg)
	r := result("channels", err, true)
	if err == nil {
		names := a.pub.Channels()
		r.Detail = "enabled: " + orNone(names)
		if len(disabled) > 0 {
			r.Detail += "; disabled: " + strings.Join(disabled, ", ")
		}
		if len(names) == 0 {
			r.OK = false
			r.Detail = "no channel configured; plays will be dropped"
		}
	}
	out = append(out, r)

	if s.Dashboard.Enabled {
		out = append(out, result("dashboard_bind", dashboard.CheckBind(mapDashboardConfig(s)), false))
	}
	if a.store != nil {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, _, _, err := a.store.LatestSnapshot(sctx)
		cancel()
		out = append(out, result("storage", err, false))
	}
	return out
}

func result(name string, err error, fatal bool) CheckResult {
	if err != nil {
		return CheckResult{Name: name, Fatal: fatal, Detail: err.Error()}
	}
	return CheckResult{Name: name, OK: true, Detail: "ok"}
}

func orNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func (a *App) logChecks(results []CheckResult) error {
	var fatal []string
	for _, r := range results {
		switch {
		case r.OK:
			a.log.Info("health check passed", logx.String("check", r.Name), logx.String("detail", r.Detail))
		case r.Fatal:
			a.log.Error("health check failed", logx.String("check", r.Name), logx.String("detail", r.Detail))
			fatal = append(fatal, r.Name)
		default:
			a.log.Warn("health check failed", logx.String("check", r.Name), logx.String("detail", r.Detail))
		}
	}
	if len(fatal) > 0 {
		return fmt.Errorf("startup check failed: %s", strings.Join(fatal, ", "))
	}
	return nil
}
