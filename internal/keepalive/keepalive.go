// Package keepalive keeps hosted deployments awake and tells systemd the
// service is alive.
package keepalive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"impactwatch/pkg/logx"
)

// Pinger GETs <site>/health. Free hosting tiers idle a service that receives
// no inbound traffic; pinging our own public URL prevents that.
type Pinger struct {
	target string
	http   *http.Client
	log    logx.Logger
}

// NewPinger returns nil when siteURL is empty; a nil Pinger is a no-op.
func NewPinger(siteURL string, timeout time.Duration, log logx.Logger) *Pinger {
	siteURL = strings.TrimRight(strings.TrimSpace(siteURL), "/")
	if siteURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pinger{
		target: siteURL + "/health",
		http:   &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (p *Pinger) Target() string {
	if p == nil {
		return ""
	}
	return p.target
}

// Ping is skipped for localhost targets.
func (p *Pinger) Ping(ctx context.Context) error {
	if p == nil {
		return nil
	}
	u, err := url.Parse(p.target)
	if err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	if strings.EqualFold(u.Hostname(), "localhost") {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("keepalive: %s returned %d", p.target, resp.StatusCode)
	}
	p.log.Debug("keep-alive ping ok", logx.Int("status", resp.StatusCode))
	return nil
}
