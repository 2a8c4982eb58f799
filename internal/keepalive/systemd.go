package keepalive

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"impactwatch/pkg/logx"
)

// Notifier speaks the sd_notify protocol. Every call is a no-op when the
// process was not started by systemd (NOTIFY_SOCKET unset).
type Notifier struct {
	log logx.Logger
}

func NewNotifier(log logx.Logger) *Notifier { return &Notifier{log: log} }

func (n *Notifier) notify(state string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return sent
}

func (n *Notifier) Ready() bool    { return n.notify(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() bool { return n.notify(daemon.SdNotifyStopping) }

// Watchdog pings the systemd watchdog at half the configured interval until
// ctx is done. It returns immediately when the watchdog is not enabled.
func (n *Notifier) Watchdog(ctx context.Context) {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.log.Warn("systemd watchdog config invalid", logx.Err(err))
		return
	}
	if every <= 0 {
		return
	}
	every /= 2
	n.log.Info("systemd watchdog enabled", logx.Duration("every", every))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
