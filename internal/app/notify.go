package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"tpmb/pkg/logx"
)

// notifyReady tells systemd the unit is up and, when a watchdog is
// configured, starts the keepalive ticker. Both are no-ops outside a
// systemd unit (no NOTIFY_SOCKET).
func (a *App) notifyReady(ctx context.Context) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
		return
	}
	if !sent {
		return
	}
	a.log.Debug("systemd notified ready")

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}

func (a *App) notifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}
