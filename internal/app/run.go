package app

import (
	"context"
	"fmt"
	"time"

	"tpmb/internal/config"
	"tpmb/internal/services/broadcast"
	"tpmb/internal/services/scheduler"
	"tpmb/internal/storage"
	"tpmb/internal/transport"
	"tpmb/pkg/logx"
)

const (
	timesyncJobID  = "timesync"
	broadcastJobID = "broadcast"

	// timesyncCheckEvery is deliberately finer than the sync interval so
	// the DST-window halving takes effect without re-registering the job.
	timesyncCheckEvery = 15 * time.Minute
)

func (a *App) Start(ctx context.Context) error {
	if a.started {
		return fmt.Errorf("app already started")
	}
	a.started = true

	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Confirm the stored token still maps to a live bot account. A revoked
	// token is fatal; a transient API hiccup is not worth refusing to start
	// over.
	vctx, vcancel := context.WithTimeout(rctx, 15*time.Second)
	id, err := a.adapter.Verify(vctx)
	vcancel()
	if err != nil {
		if transport.IsPermanent(err) {
			cancel()
			return fmt.Errorf("bot identity check: %w", err)
		}
		a.log.Warn("bot identity check inconclusive; starting anyway", logx.Err(err))
	} else if !id.IsBot {
		cancel()
		return fmt.Errorf("credential does not belong to a bot account")
	}

	// First sync before any dispatch; failure falls back to local time.
	sctx, scancel := context.WithTimeout(rctx, 90*time.Second)
	a.ts.Sync(sctx)
	scancel()

	if err := a.sched.Start(rctx); err != nil {
		cancel()
		return err
	}
	if err := a.registerJobs(); err != nil {
		a.sched.Stop()
		cancel()
		return err
	}

	a.cfgCh = a.cfgm.Subscribe(4)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(rctx)
	}()
	go func() {
		defer a.wg.Done()
		a.reloadLoop(rctx)
	}()

	a.notifyReady(rctx)
	a.log.Info("bot started",
		logx.Duration("interval", a.currentPlan().every),
		logx.Int("targets", len(a.currentPlan().targets)))
	return nil
}

func (a *App) registerJobs() error {
	err := a.sched.AddJob(timesyncJobID, timesyncCheckEvery,
		scheduler.JobOptions{RetryOnFailure: true},
		func(ctx context.Context) error {
			if a.ts.IsSyncNeeded() && !a.ts.Sync(ctx) {
				return fmt.Errorf("time sync failed")
			}
			return nil
		})
	if err != nil {
		return err
	}
	return a.sched.AddJob(broadcastJobID, a.currentPlan().every,
		scheduler.JobOptions{}, a.runBroadcast)
}

// runBroadcast always returns nil: per-target failures live in the
// report, and a scheduler-level retry would re-send to targets that
// already succeeded.
func (a *App) runBroadcast(ctx context.Context) error {
	p := a.currentPlan()
	rep := a.disp.DispatchOnce(ctx, p.messages, p.targets)
	a.persistReport(ctx, rep)
	return nil
}

func (a *App) persistReport(ctx context.Context, rep broadcast.Report) {
	if a.store == nil || rep.Attempted == 0 {
		return
	}
	rec := storage.ReportRecord{
		At:        rep.StartedAt,
		Attempted: rep.Attempted,
		Succeeded: rep.Succeeded,
		Failed:    rep.Failed,
		TookMS:    rep.Duration.Milliseconds(),
	}
	for _, r := range rep.Results {
		rec.Results = append(rec.Results, storage.TargetResult{
			Target:   string(r.Target),
			Outcome:  r.Outcome.String(),
			Attempts: r.Attempts,
			Error:    r.Error,
		})
	}
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.store.AppendReport(sctx, rec); err != nil {
		a.log.Warn("persisting dispatch report failed", logx.Err(err))
	}
}

func (a *App) currentPlan() dispatchPlan {
	a.planMu.Lock()
	defer a.planMu.Unlock()
	return a.plan
}

func (a *App) reloadLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgCh:
			if !ok {
				return
			}
			if cfg == nil {
				continue
			}
			a.applyConfig(cfg)
		}
	}
}

// applyConfig handles the hot-reloadable subset: logging sinks, dispatch
// plan, and the broadcast cadence. Everything else (vault, token,
// adapter) needs a restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg.Logging))

	next := planFrom(cfg.Broadcast)
	a.planMu.Lock()
	prevEvery := a.plan.every
	a.plan = next
	a.planMu.Unlock()

	if next.every != prevEvery {
		if err := a.sched.AddJob(broadcastJobID, next.every,
			scheduler.JobOptions{}, a.runBroadcast); err != nil {
			a.log.Error("rescheduling broadcast failed", logx.Err(err))
			return
		}
		a.log.Info("broadcast rescheduled",
			logx.Duration("was", prevEvery),
			logx.Duration("now", next.every))
	}
	a.log.Info("config applied",
		logx.Int("targets", len(next.targets)),
		logx.Int("messages", len(next.messages)))
}

func (a *App) Stop(ctx context.Context) error {
	if !a.started {
		return nil
	}
	a.started = false
	a.notifyStopping()

	a.sched.Stop()
	if a.cancel != nil {
		a.cancel()
	}
	if a.cfgCh != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown wait cancelled", logx.Err(ctx.Err()))
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing history store", logx.Err(err))
		}
	}
	a.log.Info("bot stopped")
	return a.logs.Close()
}

// History returns the most recent dispatch records, newest first.
func (a *App) History(ctx context.Context, n int) ([]storage.ReportRecord, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.RecentReports(ctx, n)
}
