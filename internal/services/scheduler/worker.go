package scheduler

import (
	"context"
	"time"

	"tpmb/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, stopCh, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, t task) {
	s.mu.Lock()
	cfg := s.cfg
	ts := s.ts
	onMiss := s.onMiss
	onError := s.onError
	sleep := s.sleep
	s.mu.Unlock()

	// Coalesce firings that sat in the queue past the grace window
	// (process suspension, long predecessor): drop, never replay.
	if age := s.now().Sub(t.queuedAt); age > cfg.MissedGrace {
		s.log.Warn("firing missed grace window; dropping",
			logx.String("job", t.id),
			logx.Duration("age", age))
		if onMiss != nil {
			onMiss(t.id, t.queuedAt)
		}
		return
	}

	// The fire-time gate is advisory only: two firings of one id can
	// both sit in the queue before either runs. The claim here is what
	// actually guarantees at most one running instance per job.
	if !t.state.tryStart() {
		s.log.Debug("firing skipped; previous run still in flight", logx.String("job", t.id))
		return
	}
	defer t.state.finish()

	// Freshness check before the real work: a stale clock on a
	// schedule-sensitive job is worse than a slightly late firing.
	if ts != nil && ts.IsSyncNeeded() {
		s.log.Debug("clock stale; syncing before job", logx.String("job", t.id))
		ts.Sync(ctx)
	}

	start := s.now()
	var err error
	// The retry counter lives here, in this invocation, and nowhere
	// else; the next scheduled firing starts from zero.
	for attempt := 0; ; attempt++ {
		err = t.run(ctx)
		if err == nil {
			break
		}
		if !t.opt.RetryOnFailure || attempt >= cfg.RetryMax {
			break
		}
		delay := cfg.RetryBase << attempt
		s.log.Warn("job failed; retrying",
			logx.String("job", t.id),
			logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay),
			logx.Err(err))
		if sleep(ctx, stopCh, delay) != nil {
			return
		}
	}

	dur := s.now().Sub(start)
	if err != nil {
		s.log.Error("job failed", logx.String("job", t.id), logx.Duration("dur", dur), logx.Err(err))
		if onError != nil {
			onError(t.id, err)
		}
		return
	}
	if dur >= 750*time.Millisecond {
		s.log.Info("job completed", logx.String("job", t.id), logx.Duration("dur", dur))
	} else {
		s.log.Debug("job completed", logx.String("job", t.id), logx.Duration("dur", dur))
	}
}
