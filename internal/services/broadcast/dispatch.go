package broadcast

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"tpmb/internal/transport"
	"tpmb/pkg/logx"
)

type Dispatcher struct {
	cfg    Config
	log    logx.Logger
	sender transport.Sender

	mu   sync.Mutex
	last *Report

	// injected for tests
	rng   *rand.Rand
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, sender transport.Sender, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:    cfg.withDefaults(),
		log:    log,
		sender: sender,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
		sleep:  ctxSleep,
	}
}

// DispatchOnce runs a single cycle: pick one message, send it to every
// target in order, and return the aggregate report. An empty pool or
// target list is a logged no-op, not an error.
func (d *Dispatcher) DispatchOnce(ctx context.Context, pool []string, targets []transport.Target) Report {
	rep := Report{StartedAt: d.now()}
	if len(pool) == 0 || len(targets) == 0 {
		d.log.Warn("nothing to dispatch",
			logx.Int("messages", len(pool)),
			logx.Int("targets", len(targets)))
		return rep
	}

	// One message per cycle, shared by every target.
	msg := pool[d.rng.Intn(len(pool))]

	for _, target := range targets {
		if ctx.Err() != nil {
			d.log.Warn("dispatch cycle cancelled",
				logx.Int("remaining", len(targets)-rep.Attempted))
			break
		}
		res := d.sendWithRetry(ctx, target, msg)
		rep.Attempted++
		if res.Outcome == Success {
			rep.Succeeded++
		} else {
			rep.Failed++
		}
		rep.Results = append(rep.Results, res)
	}
	rep.Duration = d.now().Sub(rep.StartedAt)

	fields := []logx.Field{
		logx.Int("attempted", rep.Attempted),
		logx.Int("succeeded", rep.Succeeded),
		logx.Int("failed", rep.Failed),
		logx.Duration("dur", rep.Duration),
	}
	if rep.Failed > 0 {
		d.log.Warn("dispatch cycle finished with failures", fields...)
	} else {
		d.log.Info("dispatch cycle finished", fields...)
	}

	d.mu.Lock()
	d.last = &rep
	d.mu.Unlock()
	return rep
}

// sendWithRetry drives one target to success or exhaustion. Transient
// errors back off and retry; permanent errors stop immediately. Either
// way the failure stays local to this target.
func (d *Dispatcher) sendWithRetry(ctx context.Context, target transport.Target, msg string) Result {
	res := Result{Target: target}
	var lastErr error

	for attempt := 1; attempt <= d.cfg.RetryMax; attempt++ {
		res.Attempts = attempt
		err := d.sender.Send(ctx, target, msg)
		if err == nil {
			d.log.Debug("message sent",
				logx.String("target", string(target)),
				logx.Int("attempts", attempt))
			return res
		}
		lastErr = err
		if transport.IsPermanent(err) || ctx.Err() != nil {
			break
		}
		if attempt < d.cfg.RetryMax {
			delay := d.cfg.RetryBase << attempt
			d.log.Debug("send failed; backing off",
				logx.String("target", string(target)),
				logx.Int("attempt", attempt),
				logx.Duration("delay", delay),
				logx.Err(err))
			if d.sleep(ctx, delay) != nil {
				break
			}
		}
	}

	res.Outcome = Failed
	if lastErr != nil {
		res.Error = lastErr.Error()
	}
	d.log.Warn("target send failed",
		logx.String("target", string(target)),
		logx.Int("attempts", res.Attempts),
		logx.Err(lastErr))
	return res
}

// LastReport returns the most recent cycle's report, if any.
func (d *Dispatcher) LastReport() (Report, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return Report{}, false
	}
	return *d.last, true
}

// SeedRNG replaces the message-selection source; tests use it to make
// pool picks deterministic.
func (d *Dispatcher) SeedRNG(seed int64) {
	d.rng = rand.New(rand.NewSource(seed))
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
