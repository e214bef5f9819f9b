package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tpmb/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	ts      TimeSource
	onMiss  func(id string, queuedAt time.Time)
	onError func(id string, err error)

	c      *cron.Cron
	defs   []*jobDef
	queue  chan task
	stopCh chan struct{}

	now   func() time.Time
	sleep func(ctx context.Context, stop <-chan struct{}, d time.Duration) error
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg.withDefaults(),
		log:   log,
		now:   time.Now,
		sleep: stopSleep,
	}
}

// SetTimeSource attaches the synchronizer consulted before every firing.
func (s *Service) SetTimeSource(ts TimeSource) {
	s.mu.Lock()
	s.ts = ts
	s.mu.Unlock()
}

// SetMissHandler installs a callback invoked (from the worker goroutine)
// when a firing is dropped as missed.
func (s *Service) SetMissHandler(fn func(id string, queuedAt time.Time)) {
	s.mu.Lock()
	s.onMiss = fn
	s.mu.Unlock()
}

// SetErrorHandler installs a callback invoked after a firing has
// terminally failed (retries exhausted or retry disabled).
func (s *Service) SetErrorHandler(fn func(id string, err error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Start brings up the cron loop and the worker pool. An error here is
// fatal to the caller: a scheduler that cannot start must abort startup,
// not attempt a partial run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return errors.New("scheduler already started")
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("scheduler timezone: %w", err)
		}
		loc = l
	}
	s.loc = loc
	s.c = cron.New(cron.WithLocation(loc))

	for _, d := range s.defs {
		if err := s.registerLocked(d); err != nil {
			s.c = nil
			return fmt.Errorf("registering job %q: %w", d.id, err)
		}
	}

	s.stopCh = make(chan struct{})
	s.queue = make(chan task, s.cfg.QueueSize)
	for i := 0; i < s.cfg.Workers; i++ {
		go s.worker(ctx, s.stopCh, s.queue)
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("workers", s.cfg.Workers),
		logx.Int("jobs", len(s.defs)),
		logx.String("tz", loc.String()))
	return nil
}

// Stop signals the cron loop and workers and returns immediately. An
// in-flight job may still complete (or be abandoned with the context)
// after Stop returns; callers must not assume completion ordering.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.log.Info("scheduler stopped")
}

// AddJob registers (or replaces) a periodic job. When the scheduler is
// already running the job is armed immediately.
func (s *Service) AddJob(id string, every time.Duration, opt JobOptions, job func(ctx context.Context) error) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("job id required")
	}
	if every <= 0 {
		return errors.New("job interval must be positive")
	}
	if job == nil {
		return errors.New("job callback required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)

	d := &jobDef{id: id, every: every, opt: opt, job: job, state: &runState{}}
	s.defs = append(s.defs, d)
	if s.c == nil {
		return nil
	}
	if err := s.registerLocked(d); err != nil {
		return fmt.Errorf("registering job %q: %w", id, err)
	}
	s.log.Debug("job registered", logx.String("job", id), logx.Duration("every", every))
	return nil
}

// registerLocked arms d on the running cron instance. The fire closure
// enforces at-most-one-running per job id: an overlapping firing is
// skipped, never queued.
func (s *Service) registerLocked(d *jobDef) error {
	spec := fmt.Sprintf("@every %s", d.every.String())
	eid, err := s.c.AddFunc(spec, func() {
		if d.state.isRunning() {
			s.log.Debug("firing skipped; previous run still in flight", logx.String("job", d.id))
			return
		}
		s.enqueue(task{id: d.id, opt: d.opt, run: d.job, state: d.state, queuedAt: s.now()})
	})
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}

// Remove unregisters the job. It returns true if something was removed.
func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Service) removeLocked(id string) bool {
	for i, d := range s.defs {
		if d.id != id {
			continue
		}
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		s.defs = append(s.defs[:i], s.defs[i+1:]...)
		s.log.Debug("job removed", logx.String("job", id))
		return true
	}
	return false
}

// Get returns status metadata for one job.
func (s *Service) Get(id string) (JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.id == id {
			return s.infoLocked(d), true
		}
	}
	return JobInfo{}, false
}

func (s *Service) infoLocked(d *jobDef) JobInfo {
	info := JobInfo{ID: d.id, Every: d.every, Running: d.state.isRunning()}
	if s.c != nil && d.entryID != 0 {
		e := s.c.Entry(d.entryID)
		info.Next = e.Next
		info.Prev = e.Prev
	}
	return info
}

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return
	}
	select {
	case q <- t:
	default:
		s.log.Warn("scheduler queue full; dropping firing", logx.String("job", t.id))
	}
}

func stopSleep(ctx context.Context, stop <-chan struct{}, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return errors.New("scheduler stopped")
	case <-t.C:
		return nil
	}
}
