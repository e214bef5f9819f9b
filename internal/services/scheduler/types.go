package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Config controls the scheduler service.
type Config struct {
	// Workers sizes the execution pool. The default of 1 gives the
	// single-executor model the rest of the core assumes: the sync job
	// and the dispatch job never run concurrently.
	Workers   int
	QueueSize int
	// MissedGrace is how long a firing may sit queued before it is
	// treated as missed and dropped instead of replayed.
	MissedGrace time.Duration
	// RetryMax and RetryBase shape the per-invocation retry of jobs
	// registered with RetryOnFailure; delay = RetryBase << attempt.
	RetryMax  int
	RetryBase time.Duration
	Timezone  string
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.MissedGrace <= 0 {
		c.MissedGrace = 5 * time.Minute
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	return c
}

type JobOptions struct {
	// RetryOnFailure re-runs a failed invocation up to RetryMax times
	// with exponential backoff. The retry counter is local to one
	// firing and never carries over to the next.
	RetryOnFailure bool
}

// TimeSource is what the scheduler needs from the time synchronizer.
type TimeSource interface {
	IsSyncNeeded() bool
	Sync(ctx context.Context) bool
}

type runState struct {
	mu      sync.Mutex
	running bool
}

func (r *runState) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// tryStart claims the running slot. It returns false when another
// invocation of the same job already holds it.
func (r *runState) tryStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *runState) finish() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

type jobDef struct {
	id      string
	every   time.Duration
	opt     JobOptions
	job     func(ctx context.Context) error
	entryID cron.EntryID
	state   *runState
}

type task struct {
	id       string
	opt      JobOptions
	run      func(ctx context.Context) error
	state    *runState
	queuedAt time.Time
}

// JobInfo describes one registered job for status surfaces.
type JobInfo struct {
	ID      string
	Every   time.Duration
	Next    time.Time
	Prev    time.Time
	Running bool
}

// Snapshot is the scheduler-wide status view.
type Snapshot struct {
	Running  bool
	Timezone string
	QueueLen int
	Jobs     []JobInfo
}
