// Package scheduler runs named periodic jobs with failure isolation.
//
// Jobs are registered with an interval and fired through robfig/cron.
// Each firing is wrapped: the clock is re-synced first when the attached
// time source says it is stale, failures are retried with exponential
// backoff when the job opted in, and a firing that would overlap a
// still-running instance of the same job is skipped rather than queued.
// Firings that sat in the queue past the grace window are dropped as
// missed.
//
// Stop() is non-blocking: it signals the workers and the cron loop but
// does not wait for an in-flight job to finish.
package scheduler
