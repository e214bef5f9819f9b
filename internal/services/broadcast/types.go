package broadcast

import (
	"time"

	"tpmb/internal/transport"
)

type Config struct {
	// RetryMax bounds send attempts per target (default 3).
	RetryMax int
	// RetryBase scales the exponential backoff between attempts;
	// the delay after attempt n is RetryBase << n.
	RetryBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	return c
}

type Outcome int

const (
	Success Outcome = iota
	Failed
)

func (o Outcome) String() string {
	if o == Success {
		return "success"
	}
	return "failed"
}

// Result is the per-target record of one dispatch cycle.
type Result struct {
	Target   transport.Target
	Outcome  Outcome
	Attempts int
	Error    string
}

// Report aggregates one dispatch cycle. Results preserve the order in
// which targets were supplied.
type Report struct {
	StartedAt time.Time
	Duration  time.Duration
	Attempted int
	Succeeded int
	Failed    int
	Results   []Result
}
