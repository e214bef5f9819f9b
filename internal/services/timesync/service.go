package timesync

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/beevik/ntp"

	"tpmb/pkg/logx"
)

// defaultServers is ordered by priority: regional pools first, then
// global pools and public anycast servers, then national time servers.
var defaultServers = []string{
	"0.pl.pool.ntp.org",
	"1.pl.pool.ntp.org",
	"2.pl.pool.ntp.org",
	"3.pl.pool.ntp.org",
	"0.europe.pool.ntp.org",
	"1.europe.pool.ntp.org",
	"pool.ntp.org",
	"time.google.com",
	"time.cloudflare.com",
	"time.nist.gov",
	"tempus1.gum.gov.pl",
	"tempus2.gum.gov.pl",
}

type Config struct {
	Servers []string
	// MaxServers bounds how many servers a single Sync walks; querying
	// the whole list on every failure is expensive on mobile networks.
	MaxServers int
	// Retries per server; the timeout doubles on the second attempt.
	MaxRetries int
	Timeout    time.Duration
	// SyncInterval is the normal re-sync cadence; halved inside the DST
	// transition window.
	SyncInterval   time.Duration
	DriftTolerance time.Duration
	// MaxOffset is the sanity bound: responses farther from local time
	// than this are rejected as suspicious.
	MaxOffset time.Duration
	Timezone  string
	ProbeHost string
	ProbeTTL  time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Servers) == 0 {
		c.Servers = defaultServers
	}
	if c.MaxServers <= 0 {
		c.MaxServers = 8
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 8 * time.Second
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = time.Hour
	}
	if c.DriftTolerance <= 0 {
		c.DriftTolerance = 5 * time.Second
	}
	if c.MaxOffset <= 0 {
		c.MaxOffset = time.Hour
	}
	if c.ProbeHost == "" {
		c.ProbeHost = "google.com"
	}
	if c.ProbeTTL <= 0 {
		c.ProbeTTL = 30 * time.Second
	}
	return c
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	loc *time.Location

	synced   bool
	lastSync time.Time
	offset   time.Duration

	probed    bool
	lastProbe time.Time
	networkOK bool

	// injected for tests
	now    func() time.Time
	query  func(ctx context.Context, server string, timeout time.Duration) (time.Duration, error)
	lookup func(ctx context.Context, host string) error
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Warn("invalid timezone; falling back to Local", logx.String("tz", cfg.Timezone), logx.Err(err))
		} else {
			loc = l
		}
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		loc:    loc,
		now:    time.Now,
		query:  ntpQuery,
		lookup: dnsLookup,
		sleep:  ctxSleep,
	}
}

func ntpQuery(ctx context.Context, server string, timeout time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}

func dnsLookup(ctx context.Context, host string) error {
	lctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := net.DefaultResolver.LookupHost(lctx, host)
	return err
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Now returns the corrected time: local time plus the last recorded
// offset, or plain local time if no sync has succeeded yet.
func (s *Service) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now().In(s.loc)
	if !s.synced {
		return t
	}
	return t.Add(s.offset)
}

// Offset returns the last recorded offset and whether a sync has ever
// succeeded.
func (s *Service) Offset() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset, s.synced
}

// IsSyncNeeded reports whether a sync should run now: never synced, or
// the (possibly halved) interval has elapsed since the last one.
func (s *Service) IsSyncNeeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.synced {
		return true
	}
	interval := s.cfg.SyncInterval
	if inDSTWindow(s.now().In(s.loc)) {
		interval /= 2
	}
	return s.now().Sub(s.lastSync) > interval
}

// inDSTWindow marks the calendar periods where a clock correction is
// more likely: the final week of March and October (European transition
// Sundays) and, conservatively, the whole adjacent months.
func inDSTWindow(t time.Time) bool {
	switch t.Month() {
	case time.March, time.October:
		return t.Day() >= 25
	case time.February, time.April, time.September, time.November:
		return true
	default:
		return false
	}
}

// networkAvailable runs a cheap DNS probe, cached for ProbeTTL so
// frequent callers do not burn battery on redundant lookups.
func (s *Service) networkAvailable(ctx context.Context) bool {
	s.mu.Lock()
	if s.probed && s.now().Sub(s.lastProbe) < s.cfg.ProbeTTL {
		ok := s.networkOK
		s.mu.Unlock()
		return ok
	}
	host := s.cfg.ProbeHost
	lookup := s.lookup
	s.mu.Unlock()

	err := lookup(ctx, host)

	s.mu.Lock()
	s.probed = true
	s.lastProbe = s.now()
	s.networkOK = err == nil
	ok := s.networkOK
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("network connectivity probe failed", logx.String("host", host), logx.Err(err))
	}
	return ok
}
