package timesync

import (
	"context"
	"time"

	"tpmb/pkg/logx"
)

// Sync walks the server list in priority order until one returns a
// plausible offset. It returns false when every server failed; the
// caller keeps running on uncorrected local time.
func (s *Service) Sync(ctx context.Context) bool {
	s.mu.Lock()
	cfg := s.cfg
	query := s.query
	sleep := s.sleep
	s.mu.Unlock()

	if !s.networkAvailable(ctx) {
		s.log.Warn("no network; skipping time sync")
		return false
	}

	servers := cfg.Servers
	if len(servers) > cfg.MaxServers {
		servers = servers[:cfg.MaxServers]
	}

	for i, server := range servers {
		for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
			if ctx.Err() != nil {
				return false
			}
			timeout := cfg.Timeout
			if attempt > 0 {
				timeout *= 2
			}
			offset, err := query(ctx, server, timeout)
			if err != nil {
				s.log.Debug("time server query failed",
					logx.String("server", server),
					logx.Int("attempt", attempt+1),
					logx.Err(err))
				if attempt < cfg.MaxRetries-1 {
					// Staggered backoff: grows per attempt, nudged by the
					// server index so parallel restarts don't thunder.
					delay := time.Duration(1<<attempt)*time.Second + time.Duration(i)*100*time.Millisecond
					if delay > 5*time.Second {
						delay = 5 * time.Second
					}
					if sleep(ctx, delay) != nil {
						return false
					}
				}
				continue
			}
			if offset < -cfg.MaxOffset || offset > cfg.MaxOffset {
				s.log.Warn("suspicious time server response rejected",
					logx.String("server", server),
					logx.Duration("offset", offset))
				continue
			}
			s.record(server, offset)
			return true
		}
	}

	s.log.Error("all time servers failed; continuing on local time",
		logx.Int("servers", len(servers)))
	return false
}

func (s *Service) record(server string, offset time.Duration) {
	s.mu.Lock()
	s.offset = offset
	s.synced = true
	s.lastSync = s.now()
	drift := offset
	if drift < 0 {
		drift = -drift
	}
	bigDrift := drift > s.cfg.DriftTolerance
	dst := inDSTWindow(s.now().In(s.loc))
	s.mu.Unlock()

	if bigDrift {
		s.log.Warn("significant clock drift detected",
			logx.Duration("offset", offset),
			logx.Bool("dst_window", dst))
	}
	s.log.Info("time synchronized",
		logx.String("server", server),
		logx.Float64("offset_s", offset.Seconds()))
}
