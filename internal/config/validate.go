package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	chatIDRe = regexp.MustCompile(`^-?\d{1,19}$`)
	handleRe = regexp.MustCompile(`^@[A-Za-z0-9_]{5,32}$`)
)

// Validate checks structural correctness. It is also installed as the
// Watch() validator so a broken edit never replaces a working config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Broadcast.IntervalMinutes < 1 {
		return fmt.Errorf("broadcast.interval_minutes: must be >= 1")
	}
	if len(cfg.Broadcast.Targets) == 0 {
		return fmt.Errorf("broadcast.targets: at least one target is required")
	}
	for i, t := range cfg.Broadcast.Targets {
		if !ValidTarget(t) {
			return fmt.Errorf("broadcast.targets[%d]: %q is neither a chat ID nor an @handle", i, t)
		}
	}
	if len(cfg.Broadcast.Messages) == 0 {
		return fmt.Errorf("broadcast.messages: at least one message is required")
	}
	for i, m := range cfg.Broadcast.Messages {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("broadcast.messages[%d]: blank message", i)
		}
	}
	if cfg.Broadcast.RetryMax < 0 {
		return fmt.Errorf("broadcast.retry_max: must be >= 0")
	}
	if _, err := ParseDurationField("broadcast.retry_base", cfg.Broadcast.RetryBase); err != nil {
		return err
	}

	for i, id := range cfg.Telegram.AdminIDs {
		if id <= 0 {
			return fmt.Errorf("telegram.admin_ids[%d]: must be a positive user ID", i)
		}
	}
	if _, err := ParseDurationField("telegram.send_timeout", cfg.Telegram.SendTimeout); err != nil {
		return err
	}

	if tz := strings.TrimSpace(cfg.TimeSync.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("time_sync.timezone: %w", err)
		}
	}
	if _, err := ParseDurationField("time_sync.sync_interval", cfg.TimeSync.SyncInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("time_sync.drift_tolerance", cfg.TimeSync.DriftTolerance); err != nil {
		return err
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if _, err := ParseDurationField("scheduler.missed_grace", cfg.Scheduler.MissedGrace); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Vault.Path) == "" {
		return fmt.Errorf("vault.path: required")
	}
	if cfg.Vault.Iterations < 0 {
		return fmt.Errorf("vault.iterations: must be >= 0")
	}
	if _, err := ParseDurationField("vault.rate_window", cfg.Vault.RateWindow); err != nil {
		return err
	}

	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "file", "sqlite":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
		}
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path: required when storage is configured")
		}
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}

	return nil
}

// ValidTarget reports whether s is an acceptable broadcast destination:
// a numeric chat ID (channels and groups are negative) or a public
// @handle of 5-32 word characters.
func ValidTarget(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return false
	}
	return chatIDRe.MatchString(s) || handleRe.MatchString(s)
}
