// Package app wires the services together: config, logging, vault,
// transport, time sync, scheduler, dispatcher, and optional history
// storage.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"tpmb/internal/adapters/telegram"
	"tpmb/internal/config"
	"tpmb/internal/services/broadcast"
	"tpmb/internal/services/scheduler"
	"tpmb/internal/services/timesync"
	"tpmb/internal/storage"
	"tpmb/internal/transport"
	"tpmb/internal/vault"
	"tpmb/pkg/logx"
)

const defaultPassphraseEnv = "TPMB_VAULT_PASSPHRASE"

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	vlt     *vault.Vault
	adapter *telegram.Adapter
	ts      *timesync.Service
	sched   *scheduler.Service
	disp    *broadcast.Dispatcher
	store   storage.Store

	admins []int64

	// plan is the broadcast job's live view of targets/messages; config
	// reloads swap it without re-registering the job.
	planMu sync.Mutex
	plan   dispatchPlan

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	cfgCh   chan *config.Config
	started bool
}

type dispatchPlan struct {
	every    time.Duration
	targets  []transport.Target
	messages []string
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg.Logging))
	log = log.With(logx.String("comp", "app"))

	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))
	cfgm.SetValidator(func(ctx context.Context, c *config.Config) error {
		return config.Validate(c)
	})

	a := &App{
		cfgm:   cfgm,
		logs:   logs,
		log:    log,
		admins: cfg.Telegram.AdminIDs,
	}

	if err := a.setupVault(cfg); err != nil {
		logs.Close()
		return nil, err
	}
	if err := a.setupTransport(cfg); err != nil {
		logs.Close()
		return nil, err
	}
	a.setupServices(cfg)

	if cfg.Storage != nil {
		sc, err := mapStorageConfig(cfg.Storage)
		if err != nil {
			logs.Close()
			return nil, err
		}
		st, err := storage.Open(sc, logs.Logger().With(logx.String("comp", "storage")))
		if err != nil {
			logs.Close()
			return nil, err
		}
		a.store = st
		log.Info("history storage enabled", logx.String("driver", sc.Driver))
	}

	a.plan = planFrom(cfg.Broadcast)
	return a, nil
}

// setupVault derives the credential vault, runs the one-time plaintext
// migration, and loads the token into the transport config.
func (a *App) setupVault(cfg *config.Config) error {
	env := strings.TrimSpace(cfg.Vault.PassphraseEnv)
	if env == "" {
		env = defaultPassphraseEnv
	}
	passphrase := os.Getenv(env)
	if passphrase == "" {
		return fmt.Errorf("vault passphrase env %s is not set", env)
	}

	window, err := config.ParseDurationOrDefault("vault.rate_window", cfg.Vault.RateWindow, time.Minute)
	if err != nil {
		return err
	}
	v, err := vault.New(passphrase, vault.Config{
		Iterations: cfg.Vault.Iterations,
		Budget: vault.Budget{
			Attempts: cfg.Vault.RateAttempts,
			Window:   window,
		},
	}, nil, a.logs.Logger().With(logx.String("comp", "vault")))
	if err != nil {
		return err
	}
	a.vlt = v

	if cfg.Vault.LegacyPath != "" {
		if _, err := v.MigrateLegacy(cfg.Vault.LegacyPath, cfg.Vault.Path); err != nil {
			return fmt.Errorf("legacy token migration: %w", err)
		}
	}
	return nil
}

func (a *App) setupTransport(cfg *config.Config) error {
	token, err := a.vlt.Load(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("loading bot token: %w", err)
	}
	if !vault.ValidateToken(token) {
		return fmt.Errorf("stored bot token has unrecognized format")
	}

	sendTimeout, err := config.ParseDurationOrDefault("telegram.send_timeout", cfg.Telegram.SendTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	ad, err := telegram.New(telegram.Config{
		Token:   token,
		Timeout: sendTimeout,
	}, a.logs.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return err
	}
	a.adapter = ad

	// Warn+ log lines fan out to the admin chats through the same adapter.
	admins := a.admins
	a.logs.SetAlertFunc(func(ctx context.Context, text string) error {
		var last error
		for _, id := range admins {
			tctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := ad.Send(tctx, transport.Target(fmt.Sprintf("%d", id)), text); err != nil {
				last = err
			}
			cancel()
		}
		return last
	})
	return nil
}

func (a *App) setupServices(cfg *config.Config) {
	syncInterval, _ := config.ParseDurationOrDefault("time_sync.sync_interval", cfg.TimeSync.SyncInterval, time.Hour)
	drift, _ := config.ParseDurationOrDefault("time_sync.drift_tolerance", cfg.TimeSync.DriftTolerance, 5*time.Second)
	a.ts = timesync.New(timesync.Config{
		Servers:        cfg.TimeSync.Servers,
		SyncInterval:   syncInterval,
		DriftTolerance: drift,
		Timezone:       cfg.TimeSync.Timezone,
		ProbeHost:      cfg.TimeSync.ProbeHost,
	}, a.logs.Logger().With(logx.String("comp", "timesync")))

	grace, _ := config.ParseDurationOrDefault("scheduler.missed_grace", cfg.Scheduler.MissedGrace, 5*time.Minute)
	a.sched = scheduler.New(scheduler.Config{
		Workers:     cfg.Scheduler.Workers,
		QueueSize:   cfg.Scheduler.QueueSize,
		MissedGrace: grace,
		Timezone:    schedulerTimezone(cfg),
	}, a.logs.Logger().With(logx.String("comp", "scheduler")))
	a.sched.SetTimeSource(a.ts)
	a.sched.SetMissHandler(func(id string, queuedAt time.Time) {
		a.log.Warn("scheduled run missed",
			logx.String("job", id),
			logx.Time("queued_at", queuedAt))
	})
	a.sched.SetErrorHandler(func(id string, err error) {
		a.log.Error("scheduled run failed",
			logx.String("job", id),
			logx.Err(err))
	})

	retryBase, _ := config.ParseDurationOrDefault("broadcast.retry_base", cfg.Broadcast.RetryBase, time.Second)
	a.disp = broadcast.New(broadcast.Config{
		RetryMax:  cfg.Broadcast.RetryMax,
		RetryBase: retryBase,
	}, a.adapter, a.logs.Logger().With(logx.String("comp", "broadcast")))
}

// schedulerTimezone falls back to the sync timezone so the cron clock and
// the corrected clock agree.
func schedulerTimezone(cfg *config.Config) string {
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		return tz
	}
	return strings.TrimSpace(cfg.TimeSync.Timezone)
}

func planFrom(b config.BroadcastConfig) dispatchPlan {
	p := dispatchPlan{
		every:    time.Duration(b.IntervalMinutes) * time.Minute,
		messages: append([]string(nil), b.Messages...),
	}
	for _, t := range b.Targets {
		p.targets = append(p.targets, transport.Target(strings.TrimSpace(t)))
	}
	return p
}

func mapLoggingConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    lc.Telegram.Enabled,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(sc *config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		MaxRecords:  sc.MaxRecords,
		BusyTimeout: busy,
	}, nil
}
