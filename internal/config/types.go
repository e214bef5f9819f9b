package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Broadcast BroadcastConfig `json:"broadcast"`
	TimeSync  TimeSyncConfig  `json:"time_sync"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Vault     VaultConfig     `json:"vault"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	// AdminIDs receive alert-level log lines.
	AdminIDs []int64 `json:"admin_ids"`
	// SendTimeout is a Go duration string (e.g. "10s").
	SendTimeout string `json:"send_timeout,omitempty"`
}

// BroadcastConfig drives the periodic dispatch job.
//
// All durations are Go duration strings (e.g. "500ms", "2s").
type BroadcastConfig struct {
	// IntervalMinutes is the dispatch period. Minimum 1.
	IntervalMinutes int `json:"interval_minutes"`
	// Targets are chat IDs ("-1001234567890") or public handles ("@channel").
	Targets []string `json:"targets"`
	// Messages is the pool one message per cycle is drawn from.
	Messages  []string `json:"messages"`
	RetryMax  int      `json:"retry_max,omitempty"`
	RetryBase string   `json:"retry_base,omitempty"`
}

type TimeSyncConfig struct {
	Servers []string `json:"servers,omitempty"`
	// Timezone is an IANA name, default "Europe/Warsaw".
	Timezone string `json:"timezone,omitempty"`
	// SyncInterval is a Go duration string. Halved automatically near DST
	// transitions.
	SyncInterval   string `json:"sync_interval,omitempty"`
	DriftTolerance string `json:"drift_tolerance,omitempty"`
	ProbeHost      string `json:"probe_host,omitempty"`
}

type SchedulerConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
	// MissedGrace drops firings that waited in queue longer than this
	// (default "5m"). Use "0s" to disable.
	MissedGrace string `json:"missed_grace,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

// VaultConfig locates the encrypted token store.
type VaultConfig struct {
	Path string `json:"path"`
	// LegacyPath, if set and present on disk, is migrated into Path at
	// startup and removed.
	LegacyPath string `json:"legacy_path,omitempty"`
	// PassphraseEnv names the env var holding the vault passphrase
	// (default TPMB_VAULT_PASSPHRASE).
	PassphraseEnv string `json:"passphrase_env,omitempty"`
	Iterations    int    `json:"iterations,omitempty"`
	RateAttempts  int    `json:"rate_attempts,omitempty"`
	RateWindow    string `json:"rate_window,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors warn-and-above lines to the admin chats.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the optional dispatch-history store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/history.jsonl" }
type StorageConfig struct {
	Driver     string `json:"driver"`
	Path       string `json:"path"`
	MaxRecords int    `json:"max_records,omitempty"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
