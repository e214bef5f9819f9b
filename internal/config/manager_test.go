package config

import (
	"os"
	"path/filepath"
	"testing"
)

const jsonConfig = `{
  "telegram": {"admin_ids": [123456]},
  "broadcast": {
    "interval_minutes": 30,
    "targets": ["-1001234567890"],
    "messages": ["hello", "world"]
  },
  "vault": {"path": "./data/token.enc"},
  "logging": {"level": "INFO", "console": true,
    "file": {"enabled": false, "path": ""},
    "telegram": {"enabled": false, "min_level": "WARN", "rate_per_sec": 1}}
}`

const yamlConfig = `
telegram:
  admin_ids: [123456]
broadcast:
  interval_minutes: 30
  targets:
    - "-1001234567890"
    - "@mychannel"
  messages:
    - hello
vault:
  path: ./data/token.enc
logging:
  level: DEBUG
  console: true
  file:
    enabled: false
    path: ""
  telegram:
    enabled: false
    min_level: WARN
    rate_per_sec: 1
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	m := NewManager(writeConfig(t, "config.json", jsonConfig))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broadcast.IntervalMinutes != 30 {
		t.Fatalf("interval = %d, want 30", cfg.Broadcast.IntervalMinutes)
	}
	if len(cfg.Broadcast.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(cfg.Broadcast.Messages))
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get did not return committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", yamlConfig))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Broadcast.Targets) != 2 || cfg.Broadcast.Targets[1] != "@mychannel" {
		t.Fatalf("targets = %v", cfg.Broadcast.Targets)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Fatalf("level = %q, want DEBUG", cfg.Logging.Level)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	m := NewManager(writeConfig(t, "config.json", `{"broadcast": {"intervall_minutes": 5}}`))
	if _, err := m.Load(); err == nil {
		t.Fatalf("typo'd field accepted")
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	m := NewManager(writeConfig(t, "config.json", jsonConfig+`{"extra": true}`))
	if _, err := m.Load(); err == nil {
		t.Fatalf("trailing JSON accepted")
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	m := NewManager("unused")
	ch := m.Subscribe(1)

	cfg := validConfig()
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatalf("received wrong config")
		}
	default:
		t.Fatalf("no config delivered")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel not closed after Unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	m.publish(cfg)
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	m := NewManager("unused")
	ch := m.Subscribe(1)

	first := validConfig()
	second := validConfig()
	second.Broadcast.IntervalMinutes = 60

	m.publish(first)
	m.publish(second)

	got := <-ch
	if got.Broadcast.IntervalMinutes != 60 {
		t.Fatalf("subscriber saw stale config; interval = %d", got.Broadcast.IntervalMinutes)
	}
	m.Unsubscribe(ch)
}

func TestHashDetectsChange(t *testing.T) {
	a := validConfig()
	b := validConfig()
	if hashConfig(a) != hashConfig(b) {
		t.Fatalf("identical configs hash differently")
	}
	b.Broadcast.Messages = append(b.Broadcast.Messages, "more")
	if hashConfig(a) == hashConfig(b) {
		t.Fatalf("different configs hash equally")
	}
	if hashConfig(nil) != 0 {
		t.Fatalf("nil config hash != 0")
	}
}
