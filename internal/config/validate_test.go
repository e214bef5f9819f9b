package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{AdminIDs: []int64{123456}},
		Broadcast: BroadcastConfig{
			IntervalMinutes: 30,
			Targets:         []string{"-1001234567890", "@mychannel"},
			Messages:        []string{"hello"},
		},
		Vault: VaultConfig{Path: "./data/token.enc"},
	}
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"nil interval", func(c *Config) { c.Broadcast.IntervalMinutes = 0 }, "interval_minutes"},
		{"no targets", func(c *Config) { c.Broadcast.Targets = nil }, "targets"},
		{"bad target", func(c *Config) { c.Broadcast.Targets = []string{"not a target"} }, "targets[0]"},
		{"short handle", func(c *Config) { c.Broadcast.Targets = []string{"@abc"} }, "targets[0]"},
		{"no messages", func(c *Config) { c.Broadcast.Messages = nil }, "messages"},
		{"blank message", func(c *Config) { c.Broadcast.Messages = []string{"  "} }, "messages[0]"},
		{"negative admin", func(c *Config) { c.Telegram.AdminIDs = []int64{-5} }, "admin_ids"},
		{"bad tz", func(c *Config) { c.TimeSync.Timezone = "Nope/Nowhere" }, "timezone"},
		{"bad duration", func(c *Config) { c.Broadcast.RetryBase = "fast" }, "retry_base"},
		{"no vault path", func(c *Config) { c.Vault.Path = "" }, "vault.path"},
		{"bad storage driver", func(c *Config) {
			c.Storage = &StorageConfig{Driver: "redis", Path: "x"}
		}, "storage.driver"},
		{"storage without path", func(c *Config) {
			c.Storage = &StorageConfig{Driver: "file"}
		}, "storage.path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatalf("Validate accepted invalid config")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestValidTarget(t *testing.T) {
	cases := []struct {
		target string
		want   bool
	}{
		{"-1001234567890", true},
		{"123456789", true},
		{"@mychannel", true},
		{"@Some_Channel_01", true},
		{"", false},
		{"-", false},
		{"@abc", false},
		{"@has space", false},
		{"12.5", false},
		{"t.me/channel", false},
	}
	for _, tc := range cases {
		if got := ValidTarget(tc.target); got != tc.want {
			t.Errorf("ValidTarget(%q) = %v, want %v", tc.target, got, tc.want)
		}
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("x", " 90s "); err != nil || d.Seconds() != 90 {
		t.Fatalf("ParseDurationField(90s) = %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("ParseDurationField(empty) = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("negative duration accepted")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatalf("garbage duration accepted")
	}
}
