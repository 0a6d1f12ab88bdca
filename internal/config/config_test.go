package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
	  "telegram": {"token": "t0k3n", "poll_timeout": "10s"},
	  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
	  "tracker": {"timezone": "America/Sao_Paulo", "sweep_interval": "20s", "tiers": [60, 45, 30, 15, 5, 1]},
	  "storage": {"driver": "file", "path": "./reg.json"}
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "t0k3n" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Tracker.SweepInterval != "20s" || len(cfg.Tracker.Tiers) != 6 {
		t.Fatalf("tracker = %+v", cfg.Tracker)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() did not return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: t0k3n
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
tracker:
  sweep_interval: 30s
  tiers: [60, 30, 5]
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tracker.SweepInterval != "30s" {
		t.Fatalf("sweep_interval = %q", cfg.Tracker.SweepInterval)
	}
	if len(cfg.Tracker.Tiers) != 3 || cfg.Tracker.Tiers[2] != 5 {
		t.Fatalf("tiers = %v", cfg.Tracker.Tiers)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram": {"token": "x", "typo_field": 1}, "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}}, "tracker": {}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "20s", want: 20 * time.Second},
		{raw: "1m30s", want: 90 * time.Second},
		{raw: "-5s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("test.field", tt.raw)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseDurationField(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}

	if d, err := ParseDurationOrDefault("test.field", "", 7*time.Second); err != nil || d != 7*time.Second {
		t.Fatalf("ParseDurationOrDefault empty = (%v, %v)", d, err)
	}
}
