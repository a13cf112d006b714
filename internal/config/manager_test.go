package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "taskd.json", `{
  "tasks": { "dir": "/var/lib/taskd/tasks" },
  "logging": { "level": "debug", "console": true, "file": { "enabled": false, "path": "" } },
  "scheduler": { "enabled": true, "rescan_every": "2m", "invoke_timeout": "30s" },
  "notifier": { "enabled": true, "workers": 1, "queue_size": 16, "rate_per_sec": 2,
    "retry_max": 1, "retry_base": "100ms", "retry_max_delay": "1s",
    "dedup_window": "0s", "dedup_max_entries": 10 },
  "storage": { "driver": "file", "path": "./audit.jsonl" }
}`)

	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.TasksDir() != "/var/lib/taskd/tasks" {
		t.Fatalf("TasksDir = %q", cfg.TasksDir())
	}
	if !cfg.SchedulerEnabled() {
		t.Fatal("scheduler should be enabled")
	}
	if cfg.Scheduler.RescanEvery != "2m" {
		t.Fatalf("rescan_every = %q", cfg.Scheduler.RescanEvery)
	}
	if cfg.Notifier == nil || cfg.Notifier.Workers != 1 {
		t.Fatalf("notifier not parsed: %+v", cfg.Notifier)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage not parsed: %+v", cfg.Storage)
	}
}

func TestParseYAMLCoercion(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "taskd.yaml", `
tasks:
  dir: ./tasks
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
scheduler:
  enabled: false
  rescan_every: 5m
notifier:
  enabled: true
  workers: 2
  queue_size: 64
  rate_per_sec: 5
  retry_max: 3
  retry_base: 500ms
  retry_max_delay: 10s
  dedup_window: 1m
  dedup_max_entries: 100
  telegram:
    token: secret
    chat_id: -100123
`)

	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.SchedulerEnabled() {
		t.Fatal("explicit enabled: false should win over the default")
	}
	if cfg.Notifier == nil || cfg.Notifier.Telegram == nil {
		t.Fatal("telegram sink not parsed")
	}
	if cfg.Notifier.Telegram.ChatID != -100123 {
		t.Fatalf("chat_id = %d", cfg.Notifier.Telegram.ChatID)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "taskd.json", `{"tasks": {"dir": "./t"}, "bogus": 1}`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatal("unknown top-level field should be rejected")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "taskd.json", `{"tasks": {"dir": "./t"}} {"more": true}`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatal("trailing JSON should be rejected")
	}
}

func TestSchedulerEnabledDefaultsTrue(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "taskd.json", `{"tasks": {"dir": "./t"}}`)
	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.SchedulerEnabled() {
		t.Fatal("omitted scheduler.enabled should default to true")
	}
	if cfg.TasksDir() != "./t" {
		t.Fatalf("TasksDir = %q", cfg.TasksDir())
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"500ms", 500 * time.Millisecond, false},
		{"2m", 2 * time.Minute, false},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("test.field", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%q: got (%v, %v), want %v", tc.raw, got, err, tc.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	got, err := ParseDurationOrDefault("f", "", 5*time.Minute)
	if err != nil || got != 5*time.Minute {
		t.Fatalf("empty: got (%v, %v)", got, err)
	}
	got, err = ParseDurationOrDefault("f", "10s", 5*time.Minute)
	if err != nil || got != 10*time.Second {
		t.Fatalf("explicit: got (%v, %v)", got, err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	on := true
	off := false
	oldCfg := &Config{Scheduler: SchedulerConfig{Enabled: &on}}
	newCfg := &Config{
		Tasks:     TasksConfig{Dir: "/elsewhere"},
		Scheduler: SchedulerConfig{Enabled: &off},
		Logging:   LoggingConfig{Level: "debug"},
	}
	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"logging", "scheduler", "tasks"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
}
