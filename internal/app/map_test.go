package app

import (
	"testing"
	"time"

	"taskd/internal/config"
	logx "taskd/pkg/logx"
)

func TestMapSchedulerConfigDefaults(t *testing.T) {
	t.Parallel()
	got, err := mapSchedulerConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapSchedulerConfig: %v", err)
	}
	if !got.Enabled {
		t.Fatal("scheduler should default to enabled")
	}
	if got.RescanEvery != 5*time.Minute {
		t.Fatalf("RescanEvery = %v, want 5m default", got.RescanEvery)
	}
	if got.InvokeTimeout != 0 {
		t.Fatalf("InvokeTimeout = %v, want 0 default", got.InvokeTimeout)
	}
}

func TestMapSchedulerConfigExplicitZeroRescan(t *testing.T) {
	t.Parallel()
	got, err := mapSchedulerConfig(&config.Config{
		Scheduler: config.SchedulerConfig{RescanEvery: "0s", InvokeTimeout: "30s"},
	})
	if err != nil {
		t.Fatalf("mapSchedulerConfig: %v", err)
	}
	if got.RescanEvery != 0 {
		t.Fatalf("explicit 0s should disable the rescan, got %v", got.RescanEvery)
	}
	if got.InvokeTimeout != 30*time.Second {
		t.Fatalf("InvokeTimeout = %v", got.InvokeTimeout)
	}
}

func TestMapSchedulerConfigRejectsBadDuration(t *testing.T) {
	t.Parallel()
	_, err := mapSchedulerConfig(&config.Config{
		Scheduler: config.SchedulerConfig{RescanEvery: "whenever"},
	})
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestMapNotifierConfigDefaults(t *testing.T) {
	t.Parallel()
	got, err := mapNotifierConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if !got.Enabled || got.Workers != 2 || got.QueueSize != 256 {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if got.RetryBase != 500*time.Millisecond || got.DedupWindow != time.Minute {
		t.Fatalf("unexpected duration defaults: %+v", got)
	}
}

func TestMapStorageConfigOmitted(t *testing.T) {
	t.Parallel()
	got := mapStorageConfig(&config.Config{})
	if got.Driver != "" {
		t.Fatalf("omitted storage should map to disabled, got %+v", got)
	}
}

func TestBuildSinksLogOnly(t *testing.T) {
	t.Parallel()
	sinks, err := buildSinks(&config.Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("buildSinks: %v", err)
	}
	if len(sinks) != 1 || sinks[0].Name() != "log" {
		t.Fatalf("expected just the log sink, got %d", len(sinks))
	}
}

func TestBuildSinksTelegramNeedsChatID(t *testing.T) {
	t.Parallel()
	_, err := buildSinks(&config.Config{
		Notifier: &config.NotifierConfig{Telegram: &config.TelegramSink{Token: "x"}},
	}, logx.Nop())
	if err == nil {
		t.Fatal("token without chat_id should be rejected")
	}
}
