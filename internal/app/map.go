package app

import (
	"fmt"
	"strings"
	"time"

	"taskd/internal/config"
	"taskd/internal/notifier"
	"taskd/internal/scheduler"
	"taskd/internal/storage"
	logx "taskd/pkg/logx"
)

// mapSchedulerConfig maps the file config (JSON) into the runtime
// scheduler.Config (parsed durations).
func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	out := scheduler.Config{
		Enabled:     true,
		RescanEvery: 5 * time.Minute,
	}
	if cfg == nil {
		return out, nil
	}
	out.Enabled = cfg.SchedulerEnabled()

	var err error
	out.RescanEvery, err = config.ParseDurationField("scheduler.rescan_every", cfg.Scheduler.RescanEvery)
	if err != nil {
		return scheduler.Config{}, err
	}
	if strings.TrimSpace(cfg.Scheduler.RescanEvery) == "" {
		out.RescanEvery = 5 * time.Minute
	}
	out.InvokeTimeout, err = config.ParseDurationField("scheduler.invoke_timeout", cfg.Scheduler.InvokeTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return out, nil
}

// mapNotifierConfig maps the file config into the runtime notifier.Config.
// If the notifier section is omitted, the notifier defaults to enabled.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	out := notifier.Config{
		Enabled:         true,
		Workers:         2,
		QueueSize:       256,
		RatePerSec:      5,
		RetryMax:        3,
		RetryBase:       500 * time.Millisecond,
		RetryMaxDelay:   10 * time.Second,
		DedupWindow:     time.Minute,
		DedupMaxEntries: 2000,
	}
	if cfg == nil || cfg.Notifier == nil {
		return out, nil
	}
	n := cfg.Notifier
	out.Enabled = n.Enabled
	if n.Workers != 0 {
		out.Workers = n.Workers
	}
	if n.QueueSize != 0 {
		out.QueueSize = n.QueueSize
	}
	if n.RatePerSec != 0 {
		out.RatePerSec = n.RatePerSec
	}
	if n.RetryMax != 0 {
		out.RetryMax = n.RetryMax
	}
	if n.DedupMaxEntries != 0 {
		out.DedupMaxEntries = n.DedupMaxEntries
	}

	var err error
	out.RetryBase, err = config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, out.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	out.RetryMaxDelay, err = config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, out.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	out.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}

	if out.Workers < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.workers must be >= 0")
	}
	if out.QueueSize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.queue_size must be >= 0")
	}
	if out.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	return out, nil
}

// mapStorageConfig maps the optional storage section. An omitted section
// means the audit trail is disabled.
func mapStorageConfig(cfg *config.Config) storage.Config {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		busy = 0
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
}

// buildSinks assembles the notification sinks: the log sink is always
// present; Telegram is added when configured.
func buildSinks(cfg *config.Config, log logx.Logger) ([]notifier.Sink, error) {
	sinks := []notifier.Sink{notifier.NewLogSink(log.With(logx.String("comp", "notify")))}
	if cfg == nil || cfg.Notifier == nil || cfg.Notifier.Telegram == nil {
		return sinks, nil
	}
	tg := cfg.Notifier.Telegram
	if strings.TrimSpace(tg.Token) == "" {
		return sinks, nil
	}
	if tg.ChatID == 0 {
		return nil, fmt.Errorf("notifier.telegram.chat_id is required when a token is set")
	}
	sink, err := notifier.NewTelegramSink(tg.Token, tg.ChatID)
	if err != nil {
		return nil, fmt.Errorf("telegram sink: %w", err)
	}
	return append(sinks, sink), nil
}
