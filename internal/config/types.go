package config

// Config is the daemon configuration. JSON is the native format; YAML is
// accepted and coerced to JSON before the strict decode.
type Config struct {
	Tasks     TasksConfig     `json:"tasks"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

// TasksConfig locates the task store.
type TasksConfig struct {
	// Dir is the store directory, one JSON record per task.
	// Default: "./tasks". Changing it requires a restart.
	Dir string `json:"dir"`
}

// SchedulerConfig controls the scheduling engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Enabled is a pointer so "omitted" (default true) is distinguishable from
// an explicit false.
type SchedulerConfig struct {
	Enabled *bool `json:"enabled,omitempty"`

	// RescanEvery drives the periodic full-store reconcile that backstops
	// the change watcher. "0s" disables it. Default: "5m".
	RescanEvery string `json:"rescan_every,omitempty"`

	// InvokeTimeout bounds a single tool invocation. "0s" disables the
	// bound. Default: "0s".
	InvokeTimeout string `json:"invoke_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings. If the whole section is omitted,
// the notifier defaults to enabled with the log sink only.
type NotifierConfig struct {
	Enabled         bool          `json:"enabled"`
	Workers         int           `json:"workers"`
	QueueSize       int           `json:"queue_size"`
	RatePerSec      int           `json:"rate_per_sec"`
	RetryMax        int           `json:"retry_max"`
	RetryBase       string        `json:"retry_base"`
	RetryMaxDelay   string        `json:"retry_max_delay"`
	DedupWindow     string        `json:"dedup_window"`
	DedupMaxEntries int           `json:"dedup_max_entries"`
	Telegram        *TelegramSink `json:"telegram,omitempty"`
}

// TelegramSink configures the optional Telegram delivery sink.
type TelegramSink struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// StorageConfig controls the optional execution audit trail.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./taskd_audit/executions.jsonl" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerEnabled resolves the tri-state enable flag (omitted = true).
func (c *Config) SchedulerEnabled() bool {
	if c == nil || c.Scheduler.Enabled == nil {
		return true
	}
	return *c.Scheduler.Enabled
}

// TasksDir resolves the store directory with its default.
func (c *Config) TasksDir() string {
	if c == nil || c.Tasks.Dir == "" {
		return "./tasks"
	}
	return c.Tasks.Dir
}
