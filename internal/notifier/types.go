package notifier

import "time"

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Status of a reported outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Event is one outcome report handed to the notification channel.
// Summary is truncated to SummaryLimit before delivery.
type Event struct {
	Category string // e.g. "task.executed", "task.invalid"
	Status   Status
	Summary  string
	Source   string // subsystem tag, e.g. "taskd.scheduler"
	TaskID   string
	Tool     string
}

// SummaryLimit caps the human-readable summary carried by an event.
const SummaryLimit = 500

// NotifyEvent is emitted on the event bus for notifier lifecycle events.
// Keep it small; Data may be logged/serialized by subscribers.
type NotifyEvent struct {
	Sink     string    `json:"sink,omitempty"`
	Category string    `json:"category"`
	Key      string    `json:"key"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
