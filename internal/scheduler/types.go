package scheduler

import (
	"time"
)

// Config controls the scheduling engine.
type Config struct {
	Enabled bool

	// RescanEvery bounds the staleness window when watch notifications are
	// coalesced or lost: a full store reconcile runs at this interval.
	// Zero disables the polling fallback.
	RescanEvery time.Duration

	// InvokeTimeout bounds a single backend invocation. Zero means no bound.
	InvokeTimeout time.Duration
}

// reportSource tags every event this subsystem hands to the notification
// channel.
const reportSource = "taskd.scheduler"

// Clock supplies the current time. Injectable so admission logic is
// testable without waiting on real wall time.
type Clock func() time.Time

// Timer is the cancellable pending-fire handle held by the registry.
// Stop reports whether the fire callback was prevented from running.
type Timer interface {
	Stop() bool
}

// TimerFactory schedules fn to run after d and returns its handle.
type TimerFactory func(d time.Duration, fn func()) Timer

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

func systemTimer(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

// TaskEvent is emitted on the event bus for scheduler lifecycle events.
type TaskEvent struct {
	TaskID string    `json:"task_id"`
	Tool   string    `json:"tool,omitempty"`
	Due    time.Time `json:"due,omitempty"`
	Error  string    `json:"error,omitempty"`
}
