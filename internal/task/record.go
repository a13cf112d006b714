// Package task defines the persisted task record and the pure time
// computations (due-instant parsing, recurrence renewal) used by the
// scheduler. Nothing here touches the filesystem or timers.
package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ToolCall names the external effect a task performs when it fires.
// Arguments are passed verbatim to the invocation backend.
type ToolCall struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// Record is one persisted task: a single file in the task store.
//
// Interval > 0 marks the task recurring; the record is rewritten with an
// advanced ScheduledLocalTime after each firing. Interval absent or <= 0
// means one-shot.
type Record struct {
	TaskID             string    `json:"taskId"`
	ScheduledLocalTime string    `json:"scheduledLocalTime"`
	Interval           int64     `json:"interval,omitempty"`
	ToolCall           *ToolCall `json:"tool_call"`
}

var (
	ErrMissingTaskID   = errors.New("record missing taskId")
	ErrMissingToolCall = errors.New("record missing tool_call")
)

// Recurring reports whether the record renews itself after firing.
func (r *Record) Recurring() bool { return r != nil && r.Interval > 0 }

// Validate checks the structural invariants of a record. It does not touch
// the store; a valid record may still reference a tool the backend does not
// know.
func (r *Record) Validate() error {
	if r == nil {
		return errors.New("nil record")
	}
	if r.TaskID == "" {
		return ErrMissingTaskID
	}
	if r.ToolCall == nil || r.ToolCall.ToolName == "" {
		return ErrMissingToolCall
	}
	if r.ToolCall.Arguments == nil {
		return fmt.Errorf("record %s: tool_call.arguments is required", r.TaskID)
	}
	if _, err := ParseScheduledTime(r.ScheduledLocalTime); err != nil {
		return fmt.Errorf("record %s: %w", r.TaskID, err)
	}
	return nil
}

// DueTime resolves ScheduledLocalTime to a concrete instant.
func (r *Record) DueTime() (time.Time, error) {
	return ParseScheduledTime(r.ScheduledLocalTime)
}

// Decode parses and validates a record from its file content.
func Decode(data []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var r Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Encode renders the record as indented JSON, the on-disk format. External
// writers may use any whitespace; the store never depends on formatting.
func (r *Record) Encode() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
