package task

import (
	"errors"
	"testing"
)

func validRecord() *Record {
	return &Record{
		TaskID:             "t1",
		ScheduledLocalTime: "2026-01-01T10:00:00+08:00",
		ToolCall: &ToolCall{
			ToolName:  "Echo",
			Arguments: map[string]any{"msg": "hi"},
		},
	}
}

func TestValidateRejectsIncompleteRecords(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{name: "missing taskId", mutate: func(r *Record) { r.TaskID = "" }},
		{name: "missing tool_call", mutate: func(r *Record) { r.ToolCall = nil }},
		{name: "missing tool_name", mutate: func(r *Record) { r.ToolCall.ToolName = "" }},
		{name: "missing arguments", mutate: func(r *Record) { r.ToolCall.Arguments = nil }},
		{name: "bad timestamp", mutate: func(r *Record) { r.ScheduledLocalTime = "whenever" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(r)
			if err := r.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := validRecord().Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	r := validRecord()
	r.Interval = 30

	b, err := r.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.TaskID != r.TaskID || got.ScheduledLocalTime != r.ScheduledLocalTime || got.Interval != r.Interval {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.Recurring() {
		t.Fatal("expected recurring record")
	}
	if got.ToolCall.Arguments["msg"] != "hi" {
		t.Fatalf("arguments not preserved: %+v", got.ToolCall.Arguments)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()
	if _, err := Decode([]byte("{ this is not json")); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if _, err := Decode([]byte(`{"scheduledLocalTime":"2026-01-01T10:00:00+08:00"}`)); !errors.Is(err, ErrMissingTaskID) {
		t.Fatalf("expected ErrMissingTaskID, got %v", err)
	}
}
