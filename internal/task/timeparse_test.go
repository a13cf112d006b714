package task

import (
	"testing"
	"time"
)

func TestParseScheduledTimeVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want string // canonical form of the parsed instant
	}{
		{name: "positive offset", raw: "2026-01-01T10:00:00+08:00", want: "2026-01-01T10:00:00+08:00"},
		{name: "negative offset", raw: "2026-06-15T23:30:00-05:00", want: "2026-06-15T23:30:00-05:00"},
		{name: "utc", raw: "2026-03-01T00:00:00Z", want: "2026-03-01T00:00:00Z"},
		{name: "compact normalizes to +08:00", raw: "2026-01-02-15:04", want: "2026-01-02T15:04:00+08:00"},
		{name: "surrounding whitespace", raw: "  2026-01-01T10:00:00+08:00 ", want: "2026-01-01T10:00:00+08:00"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScheduledTime(tt.raw)
			if err != nil {
				t.Fatalf("ParseScheduledTime(%q) error: %v", tt.raw, err)
			}
			if c := Canonical(got); c != tt.want {
				t.Fatalf("Canonical = %s, want %s", c, tt.want)
			}
		})
	}
}

func TestParseScheduledTimeInstant(t *testing.T) {
	t.Parallel()
	got, err := ParseScheduledTime("2026-01-01T10:00:00+08:00")
	if err != nil {
		t.Fatalf("ParseScheduledTime error: %v", err)
	}
	want := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("instant = %v, want %v", got.UTC(), want)
	}
}

func TestParseScheduledTimeInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-time", "2026-13-40T99:00:00+08:00", "2026-01-01 10:00"} {
		if _, err := ParseScheduledTime(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
