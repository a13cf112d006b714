package task

import (
	"fmt"
	"strings"
	"time"
)

// compactLayout is the shorthand form accepted from external writers,
// e.g. "2026-01-02-15:04". It carries no offset and is normalized to +08:00.
const compactLayout = "2006-01-02-15:04"

// compactZone is the fixed offset assumed for compact timestamps.
var compactZone = time.FixedZone("+08:00", 8*60*60)

// ParseScheduledTime resolves a scheduledLocalTime string to an instant.
//
// Accepted forms:
//   - RFC 3339 with explicit UTC offset: "2026-01-01T10:00:00+08:00" (or "Z")
//   - compact shorthand "YYYY-MM-DD-HH:mm", interpreted at offset +08:00
//
// The returned time keeps the original fixed offset as its location, so
// formatting it back preserves the offset token.
func ParseScheduledTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("scheduledLocalTime is empty")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(compactLayout, s, compactZone); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable scheduledLocalTime %q", s)
}

// Canonical renders an instant in the canonical on-disk form: RFC 3339
// seconds precision with the instant's own UTC offset token.
func Canonical(t time.Time) string {
	return t.Format(time.RFC3339)
}
