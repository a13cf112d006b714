package task

import (
	"fmt"
	"time"
)

// NextTrigger computes the renewed scheduledLocalTime for a recurring task:
// the prior canonical timestamp advanced by exactly intervalSec seconds.
//
// The UTC offset token of the prior value is preserved verbatim in the
// output (the arithmetic is done on a fixed-offset instant, never
// renormalized to another zone). Compact-form inputs come out in canonical
// form at their normalized +08:00 offset.
//
// Pure function: no clock, no filesystem.
func NextTrigger(prior string, intervalSec int64) (string, error) {
	if intervalSec <= 0 {
		return "", fmt.Errorf("interval must be a positive number of seconds, got %d", intervalSec)
	}
	t, err := ParseScheduledTime(prior)
	if err != nil {
		return "", err
	}
	next := t.Add(time.Duration(intervalSec) * time.Second)
	return Canonical(next), nil
}
