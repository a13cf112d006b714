package scheduler

import (
	"testing"
	"time"
)

type stubTimer struct {
	fn      func()
	stopped bool
}

func (t *stubTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (t *stubTimer) fire() {
	if !t.stopped && t.fn != nil {
		t.fn()
	}
}

func TestRegistryRejectsDuplicateID(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	due := time.Now().Add(time.Hour)

	if !r.Add("t1", "/store/t1.json", due, &stubTimer{}) {
		t.Fatal("first Add should succeed")
	}
	if r.Add("t1", "/store/other.json", due, &stubTimer{}) {
		t.Fatal("second Add for same id should be rejected")
	}
	if got := r.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
}

func TestRegistryCancelStopsTimer(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	tm := &stubTimer{}
	r.Add("t1", "/store/t1.json", time.Now().Add(time.Hour), tm)

	if !r.Cancel("t1") {
		t.Fatal("Cancel should report true for a pending entry")
	}
	if !tm.stopped {
		t.Fatal("Cancel should stop the timer")
	}
	if r.Has("t1") {
		t.Fatal("entry should be gone after Cancel")
	}
	if r.Cancel("t1") {
		t.Fatal("Cancel of a missing entry should report false")
	}
}

func TestRegistryCancelPath(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	tm := &stubTimer{}
	r.Add("t1", "/store/t1.json", time.Now().Add(time.Hour), tm)

	id, ok := r.CancelPath("/store/t1.json")
	if !ok || id != "t1" {
		t.Fatalf("CancelPath = (%q, %v), want (t1, true)", id, ok)
	}
	if !tm.stopped {
		t.Fatal("timer should be stopped")
	}
	if _, ok := r.CancelPath("/store/t1.json"); ok {
		t.Fatal("second CancelPath should miss")
	}
}

func TestRegistryRemoveLeavesTimerRunning(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	tm := &stubTimer{}
	r.Add("t1", "/store/t1.json", time.Now().Add(time.Hour), tm)

	if !r.Remove("t1") {
		t.Fatal("Remove should report true")
	}
	if tm.stopped {
		t.Fatal("Remove must not stop the timer")
	}
	if len(r.Paths()) != 0 {
		t.Fatal("path index should be cleared")
	}
}

func TestRegistryDrainCancel(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	timers := []*stubTimer{{}, {}, {}}
	for i, tm := range timers {
		r.Add(string(rune('a'+i)), "/store/"+string(rune('a'+i))+".json", time.Now().Add(time.Hour), tm)
	}
	if got := r.DrainCancel(); got != 3 {
		t.Fatalf("DrainCancel = %d, want 3", got)
	}
	for i, tm := range timers {
		if !tm.stopped {
			t.Fatalf("timer %d not stopped", i)
		}
	}
	if r.Len() != 0 {
		t.Fatal("registry should be empty")
	}
}
