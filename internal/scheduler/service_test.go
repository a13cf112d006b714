package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"taskd/internal/notifier"
	"taskd/internal/store"
	"taskd/internal/task"
	logx "taskd/pkg/logx"
)

// manualTimers hands out stubTimers so tests control when a pending task
// "fires" without waiting on wall time.
type manualTimers struct {
	mu     sync.Mutex
	timers []*stubTimer
}

func (m *manualTimers) factory(d time.Duration, fn func()) Timer {
	_ = d
	tm := &stubTimer{fn: fn}
	m.mu.Lock()
	m.timers = append(m.timers, tm)
	m.mu.Unlock()
	return tm
}

func (m *manualTimers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *manualTimers) last() *stubTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timers) == 0 {
		return nil
	}
	return m.timers[len(m.timers)-1]
}

type fakeInvoker struct {
	mu     sync.Mutex
	calls  []string
	result string
	err    error
	hook   func() // runs mid-invocation, before returning
}

func (f *fakeInvoker) Invoke(ctx context.Context, tool string, args map[string]any) (string, error) {
	_ = ctx
	_ = args
	f.mu.Lock()
	f.calls = append(f.calls, tool)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.result, f.err
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingReporter struct {
	mu     sync.Mutex
	events []notifier.Event
}

func (r *recordingReporter) Report(ctx context.Context, ev notifier.Event) {
	_ = ctx
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingReporter) snapshot() []notifier.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notifier.Event, len(r.events))
	copy(out, r.events)
	return out
}

type testRig struct {
	svc    *Service
	st     *store.Store
	inv    *fakeInvoker
	rep    *recordingReporter
	timers *manualTimers
}

func newTestRig(t *testing.T, now time.Time) *testRig {
	t.Helper()
	st := store.New(t.TempDir(), logx.Nop())
	inv := &fakeInvoker{result: "ok"}
	rep := &recordingReporter{}
	timers := &manualTimers{}

	svc := New(Config{Enabled: true}, st, inv, rep, nil, logx.Nop(), nil)
	svc.now = func() time.Time { return now }
	svc.newTimer = timers.factory
	return &testRig{svc: svc, st: st, inv: inv, rep: rep, timers: timers}
}

func writeRecord(t *testing.T, st *store.Store, rec *task.Record) string {
	t.Helper()
	path := st.PathFor(rec.TaskID)
	if err := st.Save(path, rec); err != nil {
		t.Fatalf("write record: %v", err)
	}
	return path
}

func futureRecord(id string, interval int64) *task.Record {
	return &task.Record{
		TaskID:             id,
		ScheduledLocalTime: "2026-06-01T10:00:00+08:00",
		Interval:           interval,
		ToolCall:           &task.ToolCall{ToolName: "Echo", Arguments: map[string]any{"msg": "hi"}},
	}
}

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestAdmitIsIdempotent(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t, testNow)
	rec := futureRecord("t1", 0)
	path := writeRecord(t, rig.st, rec)

	ctx := context.Background()
	rig.svc.reconcilePath(ctx, path)
	rig.svc.reconcilePath(ctx, path)
	rig.svc.reconcileAll(ctx)

	if got := rig.timers.count(); got != 1 {
		t.Fatalf("timers created = %d, want 1", got)
	}
	if got := rig.svc.Pending(); got != 1 {
		t.Fatalf("Pending = %d, want 1", got)
	}

	rig.timers.last().fire()
	rig.svc.fireWG.Wait()
	if got := rig.inv.callCount(); got != 1 {
		t.Fatalf("invocations = %d, want 1", got)
	}
}

func TestPastDueFiresImmediately(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t, testNow)
	rec := futureRecord("t1", 0)
	rec.ScheduledLocalTime = "2026-01-01T10:00:00+08:00" // long past
	path := writeRecord(t, rig.st, rec)

	rig.svc.reconcilePath(context.Background(), path)
	rig.svc.fireWG.Wait()

	if got := rig.timers.count(); got != 0 {
		t.Fatalf("past-due task should not get a timer, got %d", got)
	}
	if rig.svc.Pending() != 0 {
		t.Fatal("past-due task must not linger in the registry")
	}
	if got := rig.inv.callCount(); got != 1 {
		t.Fatalf("invocations = %d, want 1", got)
	}
	if rig.st.Exists(path) {
		t.Fatal("one-shot record should be deleted after firing")
	}
}

func TestDeletedRecordCancelsPendingTask(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t, testNow)
	path := writeRecord(t, rig.st, futureRecord("t1", 0))

	ctx := context.Background()
	rig.svc.reconcilePath(ctx, path)
	if rig.svc.Pending() != 1 {
		t.Fatal("task should be pending")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	rig.svc.reconcilePath(ctx, path)

	if rig.svc.Pending() != 0 {
		t.Fatal("deletion should remove the pending entry")
	}
	if !rig.timers.last().stopped {
		t.Fatal("deletion should stop the pending timer")
	}
	if rig.inv.callCount() != 0 {
		t.Fatal("cancelled task must not invoke")
	}
}

func TestRecurringTaskRenews(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t, testNow)
	rec := futureRecord("t1", 60)
	path := writeRecord(t, rig.st, rec)

	rig.svc.execute(context.Background(), rec, path)

	got, err := rig.st.Load(path)
	if err != nil {
		t.Fatalf("renewed record unreadable: %v", err)
	}
	if got.TaskID != "t1" {
		t.Fatalf("taskId changed to %q", got.TaskID)
	}
	if got.ScheduledLocalTime != "2026-06-01T10:01:00+08:00" {
		t.Fatalf("renewed time = %q, want +60s with offset preserved", got.ScheduledLocalTime)
	}
	if got.Interval != 60 {
		t.Fatalf("interval changed to %d", got.Interval)
	}
}

func TestOneShotTaskDeletes(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t, testNow)
	rec := futureRecord("t1", 0)
	path := writeRecord(t, rig.st, rec)

	rig.svc.execute(context.Background(), rec, path)

	if rig.st.Exists(path) {
		t.Fatal("one-shot record should be deleted")
	}
	evs := rig.rep.snapshot()
	if len(evs) != 1 || evs[0].Status != notifier.StatusSuccess {
		t.Fatalf("expected one success report, got %+v", evs)
	}
	if evs[0].Summary != "ok" {
		t.Fatalf("summary = %q, want invocation result", evs[0].Summary)
	}
}

func TestFailedInvocationStillDisposes(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t, testNow)
	rig.inv.err = errors.New("backend unavailable")
	rec := futureRecord("t1", 60)
	path := writeRecord(t, rig.st, rec)

	rig.svc.execute(context.Background(), rec, path)

	got, err := rig.st.Load(path)
	if err != nil {
		t.Fatalf("record should be renewed despite failure: %v", err)
	}
	if got.ScheduledLocalTime != "2026-06-01T10:01:00+08:00" {
		t.Fatalf("renewed time = %q", got.ScheduledLocalTime)
	}
	evs := rig.rep.snapshot()
	if len(evs) != 1 || evs[0].Status != notifier.StatusError {
		t.Fatalf("expected one error report, got %+v", evs)
	}
	if evs[0].Summary != "backend unavailable" {
		t.Fatalf("summary = %q", evs[0].Summary)
	}
}

func TestDeleteDuringExecutionSkipsRenewal(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t, testNow)
	rec := futureRecord("t1", 60)
	path := writeRecord(t, rig.st, rec)
	rig.inv.hook = func() {
		if err := os.Remove(path); err != nil {
			t.Errorf("remove during invoke: %v", err)
		}
	}

	rig.svc.execute(context.Background(), rec, path)

	if rig.st.Exists(path) {
		t.Fatal("a record deleted mid-execution must stay deleted")
	}
}

func TestRenewalRewriteFailureFallsBackToDelete(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t, testNow)
	rec := futureRecord("t1", 60)
	path := writeRecord(t, rig.st, rec)

	// Make the rewrite fail: replace the record with an empty directory of
	// the same name, which a file rename cannot clobber.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}

	rig.svc.execute(context.Background(), rec, path)

	if rig.st.Exists(path) {
		t.Fatal("failed renewal should fall back to deletion")
	}
}

func TestReconcileAllCancelsVanishedRecords(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t, testNow)
	ctx := context.Background()

	p1 := writeRecord(t, rig.st, futureRecord("t1", 0))
	writeRecord(t, rig.st, futureRecord("t2", 0))
	rig.svc.reconcileAll(ctx)
	if rig.svc.Pending() != 2 {
		t.Fatalf("Pending = %d, want 2", rig.svc.Pending())
	}

	// Remove one file behind the watcher's back; the rescan must notice.
	if err := os.Remove(p1); err != nil {
		t.Fatal(err)
	}
	rig.svc.reconcileAll(ctx)

	if rig.svc.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1 after rescan", rig.svc.Pending())
	}
	if !rig.svc.reg.Has("t2") {
		t.Fatal("surviving record lost its entry")
	}
}

func TestUnreadableRecordIsSkippedAndReported(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t, testNow)
	path := filepath.Join(rig.st.Dir(), "broken.json")
	if err := os.WriteFile(path, []byte(`{"taskId": "x"`), 0o644); err != nil {
		t.Fatal(err)
	}

	rig.svc.reconcilePath(context.Background(), path)

	if rig.svc.Pending() != 0 {
		t.Fatal("unreadable record must not be admitted")
	}
	evs := rig.rep.snapshot()
	if len(evs) != 1 || evs[0].Category != "task.invalid" {
		t.Fatalf("expected one task.invalid report, got %+v", evs)
	}
	if !rig.st.Exists(path) {
		t.Fatal("unreadable record must not be deleted")
	}
}

func TestNonRecordFilesIgnored(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t, testNow)
	for _, name := range []string{"notes.txt", ".hidden.json", "README"} {
		p := filepath.Join(rig.st.Dir(), name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		rig.svc.reconcilePath(context.Background(), p)
	}
	if rig.svc.Pending() != 0 {
		t.Fatal("non-record files must be ignored")
	}
	if len(rig.rep.snapshot()) != 0 {
		t.Fatal("non-record files must not be reported")
	}
}

func TestTimerFireRetiresRegistryEntry(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t, testNow)
	rec := futureRecord("t1", 60)
	path := writeRecord(t, rig.st, rec)

	rig.svc.reconcilePath(context.Background(), path)
	rig.timers.last().fire()
	rig.svc.fireWG.Wait()

	if rig.svc.Pending() != 0 {
		t.Fatal("fired entry should be retired from the registry")
	}
	// The rewritten record is picked up again on the next notification.
	rig.svc.reconcilePath(context.Background(), path)
	if rig.svc.Pending() != 1 {
		t.Fatal("renewed record should be admissible again")
	}
}

func TestStartupScanFiresExpiredRecurringOnce(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t, testNow)
	rec := futureRecord("t2", 30)
	rec.ScheduledLocalTime = "2026-05-01T19:59:00+08:00" // one minute before testNow
	path := writeRecord(t, rig.st, rec)

	rig.svc.reconcileAll(context.Background())
	rig.svc.fireWG.Wait()

	if got := rig.inv.callCount(); got != 1 {
		t.Fatalf("invocations = %d, want 1", got)
	}
	got, err := rig.st.Load(path)
	if err != nil {
		t.Fatalf("record should be renewed: %v", err)
	}
	if got.TaskID != "t2" {
		t.Fatalf("taskId = %q", got.TaskID)
	}
	if got.ScheduledLocalTime != "2026-05-01T19:59:30+08:00" {
		t.Fatalf("renewed time = %q, want original +30s", got.ScheduledLocalTime)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()
	st := store.New(filepath.Join(t.TempDir(), "tasks"), logx.Nop())
	inv := &fakeInvoker{result: "ok"}
	svc := New(Config{Enabled: true}, st, inv, &recordingReporter{}, nil, logx.Nop(), nil)

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("second Start should be a no-op: %v", err)
	}

	// Directory must exist after Start even when it didn't before.
	if _, err := os.Stat(st.Dir()); err != nil {
		t.Fatalf("store dir not created: %v", err)
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := svc.Stop(sctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := svc.Stop(sctx); err != nil {
		t.Fatalf("second Stop should be a no-op: %v", err)
	}
}

func TestDisabledServiceDoesNotStart(t *testing.T) {
	t.Parallel()
	st := store.New(t.TempDir(), logx.Nop())
	svc := New(Config{Enabled: false}, st, &fakeInvoker{}, nil, nil, logx.Nop(), nil)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start of disabled service: %v", err)
	}
	if svc.Enabled() {
		t.Fatal("Enabled should report false")
	}
}
