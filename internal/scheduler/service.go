// Package scheduler turns task record files into timer-driven tool
// invocations. It owns the schedule registry, the store watcher, and the
// executor; the store directory remains the single source of truth and the
// registry is rebuilt from it on every reconcile.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"taskd/internal/eventbus"
	"taskd/internal/invoke"
	"taskd/internal/notifier"
	"taskd/internal/runtime/supervisor"
	"taskd/internal/storage"
	"taskd/internal/store"
	"taskd/internal/task"
	logx "taskd/pkg/logx"
)

// Reporter delivers outcome events to the notification channel.
// *notifier.Service satisfies it.
type Reporter interface {
	Report(ctx context.Context, ev notifier.Event)
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	running bool

	log logx.Logger
	bus eventbus.Bus

	st    *store.Store
	inv   invoke.Invoker
	rep   Reporter
	audit storage.Store

	reg *Registry

	// now and newTimer are swappable in tests.
	now      Clock
	newTimer TimerFactory

	sup      *supervisor.Supervisor
	cron     *cron.Cron
	fireWG   sync.WaitGroup
	stopDone chan struct{}
}

func New(cfg Config, st *store.Store, inv invoke.Invoker, rep Reporter, audit storage.Store, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		log:      log.With(logx.String("comp", "scheduler")),
		bus:      bus,
		st:       st,
		inv:      inv,
		rep:      rep,
		audit:    audit,
		reg:      NewRegistry(),
		now:      time.Now,
		newTimer: systemTimer,
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Pending returns the number of tasks currently waiting on a timer.
func (s *Service) Pending() int { return s.reg.Len() }

// Apply updates runtime-tunable settings. A changed rescan interval takes
// effect by restarting the cron entry; a stopped service just records the
// new config.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.running
	s.mu.Unlock()

	if running && cfg.RescanEvery != prev.RescanEvery {
		s.stopCron()
		s.startCron()
	}
}

// Start brings up the scheduler: ensure the store directory exists, run the
// startup reconcile, then watch for changes. Idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if !s.cfg.Enabled {
		s.mu.Unlock()
		s.log.Info("scheduler disabled")
		return nil
	}
	s.running = true
	s.stopDone = make(chan struct{})
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.mu.Unlock()

	if err := s.st.EnsureDir(); err != nil {
		s.mu.Lock()
		s.running = false
		close(s.stopDone)
		s.stopDone = nil
		s.mu.Unlock()
		return err
	}

	s.reconcileAll(s.sup.Context())
	s.sup.Go("store.watch", s.watch)
	s.startCron()

	s.log.Info("scheduler started",
		logx.String("dir", s.st.Dir()),
		logx.Int("pending", s.reg.Len()))
	return nil
}

// Stop cancels all pending timers and waits (bounded by ctx) for in-flight
// firings to finish. Tasks whose timers were cancelled are rediscovered by
// the startup scan on the next run.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		done := s.stopDone
		s.mu.Unlock()
		if done != nil {
			// Another Stop is in flight; wait for it.
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}
	s.running = false
	sup := s.sup
	done := s.stopDone
	s.mu.Unlock()

	s.stopCron()
	sup.Cancel()
	dropped := s.reg.DrainCancel()

	fires := make(chan struct{})
	go func() {
		s.fireWG.Wait()
		close(fires)
	}()
	var err error
	select {
	case <-fires:
		err = sup.Wait(ctx)
	case <-ctx.Done():
		err = ctx.Err()
	}
	close(done)
	s.mu.Lock()
	s.stopDone = nil
	s.mu.Unlock()
	s.log.Info("scheduler stopped", logx.Int("cancelled", dropped))
	return err
}

func (s *Service) startCron() {
	s.mu.Lock()
	every := s.cfg.RescanEvery
	running := s.running
	s.mu.Unlock()
	if !running || every <= 0 {
		return
	}
	c := cron.New()
	c.Schedule(cron.Every(every), cron.FuncJob(func() {
		s.reconcileAll(s.sup.Context())
	}))
	c.Start()
	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
}

func (s *Service) stopCron() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}

// reconcileAll admits every valid record currently in the store and cancels
// pending entries whose backing file is gone. Runs at startup and on the
// periodic rescan; safe to run concurrently with watch notifications
// because admission is idempotent.
func (s *Service) reconcileAll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	paths, err := s.st.List()
	if err != nil {
		s.log.Warn("store scan failed", logx.Err(err))
		return
	}
	present := make(map[string]bool, len(paths))
	for _, p := range paths {
		present[p] = true
		s.reconcilePath(ctx, p)
	}
	for path, id := range s.reg.Paths() {
		if present[path] {
			continue
		}
		if s.reg.Cancel(id) {
			s.log.Info("pending task cancelled, record gone", logx.String("task", id))
			s.publish("task.cancelled", TaskEvent{TaskID: id})
		}
	}
}

// reconcilePath re-derives the scheduling state for one record file. It is
// the single entry point for the startup scan, watch notifications, and the
// rescan fallback: notification kinds are never trusted, only the file's
// current existence and content.
func (s *Service) reconcilePath(ctx context.Context, path string) {
	if !store.IsRecordPath(path) {
		return
	}
	if !s.st.Exists(path) {
		if id, ok := s.reg.CancelPath(path); ok {
			s.log.Info("pending task cancelled", logx.String("task", id))
			s.publish("task.cancelled", TaskEvent{TaskID: id})
		}
		return
	}
	rec, err := s.st.Load(path)
	if err != nil {
		// Malformed or mid-write; the next notification retries.
		s.log.Warn("skipping unreadable record", logx.String("path", path), logx.Err(err))
		s.report(ctx, notifier.Event{
			Category: "task.invalid",
			Status:   notifier.StatusError,
			Summary:  err.Error(),
		})
		return
	}
	s.admit(ctx, rec, path)
}

// admit applies the discovery decision for a loaded record: skip if already
// pending, fire immediately if due, otherwise install a timer.
func (s *Service) admit(ctx context.Context, rec *task.Record, path string) {
	id := rec.TaskID
	if s.reg.Has(id) {
		return
	}
	due, err := rec.DueTime()
	if err != nil {
		s.log.Warn("record has unparseable time", logx.String("task", id), logx.Err(err))
		return
	}
	now := s.now()
	if !due.After(now) {
		s.log.Debug("task past due, firing now",
			logx.String("task", id), logx.Time("due", due))
		s.fireAsync(ctx, rec, path)
		return
	}
	tm := s.newTimer(due.Sub(now), func() {
		// Retire the entry before firing so the registry never holds a
		// fired timer.
		s.reg.Remove(id)
		s.fireAsync(ctx, rec, path)
	})
	if !s.reg.Add(id, path, due, tm) {
		// Lost a discovery race; the winner's timer stands.
		tm.Stop()
		return
	}
	s.log.Debug("task scheduled",
		logx.String("task", id),
		logx.String("tool", rec.ToolCall.ToolName),
		logx.Time("due", due))
	s.publish("task.scheduled", TaskEvent{TaskID: id, Tool: rec.ToolCall.ToolName, Due: due})
}

func (s *Service) fireAsync(ctx context.Context, rec *task.Record, path string) {
	s.fireWG.Add(1)
	go func() {
		defer s.fireWG.Done()
		s.execute(ctx, rec, path)
	}()
}

func (s *Service) publish(typ string, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func (s *Service) report(ctx context.Context, ev notifier.Event) {
	if s.rep == nil {
		return
	}
	ev.Source = reportSource
	s.rep.Report(ctx, ev)
}
