// Package notifier is the outbound notification channel: execution outcomes
// and reconciliation problems are reported here and fanned out to the
// configured sinks. Reporting is fire-and-forget; a failure to deliver is
// never an error for the caller.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"taskd/internal/eventbus"
	rtsup "taskd/internal/runtime/supervisor"
	logx "taskd/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type job struct {
	text string
	ev   Event
	// dedupKey is computed at enqueue time for cheap per-worker processing.
	dedupKey string
}

// Sink delivers one rendered notification to an external destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// Service implements an async notification pipeline:
// queue + worker pool + rate limit + retry + dedup.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	bus   eventbus.Bus
	sinks []Sink

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	queue     chan job
	sup       *rtsup.Supervisor
	stopDone  chan struct{} // non-nil while stopping

	// In-memory dedup cache: key -> suppress until.
	dmu   sync.Mutex
	dedup map[string]time.Time
}

func New(cfg Config, sinks []Sink, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log,
		bus:   bus,
		sinks: sinks,
		dedup: map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	// Defaults
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Start is idempotent. If stopping, wait for it to finish first.
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	queue := s.queue

	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		idx := i
		sup.Go0(fmt.Sprintf("worker.%d", idx), func(c context.Context) {
			s.workerLoop(c, queue)
		})
	}
	s.log.Info("notifier started", logx.Int("workers", workers), logx.Int("sinks", len(s.sinks)))
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.queue == nil || s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		if done != nil {
			select {
			case <-done:
			case <-ctx.Done():
			}
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	sup := s.sup
	s.mu.Unlock()

	if sup != nil {
		sup.Cancel()
	}

	go func() {
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		s.queue = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("notifier stopped")
	case <-ctx.Done():
		s.log.Warn("notifier stop timed out", logx.Err(ctx.Err()))
	}
}

// Report queues an outcome event for delivery. Fire-and-forget: drops
// (disabled, stopping, queue full, dedup window) are logged and published on
// the bus, never surfaced to the caller.
func (s *Service) Report(ctx context.Context, ev Event) {
	_ = ctx

	text := Render(ev)
	if text == "" {
		return
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		s.log.Debug("report dropped: notifier not running", logx.String("category", ev.Category))
		return
	}
	q := s.queue
	window := s.cfg.DedupWindow
	maxEntries := s.cfg.DedupMaxEntries
	s.mu.Unlock()

	key := dedupKey(ev)
	if window > 0 && !s.dedupAllow(key, window, maxEntries) {
		s.publish("notifier.deduped", NotifyEvent{Category: ev.Category, Key: key})
		return
	}

	select {
	case q <- job{text: text, ev: ev, dedupKey: key}:
		s.publish("notifier.queued", NotifyEvent{Category: ev.Category, Key: key})
	default:
		s.log.Warn("report dropped: queue full", logx.String("category", ev.Category), logx.String("task", ev.TaskID))
		s.publish("notifier.dropped", NotifyEvent{Category: ev.Category, Key: key, Error: ErrQueueFull.Error()})
	}
}

// Render formats an event as the single-line text handed to sinks, with the
// summary truncated to SummaryLimit.
func Render(ev Event) string {
	summary := Truncate(strings.TrimSpace(ev.Summary), SummaryLimit)

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(ev.Source)
	b.WriteString("] ")
	b.WriteString(ev.Category)
	b.WriteString(" ")
	b.WriteString(string(ev.Status))
	if ev.TaskID != "" {
		b.WriteString(" task=")
		b.WriteString(ev.TaskID)
	}
	if ev.Tool != "" {
		b.WriteString(" tool=")
		b.WriteString(ev.Tool)
	}
	if summary != "" {
		b.WriteString(": ")
		b.WriteString(summary)
	}
	return b.String()
}

// Truncate caps s at limit runes, appending an ellipsis marker when cut.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, j)
		}
	}
}

func (s *Service) deliver(ctx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sinks := s.sinks
	s.mu.Unlock()

	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		if err := s.sendWithRetry(ctx, cfg, lim, sink, j.text); err != nil {
			s.log.Debug("notify delivery failed",
				logx.String("sink", sink.Name()),
				logx.String("category", j.ev.Category),
				logx.Err(err))
			s.publish("notifier.failed", NotifyEvent{Sink: sink.Name(), Category: j.ev.Category, Key: j.dedupKey, Error: err.Error()})
			continue
		}
		s.publish("notifier.sent", NotifyEvent{Sink: sink.Name(), Category: j.ev.Category, Key: j.dedupKey})
	}
}

func (s *Service) sendWithRetry(ctx context.Context, cfg Config, lim *rate.Limiter, sink Sink, text string) error {
	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		// Bound per-send call so a slow sink can't hang a worker.
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := sink.Send(callCtx, text)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= maxAttempts {
			break
		}
		delay := retryDelay(cfg, attempt)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return ctx.Err()
		}
	}
	return lastErr
}

func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase << (attempt - 1)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		d = cfg.RetryMaxDelay
	}
	return d
}

func (s *Service) publish(typ string, data NotifyEvent) {
	if s.bus == nil {
		return
	}
	data.At = time.Now()
	s.bus.Publish(eventbus.Event{Type: typ, Time: data.At, Data: data})
}

func dedupKey(ev Event) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ev.Source))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(ev.Category))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(ev.Status))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(ev.TaskID))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(ev.Summary))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration, maxEntries int) bool {
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}

	// Opportunistic pruning keeps the cache bounded.
	if len(s.dedup) >= maxEntries {
		for k, until := range s.dedup {
			if !now.Before(until) {
				delete(s.dedup, k)
			}
		}
		// Still full of live entries: allow without recording.
		if len(s.dedup) >= maxEntries {
			return true
		}
	}
	s.dedup[key] = now.Add(window)
	return true
}
