// Package app is the composition root of the taskd daemon: it wires config,
// logging, the event bus, the audit store, the notifier, the tool backend,
// and the scheduler, and owns the staged shutdown sequence.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskd/internal/config"
	"taskd/internal/eventbus"
	"taskd/internal/invoke"
	"taskd/internal/notifier"
	"taskd/internal/runtime/supervisor"
	"taskd/internal/scheduler"
	"taskd/internal/storage"
	"taskd/internal/store"
	logx "taskd/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	logSvc *logx.Service
	log    logx.Logger
	bus    eventbus.Bus

	st    *store.Store
	tools *invoke.Registry
	audit storage.Store
	notif *notifier.Service
	sched *scheduler.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	audit, err := storage.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("open audit storage: %w", err)
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	sinks, err := buildSinks(cfg, log)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	notif := notifier.New(ncfg, sinks, log.With(logx.String("comp", "notifier")), bus)

	tools := invoke.NewRegistry(log.With(logx.String("comp", "invoke")))
	tools.Register("echo", invoke.Echo)
	tools.Register("run", invoke.Run)

	st := store.New(cfg.TasksDir(), log.With(logx.String("comp", "store")))

	scfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	sched := scheduler.New(scfg, st, tools, notif, audit,
		log.With(logx.String("comp", "scheduler")), bus)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logSvc:  logSvc,
		log:     log,
		bus:     bus,
		st:      st,
		tools:   tools,
		audit:   audit,
		notif:   notif,
		sched:   sched,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if cfg.Storage != nil {
			if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
				return err
			}
		}
		return nil
	})

	a.notif.Start(a.sup.Context())

	if a.sched.Enabled() {
		if err := a.sched.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	// Track last applied config to generate a safe diff summary for logging.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				lastApplied = newCfg
				continue
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
			a.log.Info("config reloaded",
				append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	// logging
	a.logSvc.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
	})

	// notifier settings (sink set is fixed at startup; Telegram changes
	// require a restart)
	if ncfg, err := mapNotifierConfig(newCfg); err == nil {
		a.notif.Apply(ncfg)
	} else {
		a.log.Warn("invalid notifier config ignored", logx.Err(err))
	}

	// store directory cannot move at runtime
	if oldCfg != nil && oldCfg.TasksDir() != newCfg.TasksDir() {
		a.log.Warn("tasks.dir changed; restart required to take effect",
			logx.String("current", a.st.Dir()),
			logx.String("configured", newCfg.TasksDir()))
	}

	// scheduler settings, plus enable/disable on the fly
	scfg, err := mapSchedulerConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid scheduler config ignored", logx.Err(err))
		return
	}
	prevEnabled := a.sched.Enabled()
	a.sched.Apply(scfg)
	switch {
	case prevEnabled && !scfg.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		_ = a.sched.Stop(stopCtx)
		cancel()
	case !prevEnabled && scfg.Enabled:
		a.log.Info("scheduler enabled via config")
		if err := a.sched.Start(ctx); err != nil {
			a.log.Error("scheduler restart failed", logx.Err(err))
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Scheduler first so no new reports are produced, then the notifier can
	// drain, then the audit store closes.
	step("scheduler", 3*time.Second, func(c context.Context) error { return a.sched.Stop(c) })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	if a.audit != nil {
		step("storage", time.Second, func(context.Context) error { return a.audit.Close() })
	}
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	a.logSvc.Close()
	return nil
}
