// Package app assembles the daemon: configuration, logging, the event bus,
// the scheduler, the resilience registry, analytics and the run journal,
// constructed once at process start and passed by reference. There are no
// package-level singletons; tests build a fresh App (or just the pieces they
// need) per test.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autokit/internal/analytics"
	"autokit/internal/config"
	"autokit/internal/eventbus"
	"autokit/internal/journal"
	"autokit/internal/resilience"
	"autokit/internal/runtime/supervisor"
	"autokit/internal/scheduler"
	logx "autokit/pkg/logx"
)

// App owns every long-lived component of the daemon.
type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus   eventbus.Bus
	sched *scheduler.Scheduler
	res   *resilience.Manager
	an    *analytics.Analytics
	store journal.Store
	rec   *journal.Recorder
	sup   *supervisor.Supervisor

	cfgCh chan *config.Config

	started bool
}

// New loads the configuration and constructs all components. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	mgr.SetValidator(func(ctx context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logSvc, log := logx.New(loggingConfig(cfg))
	mgr.SetLogger(log.With(logx.String("svc", "config")))

	bus := eventbus.New()

	schedCfg, err := schedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, log.With(logx.String("svc", "scheduler")), bus)

	resCfg, err := resilienceConfig(cfg)
	if err != nil {
		return nil, err
	}
	res := resilience.NewManager(resCfg, log.With(logx.String("svc", "resilience")), bus)

	store, err := journal.Open(journalConfig(cfg), log.With(logx.String("svc", "journal")))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
		bus:    bus,
		sched:  sched,
		res:    res,
		an:     analytics.New(),
		store:  store,
	}, nil
}

func (a *App) Config() *config.Config          { return a.cfgMgr.Get() }
func (a *App) Logger() logx.Logger             { return a.log }
func (a *App) Bus() eventbus.Bus               { return a.bus }
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }
func (a *App) Resilience() *resilience.Manager { return a.res }
func (a *App) Analytics() *analytics.Analytics { return a.an }
func (a *App) Journal() journal.Store          { return a.store }

// Start launches the scheduler loop, the run recorder and the config watcher.
// Idempotent.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	a.started = true

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("svc", "supervisor"))))

	a.rec = journal.NewRecorder(a.store, a.bus, a.log.With(logx.String("svc", "journal")))
	a.sched.Start()

	// Hot reload: the watcher self-heals, so restart it only on real errors.
	a.cfgCh = a.cfgMgr.Subscribe(4)
	a.sup.GoRestart("config.watch", func(ctx context.Context) error {
		return a.cfgMgr.Watch(ctx)
	})
	a.sup.Go0("config.apply", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-a.cfgCh:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	})

	evCh, evUnsub := a.bus.Subscribe(256)
	a.sup.Go0("analytics.track", func(ctx context.Context) {
		defer evUnsub()
		a.trackEvents(ctx, evCh)
	})

	a.scheduleHousekeeping()

	a.log.Info("app started")
	return nil
}

// trackEvents feeds task outcomes and circuit transitions into analytics.
func (a *App) trackEvents(ctx context.Context, ch <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Topic {
			case eventbus.TopicTaskFired:
				if te, ok := ev.Data.(scheduler.TaskEvent); ok {
					a.an.TrackTask(true, te.Duration)
					a.an.TrackAction(te.Kind)
				}
			case eventbus.TopicTaskFailed:
				if te, ok := ev.Data.(scheduler.TaskEvent); ok {
					a.an.TrackTask(false, te.Duration)
					a.an.TrackAction(te.Kind)
					ec := resilience.Classify(errors.New(te.Error), te.Name)
					a.an.TrackError(ec.Severity.String())
				}
			case eventbus.TopicCircuitOpened:
				a.an.TrackError("circuit_open")
			}
		}
	}
}

// applyConfig handles a hot-reloaded configuration. Only logging settings
// take effect live; scheduler and breaker parameters need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.logSvc.Apply(loggingConfig(cfg))
	a.log.Info("config reloaded", logx.String("log_level", cfg.Logging.Level))
}

// scheduleHousekeeping registers the daemon's own recurring tasks on its
// scheduler.
func (a *App) scheduleHousekeeping() {
	cfg := a.Config()

	// Periodic health summary.
	a.mustSchedule("health report", func() (int64, error) {
		return a.sched.ScheduleInterval(scheduler.RunnableFunc(a.reportHealth), time.Minute, "health_report", false)
	})

	// Journal retention.
	if a.store != nil && cfg.Journal != nil && cfg.Journal.Retention != "" {
		retention, err := config.ParseDurationField("journal.retention", cfg.Journal.Retention)
		if err == nil && retention > 0 {
			a.mustSchedule("journal prune", func() (int64, error) {
				return a.sched.ScheduleDaily(scheduler.RunnableFunc(func() error {
					ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					n, err := a.store.Prune(ctx, time.Now().Add(-retention))
					if err != nil {
						return err
					}
					if n > 0 {
						a.log.Info("journal pruned", logx.Int("removed", n))
					}
					return nil
				}), "03:30", "journal_prune")
			})
		}
	}
}

func (a *App) mustSchedule(what string, fn func() (int64, error)) {
	if _, err := fn(); err != nil {
		a.log.Error("housekeeping schedule failed", logx.String("what", what), logx.Err(err))
	}
}

func (a *App) reportHealth() error {
	health := a.res.Health()
	open := 0
	for _, h := range health {
		if h.State == "open" {
			open++
		}
	}
	a.log.Info("health",
		logx.Int("tasks", len(a.sched.Tasks())),
		logx.Int("breakers", len(health)),
		logx.Int("breakers_open", open),
		logx.Int64("goroutines_active", a.sup.Counters().Active))
	return nil
}

// Stop shuts everything down in reverse start order: scheduler first so no
// new runs are produced, then the recorder drains, then the journal closes.
func (a *App) Stop(ctx context.Context) error {
	if !a.started {
		return nil
	}
	a.started = false

	a.sched.Stop()
	if a.rec != nil {
		a.rec.Stop()
	}

	var supErr error
	if a.sup != nil {
		supErr = a.sup.Stop(ctx)
	}
	if a.cfgCh != nil {
		a.cfgMgr.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("journal close failed", logx.Err(err))
		}
	}

	report := a.an.Report()
	a.log.Info("app stopped",
		logx.Int("tasks_tracked", report.TotalTasks),
		logx.Int("actions_tracked", report.TotalActions))
	_ = a.logSvc.Close()
	return supErr
}
