package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cronjure/internal/config"
	"cronjure/internal/eventhub"
	"cronjure/internal/jobs"
	"cronjure/internal/notifier"
	"cronjure/internal/observability/admin"
	"cronjure/internal/runtime/supervisor"
	"cronjure/internal/scheduler"
	"cronjure/internal/storage"
	"cronjure/pkg/logx"
	"cronjure/pkg/systemd"
)

// App is the daemon: config, logging, hub, history and the scheduler with
// its declarative jobs.
type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	hub   *eventhub.Hub
	store storage.Store
	units *systemd.Units

	reg    *scheduler.Registry
	sched  *scheduler.Service
	admin  *admin.Server
	notify *notifier.Service
}

// Option customizes the app before jobs are loaded.
type Option func(*options)

type options struct {
	register []func(*scheduler.Registry) error
	noUnits  bool
}

// WithJobKinds registers additional job kinds next to the built-ins.
func WithJobKinds(fn func(*scheduler.Registry) error) Option {
	return func(o *options) { o.register = append(o.register, fn) }
}

// WithoutSystemd leaves the systemd job kind unregistered.
func WithoutSystemd() Option {
	return func(o *options) { o.noUnits = true }
}

func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	boot := logx.NewConsole("INFO")
	cfgm := config.NewManager(cfgPath, boot)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.NewService(mapLogging(cfg))
	a := &App{
		cfgm: cfgm,
		log:  log.With(logx.String("comp", "app")),
		logs: logSvc,
		hub:  eventhub.New(eventhub.WithLogger(log)),
		reg:  scheduler.NewRegistry(),
	}
	if err := a.build(cfg, o); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, o options) error {
	if hc, enabled, err := mapHistoryConfig(cfg); err != nil {
		return err
	} else if enabled {
		st, err := storage.Open(hc, a.logs.Logger())
		if err != nil {
			return err
		}
		a.store = st
		a.log.Info("history enabled", logx.String("driver", hc.Driver))
	}

	deps := jobs.Deps{Log: a.logs.Logger(), Hub: a.hub}
	if !o.noUnits {
		a.units = systemd.NewUnits()
		deps.Units = a.units
	}
	if tg := cfg.Telegram; tg != nil {
		timeout, err := config.ParseDurationField("telegram.timeout", tg.Timeout)
		if err != nil {
			return err
		}
		sender, err := notifier.NewTelegramSender(notifier.TelegramConfig{Token: tg.Token, URL: tg.APIURL, Timeout: timeout})
		if err != nil {
			return err
		}
		deps.Chat = sender
		deps.DefaultChat = tg.ChatID

		nc, enabled, err := mapNotifierConfig(tg)
		if err != nil {
			return err
		}
		if enabled {
			a.notify = notifier.New(nc, sender, a.logs.Logger())
		}
	}
	if err := jobs.Register(a.reg, deps); err != nil {
		return err
	}
	for _, fn := range o.register {
		if err := fn(a.reg); err != nil {
			return err
		}
	}

	sc, err := mapSchedulerConfig(cfg)
	if err != nil {
		return err
	}
	sopts := []scheduler.ServiceOption{
		scheduler.WithLogger(a.logs.Logger()),
		scheduler.WithHub(a.hub),
	}
	if a.store != nil {
		sopts = append(sopts, scheduler.WithRecorder(a.store))
	}
	a.sched = scheduler.New(sc, a.reg, sopts...)

	if ac, enabled, err := mapAdminConfig(cfg); err != nil {
		return err
	} else if enabled {
		var hist admin.History
		if a.store != nil {
			hist = a.store
		}
		a.admin = admin.New(ac, a.sched, hist, a.logs.Logger())
	}

	return a.loadJobs(cfg)
}

// loadJobs registers every declarative job, reporting all failures together.
func (a *App) loadJobs(cfg *config.Config) error {
	b := builder{hub: a.hub, log: a.logs.Logger()}
	var errs []error
	for i, jc := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		s, err := b.schedule(path, jc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		id, err := a.sched.ScheduleJob(jc.Kind, s, jc.Data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s (%s): %w", path, jc.Label(), err))
			continue
		}
		a.log.Debug("declared job loaded", logx.String("name", jc.Label()), logx.String("job", id))
	}
	return errors.Join(errs...)
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }
func (a *App) Hub() *eventhub.Hub            { return a.hub }
func (a *App) History() storage.Store        { return a.store }
func (a *App) Admin() *admin.Server          { return a.admin }
func (a *App) Notifier() *notifier.Service   { return a.notify }

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.notify != nil {
		if err := a.notify.Start(a.sup.Context(), a.hub); err != nil {
			return err
		}
	}
	if a.admin != nil {
		if err := a.admin.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	if _, err := a.hub.Subscribe("*", func(name string, _ any) {
		a.log.Trace("event", logx.String("name", name))
	}); err != nil {
		return err
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	}, supervisor.WithRestartBackoff(time.Second, time.Minute))

	a.log.Info("app started",
		logx.String("config", a.cfgm.Path()),
		logx.Int("jobs", len(a.sched.Snapshot())),
		logx.Strings("kinds", a.reg.Kinds()),
	)
	return nil
}

func (a *App) applyConfig(prev, next *config.Config) {
	changed, attrs := config.Diff(prev, next)
	if len(changed) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Info("config changed", append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)...)
	if err := a.logs.Apply(mapLogging(next)); err != nil {
		a.log.Warn("logging config partially applied", logx.Err(err))
	}
	if !config.LiveOnly(changed) {
		a.log.Warn("restart required for changes to take effect", logx.Strings("sections", changed))
	}
}

// Stop shuts down in reverse start order, each step bounded by its own
// timeout inside ctx.
func (a *App) Stop(ctx context.Context) error {
	start := time.Now()
	a.log.Info("stopping")

	var errs []error
	step := func(name string, d time.Duration, fn func(context.Context) error) {
		c, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		if err := fn(c); err != nil {
			a.log.Warn("stop step failed", logx.String("step", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if a.admin != nil {
		step("admin", 5*time.Second, a.admin.Stop)
	}
	step("scheduler", 30*time.Second, a.sched.Stop)
	if a.notify != nil {
		step("notifier", 5*time.Second, a.notify.Stop)
	}
	if a.sup != nil {
		a.sup.Cancel()
		step("supervisor", 2*time.Second, func(c context.Context) error {
			if err := a.sup.Wait(c); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	a.log.Info("stopped", logx.Duration("took", time.Since(start)))
	a.close()
	return errors.Join(errs...)
}

func (a *App) close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.units != nil {
		a.units.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("history close failed", logx.Err(err))
		}
	}
	_ = a.logs.Close()
}
