package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"impactwatch/internal/classify"
	"impactwatch/internal/clip"
	"impactwatch/internal/config"
	"impactwatch/internal/dashboard"
	"impactwatch/internal/dedup"
	"impactwatch/internal/eventbus"
	"impactwatch/internal/keepalive"
	"impactwatch/internal/metrics"
	"impactwatch/internal/mlb"
	"impactwatch/internal/poller"
	"impactwatch/internal/publish"
	"impactwatch/internal/queue"
	rtsup "impactwatch/internal/runtime/supervisor"
	"impactwatch/internal/savant"
	"impactwatch/internal/scheduler"
	"impactwatch/internal/status"
	"impactwatch/internal/storage"
	"impactwatch/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	store storage.Store

	mlb      *mlb.Client
	renderer *clip.Renderer
	q        *queue.Queue
	seen     *dedup.SeenSet
	mon      *status.Monitor
	poll     *poller.Poller
	pub      *publish.Publisher
	metrics  *metrics.Metrics
	dash     *dashboard.Service
	sched    *scheduler.Service
	systemd  *keepalive.Notifier

	mu     sync.RWMutex
	s      *config.Settings
	pinger *keepalive.Pinger
}

// New loads the config and builds every component without starting any
// goroutine. envPath, when set, is loaded into the environment first.
func New(cfgPath, envPath string) (*App, error) {
	if err := config.LoadEnv(envPath); err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager(cfgPath)
	cfg, s, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Remote logging is enabled after the sender exists so Apply does not
	// warn about a missing target.
	bootCfg := mapLogConfig(cfg)
	bootCfg.Remote.Enabled = false
	logs, root := logx.New(bootCfg, nil)
	log := root.With(logx.String("comp", "app"))

	disabled, err := config.CheckCredentials(cfg)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	for _, name := range disabled {
		log.Warn("channel not configured; disabled", logx.String("channel", name))
	}
	channels, tg, err := buildChannels(cfg, s, root.With(logx.String("comp", "channels")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	if tg != nil {
		logs.SetSender(tg)
	}
	logs.Apply(mapLogConfig(cfg))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logs.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logs.Close()
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	bus := eventbus.New()
	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		bus:     bus,
		store:   store,
		s:       s,
		systemd: keepalive.NewNotifier(root.With(logx.String("comp", "systemd"))),
		pinger:  keepalive.NewPinger(s.SiteURL, s.RequestTimeout, root.With(logx.String("comp", "keepalive"))),
	}

	a.mlb = mlb.New(mlb.Config{
		Base:           s.APIBase,
		Timeout:        s.RequestTimeout,
		TeamID:         scheduleTeam(s),
		FinishedWindow: s.FinishedWindow,
	}, mlb.WithLocation(s.Location), mlb.WithLogger(root.With(logx.String("comp", "mlb"))))
	sav := savant.New(s.SavantBase, s.RequestTimeout, nil)

	a.renderer = clip.New(mapClipConfig(s), sav, clip.WithLogger(root.With(logx.String("comp", "clip"))))
	a.q = queue.New(mapQueueConfig(s), a.renderer,
		queue.WithLogger(root.With(logx.String("comp", "queue"))),
		queue.WithBus(bus),
	)
	a.seen = dedup.NewSeenSet(s.SeenCapacity)
	a.mon = status.NewMonitor(a.q, a.seen, status.WithLocation(s.Location))

	pcfg, err := mapPollerConfig(s)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.poll = poller.New(pcfg, poller.Deps{
		Source:  a.mlb,
		Queue:   a.q,
		Seen:    a.seen,
		Monitor: a.mon,
		Refiner: sav,
		Pinger:  sitePinger{a},
		Bus:     bus,
		Log:     root.With(logx.String("comp", "poller")),
	})

	popts := []publish.Option{
		publish.WithBus(bus),
		publish.WithLogger(root.With(logx.String("comp", "publish"))),
	}
	if store != nil {
		popts = append(popts, publish.WithJournal(store))
	}
	a.pub = publish.New(mapPublishConfig(s), a.q, channels, popts...)

	a.metrics = metrics.New(bus.Dropped)
	deps := dashboard.Deps{
		Monitor:  a.mon,
		Bus:      bus,
		Metrics:  a.metrics.Handler(),
		Loops:    a.loops,
		OnToggle: a.onToggle,
	}
	if store != nil {
		deps.Recent = store.RecentPublished
	}
	a.dash = dashboard.New(mapDashboardConfig(s), deps, root.With(logx.String("comp", "dashboard")))
	a.sched = scheduler.New(s.Location, root.With(logx.String("comp", "scheduler")))
	return a, nil
}

// sitePinger resolves the current keep-alive target on every call so a
// reloaded SITE_URL takes effect.
type sitePinger struct{ a *App }

func (p sitePinger) Ping(ctx context.Context) error {
	p.a.mu.RLock()
	pg := p.a.pinger
	p.a.mu.RUnlock()
	return pg.Ping(ctx)
}

func (a *App) settings() *config.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.s
}

func (a *App) Monitor() *status.Monitor { return a.mon }

// loops merges the app supervisor with the dashboard's own.
func (a *App) loops() rtsup.Snapshot {
	snap := a.sup.Snapshot()
	if ds := a.dash.Supervisor().Snapshot(); len(ds.Loops) > 0 {
		for _, l := range ds.Loops {
			l.Name = "dashboard." + l.Name
			snap.Loops = append(snap.Loops, l)
		}
		if snap.FirstError == "" {
			snap.FirstError = ds.FirstError
		}
	}
	return snap
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
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	sctx := a.sup.Context()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config, s *config.Settings) error {
		if _, err := config.CheckCredentials(cfg); err != nil {
			return err
		}
		if _, err := classify.NewStrategy(s.Strategy, mapThresholds(s), s.TeamID); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.logChecks(a.Check(sctx)); err != nil {
		return err
	}
	if err := a.loadState(sctx); err != nil {
		a.log.Warn("state restore failed; starting empty", logx.Err(err))
	}

	// Status counters and metrics observe the bus inline so they never drop.
	// They live as long as the bus.
	a.bus.Observe(a.mon.Observe)
	a.bus.Observe(a.metrics.Observe)
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.sup.GoEvery("poll", func() time.Duration { return a.settings().PollInterval }, nil, a.poll.Cycle)
	a.sup.GoEvery("queue.advance", func() time.Duration { return a.settings().AdvanceEvery }, nil,
		func(c context.Context) error {
			a.advanceQueue(c)
			return nil
		})
	a.sup.GoEvery("publish.drain", func() time.Duration { return a.settings().DrainEvery }, a.q.Ready(), a.drainPublish)

	if err := a.registerJobs(a.settings()); err != nil {
		return err
	}
	a.sched.Start(sctx)
	a.dash.Start(sctx)

	if a.settings().Systemd {
		a.systemd.Ready()
		a.sup.Go0("systemd.watchdog", a.systemd.Watchdog)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied, _ := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case up, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer, ok := <-sub:
						if ok && newer.Config != nil {
							up = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, up)
				lastApplied = up.Config
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	s := a.settings()
	a.log.Info("monitor started",
		logx.String("strategy", s.Strategy),
		logx.Duration("poll_interval", s.PollInterval),
		logx.Bool("clips", s.Clip.Enabled),
		logx.Bool("savant", s.UseSavant),
		logx.String("channels", orNone(a.pub.Channels())),
	)
	return nil
}

func (a *App) registerJobs(s *config.Settings) error {
	if err := a.sched.Add("status.daily_reset", s.ResetCron, 10*time.Second, func(ctx context.Context) error {
		prev := a.mon.ResetDaily(time.Now())
		a.bus.Publish(eventbus.Event{Type: eventbus.DailyReset})
		a.log.Info("daily stats reset",
			logx.String("day", prev.Day),
			logx.Int("seen", prev.Seen),
			logx.Int("queued", prev.Queued),
			logx.Int("enriched", prev.Enriched),
			logx.Int("published", prev.Published),
			logx.Int("failed", prev.Failed),
		)
		return nil
	}); err != nil {
		return fmt.Errorf("status.reset_cron: %w", err)
	}

	if err := a.sched.Add("monitor.heartbeat", s.HeartbeatEvery.String(), 5*time.Second, func(ctx context.Context) error {
		snap := a.mon.Snapshot()
		a.log.Info("heartbeat",
			logx.String("status", snap.Status),
			logx.String("uptime", snap.Uptime),
			logx.Uint64("scans", snap.TotalScans),
			logx.Int("queue", snap.QueueLength),
			logx.Int("published_today", snap.Daily.Published),
		)
		return nil
	}); err != nil {
		return fmt.Errorf("monitor.heartbeat_every: %w", err)
	}

	if a.store == nil {
		return nil
	}
	if err := a.sched.Add("storage.snapshot", s.SnapshotEvery.String(), 10*time.Second, a.saveState); err != nil {
		return fmt.Errorf("storage.snapshot_every: %w", err)
	}
	return nil
}

func (a *App) applyConfig(c context.Context, lastApplied *config.Config, up config.Update) {
	newCfg, s := up.Config, up.Settings
	sections, attrs, restart := config.SummarizeConfigChange(lastApplied, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(newCfg))

	a.mu.Lock()
	a.s = s
	a.pinger = keepalive.NewPinger(s.SiteURL, s.RequestTimeout, a.log.With(logx.String("comp", "keepalive")))
	a.mu.Unlock()

	if pcfg, err := mapPollerConfig(s); err != nil {
		a.log.Warn("invalid monitor config; keeping previous strategy", logx.Err(err))
	} else {
		a.poll.Apply(pcfg)
	}
	a.mlb.SetTimeout(s.RequestTimeout)
	a.mlb.SetTeamID(scheduleTeam(s))
	a.q.SetConfig(mapQueueConfig(s))
	a.seen.Resize(s.SeenCapacity)
	a.pub.SetConfig(mapPublishConfig(s))
	a.mon.SetLocation(s.Location)
	a.sched.SetLocation(s.Location)
	if err := a.registerJobs(s); err != nil {
		a.log.Warn("schedule update failed", logx.Err(err))
	}
	a.dash.Reconfigure(c, mapDashboardConfig(s))

	if len(restart) > 0 {
		a.log.Warn("config changes require a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Close releases resources of an app that was never started.
func (a *App) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.settings().Systemd {
		a.systemd.Stopping()
	}

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// step runs one shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

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
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("dashboard", 2*time.Second, func(c context.Context) error { a.dash.Stop(c); return nil })
	// Loops must be idle before the final snapshot.
	step("supervisor", 5*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("state", 3*time.Second, a.saveState)
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
