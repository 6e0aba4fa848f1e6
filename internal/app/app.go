// Package app assembles the daemon: config, logging, state, the watcher
// machine, its poll schedule, and the announcers, all under one supervisor.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/journalehsan/UptimeWatcher/internal/announce"
	"github.com/journalehsan/UptimeWatcher/internal/announce/telegram"
	"github.com/journalehsan/UptimeWatcher/internal/config"
	"github.com/journalehsan/UptimeWatcher/internal/eventbus"
	"github.com/journalehsan/UptimeWatcher/internal/observability/pprof"
	"github.com/journalehsan/UptimeWatcher/internal/reboot"
	rtsup "github.com/journalehsan/UptimeWatcher/internal/runtime/supervisor"
	"github.com/journalehsan/UptimeWatcher/internal/state"
	"github.com/journalehsan/UptimeWatcher/internal/uptime"
	"github.com/journalehsan/UptimeWatcher/internal/watch"
	logx "github.com/journalehsan/UptimeWatcher/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	bus     eventbus.Bus
	store   state.Store
	machine *watch.Machine
	ann     *announce.Service
	tg      *telegram.Bot
	prof    *pprof.Service

	cron    *cron.Cron
	pollID  cron.EntryID
	pollDur time.Duration

	sup     *rtsup.Supervisor
	cfgCh   chan *config.Config
	lastCfg *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	a := &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		bus:     eventbus.New(),
		lastCfg: cfg,
	}

	stateCfg, err := stateConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.store, err = state.Open(stateCfg, logs.Logger().With(logx.String("comp", "state")))
	if err != nil {
		return nil, err
	}

	exec, err := reboot.New(cfg.Reboot.Command, logs.Logger().With(logx.String("comp", "reboot")))
	if err != nil {
		return nil, fmt.Errorf("reboot executor: %w", err)
	}

	watchCfg, err := watchConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.machine = watch.New(watchCfg, uptime.System(), a.store, exec, a.bus,
		logs.Logger().With(logx.String("comp", "watch")))

	a.pollDur, err = cfg.Watcher.PollIntervalDuration()
	if err != nil {
		return nil, err
	}

	annCfg, err := announceConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.ann = announce.New(annCfg, a.bus, logs.Logger().With(logx.String("comp", "announce")))

	if tcfg := cfg.Announce.Telegram; tcfg != nil && tcfg.Enabled {
		pollTimeout, err := config.ParseDurationOrDefault("announce.telegram.poll_timeout", tcfg.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		a.tg, err = telegram.New(telegram.Config{
			Token:       tcfg.Token,
			ChatID:      tcfg.ChatID,
			PollTimeout: pollTimeout,
		}, a.machine, a.bus, logs.Logger().With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram announcer: %w", err)
		}
	}

	a.prof = pprof.New(pprof.Config{
		Enabled: cfg.Debug.Pprof.Enabled,
		Addr:    cfg.Debug.Pprof.Addr,
		Token:   cfg.Debug.Pprof.Token,
	}, logs.Logger().With(logx.String("comp", "pprof")))

	return a, nil
}

// Machine exposes the watcher for surfaces living outside the app (signals,
// future local IPC).
func (a *App) Machine() *watch.Machine { return a.machine }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.logs.Logger().With(logx.String("comp", "supervisor"))),
		rtsup.WithCancelOnError(false),
	)
	runCtx := a.sup.Context()

	if err := a.machine.Restore(ctx); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	a.sup.GoRestart("announce", a.ann.Run)
	if a.tg != nil {
		a.sup.GoRestart("telegram", a.tg.Run,
			rtsup.WithRestartBackoff(time.Second, time.Minute))
	}
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	if a.prof.Enabled() {
		a.sup.GoRestart("pprof", a.prof.Run,
			rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	}

	// First sample happens right away; the schedule handles the rest.
	a.machine.Tick(runCtx)

	a.cron = cron.New()
	id, err := a.cron.AddFunc(fmt.Sprintf("@every %s", a.pollDur), func() {
		a.machine.Tick(runCtx)
	})
	if err != nil {
		return fmt.Errorf("schedule poll: %w", err)
	}
	a.pollID = id
	a.cron.Start()

	a.cfgCh = a.cfgm.Subscribe(4)
	a.sup.Go0("config.apply", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-a.cfgCh:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	})

	a.log.Info("started",
		logx.Duration("poll_interval", a.pollDur),
		logx.Bool("telegram", a.tg != nil))
	return nil
}

// applyConfig hot-applies what can change at runtime. Storage driver and
// telegram wiring need a restart; that is logged, not silently ignored.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logConfig(cfg))

	wcfg, err := watchConfig(cfg)
	if err != nil {
		a.log.Error("reloaded config rejected", logx.Any("err", err))
		return
	}
	a.machine.Apply(wcfg)

	if poll, err := cfg.Watcher.PollIntervalDuration(); err == nil && poll != a.pollDur {
		if id, err := a.cron.AddFunc(fmt.Sprintf("@every %s", poll), func() {
			a.machine.Tick(a.sup.Context())
		}); err == nil {
			a.cron.Remove(a.pollID)
			a.pollID = id
			a.pollDur = poll
			a.log.Info("poll interval changed", logx.Duration("poll_interval", poll))
		}
	}

	if old := a.lastCfg; old != nil &&
		(old.State != cfg.State || !announceEqual(old.Announce, cfg.Announce) || old.Debug != cfg.Debug) {
		a.log.Warn("state, announce and debug changes take effect on restart")
	}
	a.lastCfg = cfg

	a.log.Info("config reloaded")
}

func announceEqual(a, b config.AnnounceConfig) bool {
	if a.RatePerMin != b.RatePerMin {
		return false
	}
	if a.Hook.Enabled != b.Hook.Enabled || a.Hook.Timeout != b.Hook.Timeout ||
		len(a.Hook.Command) != len(b.Hook.Command) {
		return false
	}
	for i := range a.Hook.Command {
		if a.Hook.Command[i] != b.Hook.Command[i] {
			return false
		}
	}
	if (a.Telegram == nil) != (b.Telegram == nil) {
		return false
	}
	return a.Telegram == nil || *a.Telegram == *b.Telegram
}

func (a *App) Stop(ctx context.Context) {
	if a.cron != nil {
		stopCtx := a.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	if a.sup != nil {
		_ = a.sup.Stop(ctx)
	}
	if a.cfgCh != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("state store close failed", logx.Any("err", err))
		}
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func stateConfig(cfg *config.Config) (state.Config, error) {
	busy, err := config.ParseDurationOrDefault("state.busy_timeout", cfg.State.BusyTimeout, 5*time.Second)
	if err != nil {
		return state.Config{}, err
	}
	path := cfg.State.Path
	if path == "" {
		path, err = config.DefaultStatePath()
		if err != nil {
			return state.Config{}, err
		}
	}
	return state.Config{
		Driver:      cfg.State.Driver,
		Path:        path,
		BusyTimeout: busy,
	}, nil
}

func watchConfig(cfg *config.Config) (watch.Config, error) {
	threshold, err := cfg.Watcher.ThresholdDuration()
	if err != nil {
		return watch.Config{}, err
	}
	timeout, err := cfg.Watcher.DecisionTimeoutDuration()
	if err != nil {
		return watch.Config{}, err
	}
	return watch.Config{Threshold: threshold, DecisionTimeout: timeout}, nil
}

func announceConfig(cfg *config.Config) (announce.Config, error) {
	timeout, err := config.ParseDurationOrDefault("announce.hook.timeout", cfg.Announce.Hook.Timeout, 10*time.Second)
	if err != nil {
		return announce.Config{}, err
	}
	return announce.Config{
		RatePerMin: cfg.Announce.RatePerMin,
		Hook: announce.HookConfig{
			Enabled: cfg.Announce.Hook.Enabled,
			Command: cfg.Announce.Hook.Command,
			Timeout: timeout,
		},
	}, nil
}
