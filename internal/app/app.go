// Package app wires the services together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"roebot/internal/bot"
	"roebot/internal/cache"
	"roebot/internal/config"
	"roebot/internal/eventbus"
	"roebot/internal/notify"
	"roebot/internal/runtime/supervisor"
	"roebot/internal/source"
	"roebot/internal/storage"
	kit "roebot/internal/transport"
	telegram "roebot/internal/transport/telegram"
	logx "roebot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	adapter  kit.Adapter
	resolver *source.Resolver
	cache    *cache.Service
	notif    *notify.Service
	front    *bot.Service

	adminChatID int64
	alertAdmin  bool
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	cfg.LoadEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with the Telegram sink disabled, point it at the admin chat,
	// then apply the real flag, so a configured-but-untargeted sink never
	// warns during startup.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	log = log.With(logx.String("comp", "app"))
	if cfg.Telegram.AdminChatID != 0 {
		logSvc.SetTelegramTarget(cfg.Telegram.AdminChatID)
	}
	logSvc.Apply(logCfg)

	bus := eventbus.New()

	storeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCtx, storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: busyTimeout,
	})
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", cfg.Storage.Driver))

	fetchTimeout, err := config.ParseDurationOrDefault("source.fetch_timeout", cfg.Source.FetchTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	resolver, err := source.NewResolver(source.Config{
		URL:            cfg.Source.URL,
		Proxies:        cfg.Source.Proxies,
		AttemptTimeout: fetchTimeout,
	}, log.With(logx.String("comp", "source")))
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()
	cacheSvc := cache.New(cache.Config{
		RefreshSpec: cfg.Source.RefreshSpec,
		Timezone:    loc,
	}, resolver, store, bus, log.With(logx.String("comp", "cache")))

	ncfg, err := mapNotifyConfig(cfg, loc)
	if err != nil {
		return nil, err
	}
	notifSvc := notify.New(ncfg, cacheSvc, store, ad, log.With(logx.String("comp", "notify")))

	front := bot.New(bot.Config{
		AdminChatID: cfg.Telegram.AdminChatID,
		Timezone:    loc,
	}, ad, cacheSvc, store, resolver, log.With(logx.String("comp", "bot")))

	return &App{
		cfgPath:     cfgPath,
		cfgm:        cfgm,
		log:         log,
		logs:        logSvc,
		bus:         bus,
		store:       store,
		adapter:     ad,
		resolver:    resolver,
		cache:       cacheSvc,
		notif:       notifSvc,
		front:       front,
		adminChatID: cfg.Telegram.AdminChatID,
		alertAdmin:  cfg.Source.NotifyAdminOnFailure,
	}, nil
}

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		c := *cfg
		c.LoadEnv()
		return c.Validate()
	})

	if err := a.cache.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.GoRestart("bot.dispatch", a.front.Run)
	a.sup.GoRestart("notify.loop", a.notif.Run)
	a.startAdminAlerts()
	a.startConfigReload()
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.startWatchdog()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd ready notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd ready notified")
	}

	a.log.Info("app started")
	return nil
}

// startAdminAlerts forwards cache source events to the admin chat. The cache
// publishes one unreachable event per failed cycle, so the admin sees one
// message per failure, not one per attempt.
func (a *App) startAdminAlerts() {
	if !a.alertAdmin || a.adminChatID == 0 {
		return
	}
	events, unsub := a.bus.Subscribe(16)
	a.sup.Go0("admin.alerts", func(ctx context.Context) {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				var text string
				switch e.Type {
				case eventbus.TypeSourceUnreachable:
					text = fmt.Sprintf("🔴 Джерело графіків недоступне:\n%v", e.Data)
				case eventbus.TypeSourceRecovered:
					text = "🟢 Джерело графіків знову доступне."
				default:
					continue
				}
				_, err := a.adapter.SendText(ctx, kit.ChatTarget{ChatID: a.adminChatID}, text,
					&kit.SendOptions{DisablePreview: true})
				if err != nil {
					a.log.Warn("admin alert send failed", logx.Err(err))
				}
			}
		}
	})
}

func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				newCfg.LoadEnv()

				if newCfg.Telegram.AdminChatID != 0 {
					a.logs.SetTelegramTarget(newCfg.Telegram.AdminChatID)
				} else {
					a.logs.SetTelegramTarget(0)
				}
				a.logs.Apply(mapLogConfig(newCfg))

				if ncfg, err := mapNotifyConfig(newCfg, newCfg.Location()); err != nil {
					a.log.Warn("invalid notifications config; keeping previous", logx.Err(err))
				} else {
					a.notif.Apply(ncfg)
				}

				// Source, storage and telegram settings need a restart; say so
				// instead of silently ignoring the change.
				a.log.Info("config reloaded (source/storage/telegram changes need a restart)")
			}
		}
	})
}

// startWatchdog feeds the systemd watchdog when one is armed for the unit.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(ctx context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	// Bound each shutdown step so one stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		start := time.Now()
		if err := fn(stepCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("cache", 2*time.Second, a.cache.Stop)
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapNotifyConfig(cfg *config.Config, loc *time.Location) (notify.Config, error) {
	interval, err := config.ParseDurationOrDefault("notifications.check_interval", cfg.Notifications.CheckInterval, time.Minute)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Enabled:       cfg.Notifications.Enabled,
		CheckInterval: interval,
		LeadTimes:     cfg.Notifications.LeadTimesMinutes,
		RatePerSec:    cfg.Notifications.RatePerSec,
		Timezone:      loc,
	}, nil
}
