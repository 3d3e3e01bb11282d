// Package app wires configuration, logging, storage, transport, and the
// bot services into one lifecycle.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"creatorbot/internal/broadcast"
	"creatorbot/internal/config"
	"creatorbot/internal/digest"
	"creatorbot/internal/directory"
	"creatorbot/internal/eventbus"
	"creatorbot/internal/onboarding"
	rtsup "creatorbot/internal/runtime/supervisor"
	kit "creatorbot/internal/transport"
	telegram "creatorbot/internal/transport/telegram/adapter"
	"creatorbot/internal/transport/telegram/router"
	logx "creatorbot/pkg/logx"
)

// StopReason labels why the app is shutting down, for the final log line.
type StopReason string

const (
	StopSignal StopReason = "signal"
	StopError  StopReason = "error"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store directory.Store

	adapter kit.Adapter

	bcast *broadcast.Service
	onb   *onboarding.Service
	dig   *digest.Service
	rt    *router.Router

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

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

	// Bootstrap logging with the Telegram sink disabled, set the target,
	// then Apply() the real config so the sink never warns about a missing
	// target.
	baseLogCfg := mapLogConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if chatID := parseGroupLog(cfg.Telegram.GroupLog); chatID != 0 {
		logSvc.SetTelegramTarget(chatID)
	}
	logSvc.Apply(mapLogConfig(cfg))

	bus := eventbus.New()

	storeCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := directory.Open(storeCfg, log.With(logx.String("comp", "directory")))
	if err != nil {
		return nil, err
	}

	bcast := broadcast.New(mapBroadcastConfig(cfg), ad, store, bus, log.With(logx.String("comp", "broadcast")))

	rt := router.New(ad, cfg.Telegram.AdminUserIDs, log.With(logx.String("comp", "router")))

	digSvc := digest.New(mapDigestConfig(cfg), ad, store, log.With(logx.String("comp", "digest")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		bcast:   bcast,
		dig:     digSvc,
		rt:      rt,
		updates: make(chan kit.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	// Onboarding needs the app supervisor for its reminder timers, so it
	// is built here rather than in New.
	onbCfg, err := mapOnboardingConfig(cfg)
	if err != nil {
		return err
	}
	a.onb = onboarding.New(onbCfg, a.adapter, a.store, a.sup, a.bus, a.log.With(logx.String("comp", "onboarding")))

	a.registerRoutes()

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		return Validate(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.bcast.Start(a.sup.Context())
	if err := a.dig.Start(a.sup.Context()); err != nil {
		a.log.Warn("digest start failed", logx.Err(err))
	}

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.rt.DispatchLoop(c, a.updates)
	})

	// Event log for observability; components can also subscribe themselves.
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

	// Config hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
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
				a.applyConfig(newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes the tunable parts of a reloaded config into running
// components. Storage and telegram token changes need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	if chatID := parseGroupLog(cfg.Telegram.GroupLog); chatID != 0 {
		a.logs.SetTelegramTarget(chatID)
	} else {
		a.logs.SetTelegramTarget(0)
	}
	a.logs.Apply(mapLogConfig(cfg))

	a.rt.SetAdmins(cfg.Telegram.AdminUserIDs)
	a.bcast.Apply(mapBroadcastConfig(cfg))

	a.log.Info("config reloaded")
}

func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem > 0 && rem < max {
				max = rem
			}
		}
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
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
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("digest", 2*time.Second, func(c context.Context) error { a.dig.Stop(c); return nil })
	step("broadcast", 3*time.Second, func(c context.Context) error { a.bcast.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("directory", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// Validate rejects configs that would break running components on hot
// reload.
func Validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if cfg.Broadcast != nil {
		if cfg.Broadcast.Workers < 0 {
			return fmt.Errorf("broadcast.workers must be >= 0")
		}
		if cfg.Broadcast.QueueSize < 0 {
			return fmt.Errorf("broadcast.queue_size must be >= 0")
		}
		if cfg.Broadcast.RatePerSec < 0 {
			return fmt.Errorf("broadcast.rate_per_sec must be >= 0")
		}
		if cfg.Broadcast.ProgressEvery < 0 {
			return fmt.Errorf("broadcast.progress_every must be >= 0")
		}
	}
	if cfg.Onboarding != nil {
		if _, err := config.ParseDurationField("onboarding.reminder_delay", cfg.Onboarding.ReminderDelay); err != nil {
			return err
		}
	}
	if cfg.Digest != nil {
		if tz := strings.TrimSpace(cfg.Digest.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("digest.timezone: invalid %q: %w", tz, err)
			}
		}
	}
	if gl := strings.TrimSpace(cfg.Telegram.GroupLog); gl != "" {
		if _, err := strconv.ParseInt(gl, 10, 64); err != nil {
			return fmt.Errorf("telegram.group_log: not a chat id: %q", gl)
		}
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

func mapStorageConfig(cfg *config.Config) (directory.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return directory.Config{}, err
	}
	path := cfg.Storage.Path
	if strings.TrimSpace(path) == "" {
		path = "./creatorbot.db"
	}
	return directory.Config{Path: path, BusyTimeout: busy}, nil
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	if cfg.Broadcast == nil {
		return broadcast.Config{}
	}
	return broadcast.Config{
		Workers:       cfg.Broadcast.Workers,
		QueueSize:     cfg.Broadcast.QueueSize,
		RatePerSec:    cfg.Broadcast.RatePerSec,
		ProgressEvery: cfg.Broadcast.ProgressEvery,
	}
}

func mapOnboardingConfig(cfg *config.Config) (onboarding.Config, error) {
	out := onboarding.Config{
		ChannelID:         cfg.Telegram.ChannelID,
		ChannelInviteLink: cfg.Telegram.ChannelInviteLink,
	}
	if cfg.Onboarding == nil {
		return out, nil
	}
	delay, err := config.ParseDurationOrDefault("onboarding.reminder_delay", cfg.Onboarding.ReminderDelay, 60*time.Second)
	if err != nil {
		return onboarding.Config{}, err
	}
	out.ReminderDelay = delay
	out.InviteImageURL = cfg.Onboarding.InviteImageURL
	return out, nil
}

func mapDigestConfig(cfg *config.Config) digest.Config {
	if cfg.Digest == nil {
		return digest.Config{}
	}
	chatID := cfg.Digest.ChatID
	if chatID == 0 && len(cfg.Telegram.AdminUserIDs) > 0 {
		chatID = cfg.Telegram.AdminUserIDs[0]
	}
	return digest.Config{
		Enabled:  cfg.Digest.Enabled,
		Spec:     cfg.Digest.Spec,
		ChatID:   chatID,
		Timezone: cfg.Digest.Timezone,
	}
}

func parseGroupLog(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
