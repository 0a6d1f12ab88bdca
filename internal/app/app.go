// Package app assembles the bot: config, logging, transport, registry,
// persistence, the sweep engine and command ingestion, plus the config file
// watcher and the nightly prune job.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"romabot/internal/clock"
	"romabot/internal/config"
	"romabot/internal/ingest"
	"romabot/internal/manifest"
	"romabot/internal/notify"
	"romabot/internal/storage"
	"romabot/internal/sweep"
	"romabot/internal/transport"
	"romabot/internal/transport/telegram"
	"romabot/pkg/logx"
)

type App struct {
	log    logx.Logger
	logSvc *logx.Service

	cfgMgr *config.Manager
	loc    *time.Location
	clk    clock.Clock

	store    *manifest.Store
	persist  storage.Store
	adapter  *telegram.Adapter
	notifier *notify.Service
	sweeper  *sweep.Service
	ingestor *ingest.Service
	pruner   *cron.Cron

	retention time.Duration

	mu          sync.Mutex
	updates     chan transport.Update
	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup
	cfgSub      chan *config.Config
	started     bool
}

func New(cfgPath string) (*App, error) {
	cfgMgr := config.NewManager(cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, errors.New("telegram.token is required")
	}

	set, err := resolveSettings(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	cfgMgr.SetLogger(log.With(logx.String("comp", "config")))

	clk := clock.System(set.loc)

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: set.pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}

	store := manifest.NewStore()

	persist, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: set.storageBusy,
	}, set.loc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	if persist != nil {
		lctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		reg, err := persist.Load(lctx)
		cancel()
		if err != nil {
			_ = persist.Close()
			_ = logSvc.Close()
			return nil, fmt.Errorf("storage load: %w", err)
		}
		store.ReplaceAll(reg)
		active, expired := store.Counts()
		log.Info("registry restored", logx.Int("active", active), logx.Int("expired", expired))

		// Write-through for command-driven mutations. Sweep mutations are
		// saved by the sweep itself, batched per tick.
		saveLog := log.With(logx.String("comp", "storage"))
		store.SetOnChange(func(reg manifest.Registry) {
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := persist.Save(sctx, reg); err != nil {
				saveLog.Warn("write-through save failed", logx.Err(err))
			}
		})
	}

	notifier := notify.New(set.notify, adapter, log.With(logx.String("comp", "notify")))

	var saver sweep.Saver
	if persist != nil {
		saver = persist
	}
	sweeper := sweep.New(set.sweep, store, notifier, saver, clk, log.With(logx.String("comp", "sweep")))

	ingestor := ingest.New(ingest.Config{}, store, notifier, clk, log.With(logx.String("comp", "ingest")))

	a := &App{
		log:       log,
		logSvc:    logSvc,
		cfgMgr:    cfgMgr,
		loc:       set.loc,
		clk:       clk,
		store:     store,
		persist:   persist,
		adapter:   adapter,
		notifier:  notifier,
		sweeper:   sweeper,
		ingestor:  ingestor,
		retention: set.retention,
	}
	ingestor.SetStatusExtra(a.statusExtra)

	pruner := cron.New(cron.WithLocation(set.loc))
	if _, err := pruner.AddFunc(set.pruneSchedule, a.runPrune); err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("tracker.prune_schedule: %w", err)
	}
	a.pruner = pruner

	cfgMgr.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return errors.New("telegram.token is required")
		}
		_, err := resolveSettings(cfg)
		return err
	})

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	a.updates = make(chan transport.Update, 128)
	updates := a.updates
	a.mu.Unlock()

	if err := a.adapter.Start(ctx, updates); err != nil {
		return fmt.Errorf("telegram start: %w", err)
	}
	a.ingestor.Start(ctx, updates)
	a.sweeper.Start(ctx)
	a.pruner.Start()

	// Config watch lives on its own context so Stop controls teardown order.
	wctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.watchCancel = cancel
	a.cfgSub = a.cfgMgr.Subscribe(1)
	sub := a.cfgSub
	a.mu.Unlock()

	a.watchWG.Add(2)
	go func() {
		defer a.watchWG.Done()
		_ = a.cfgMgr.Watch(wctx)
	}()
	go func() {
		defer a.watchWG.Done()
		for {
			select {
			case <-wctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	}()

	a.log.Info("romabot started",
		logx.String("timezone", a.loc.String()),
		logx.Bool("persistence", a.persist != nil))
	return nil
}

// applyReload pushes a validated config into the running services. Transport
// credentials, storage driver and prune schedule stay fixed until restart.
func (a *App) applyReload(cfg *config.Config) {
	set, err := resolveSettings(cfg)
	if err != nil {
		// Validator already vetted it; losing this race is not fatal.
		a.log.Warn("reloaded config no longer resolves", logx.Err(err))
		return
	}

	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	a.sweeper.Apply(set.sweep)
	a.notifier.Apply(set.notify)

	a.mu.Lock()
	a.retention = set.retention
	a.mu.Unlock()

	a.log.Info("runtime config applied",
		logx.Duration("sweep_interval", set.sweep.Interval),
		logx.Int("tiers", len(set.sweep.Tiers)))
}

func (a *App) runPrune() {
	a.mu.Lock()
	retention := a.retention
	a.mu.Unlock()

	cutoff := a.clk.Now().Add(-retention)
	if removed := a.store.Prune(cutoff); removed > 0 {
		a.log.Info("expired manifests pruned", logx.Int("removed", removed))
	}
}

func (a *App) statusExtra() string {
	ss := a.sweeper.Snapshot()
	ns := a.notifier.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "• Varreduras: %d (a cada %s)\n", ss.Ticks, ss.Interval)
	fmt.Fprintf(&b, "• Alertas: %d | Vencidos: %d\n", ss.Alerts, ss.Expiries)
	fmt.Fprintf(&b, "• Mensagens: %d enviadas, %d falhas", ns.Sent, ns.Failed)
	return b.String()
}

// Stop tears the bot down in reverse order: stop taking commands, stop the
// engine, stop the transport, then flush state to disk.
func (a *App) Stop(ctx context.Context) {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.started = false
	cancel := a.watchCancel
	sub := a.cfgSub
	a.watchCancel, a.cfgSub = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.watchWG.Wait()
	if sub != nil {
		a.cfgMgr.Unsubscribe(sub)
	}

	a.pruner.Stop()
	a.ingestor.Stop(ctx)
	a.sweeper.Stop(ctx)
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("telegram stop", logx.Err(err))
	}

	if a.persist != nil {
		// Detach write-through before the final save so there is exactly one
		// closing snapshot.
		a.store.SetOnChange(nil)
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.persist.Save(sctx, a.store.Export()); err != nil {
			a.log.Warn("final registry save failed", logx.Err(err))
		}
		scancel()
		if err := a.persist.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
	}

	a.log.Info("romabot stopped")
	_ = a.logSvc.Close()
}
