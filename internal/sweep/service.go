// Package sweep runs the periodic evaluation pass over all active manifests.
//
// One timer-driven goroutine owns the whole pass: snapshot the store, run
// tier evaluation per record, dispatch reminders, apply bookkeeping, then
// persist the registry once per tick. Ticks are single-flight by
// construction (the loop is sequential), which is what makes the
// strictly-tighter-tier rule safe without any cross-tick locking.
package sweep

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"romabot/internal/clock"
	"romabot/internal/manifest"
	"romabot/internal/transport"
	"romabot/pkg/logx"
)

// Dispatcher attempts delivery of one rendered text. Failures are logged by
// the sweep and never retried here.
type Dispatcher interface {
	Send(ctx context.Context, to transport.ChatTarget, text string) error
}

// Saver persists a registry snapshot. Nil disables persistence.
type Saver interface {
	Save(ctx context.Context, reg manifest.Registry) error
}

type Config struct {
	// Interval must stay well under a minute: tiers are minute-granular and
	// a cadence coarser than the tightest tier gap would skip windows.
	Interval        time.Duration // default 20s
	Tiers           []int         // default manifest.DefaultTiers
	MinSpacing      time.Duration // default 1m
	DispatchTimeout time.Duration // default 10s, bounds one stalled send
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 20 * time.Second
	}
	if len(c.Tiers) == 0 {
		c.Tiers = manifest.DefaultTiers
	}
	if c.MinSpacing <= 0 {
		c.MinSpacing = manifest.DefaultMinSpacing
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 10 * time.Second
	}
	return c
}

type Snapshot struct {
	Interval         time.Duration
	Ticks            uint64
	Alerts           uint64
	Expiries         uint64
	DispatchFailures uint64
	SaveFailures     uint64
	LastTick         time.Time
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	store *manifest.Store
	disp  Dispatcher
	saver Saver
	clk   clock.Clock
	log   logx.Logger

	stopCh chan struct{}
	done   chan struct{}

	ticks            atomic.Uint64
	alerts           atomic.Uint64
	expiries         atomic.Uint64
	dispatchFailures atomic.Uint64
	saveFailures     atomic.Uint64

	lastTickMu sync.Mutex
	lastTick   time.Time
}

func New(cfg Config, store *manifest.Store, disp Dispatcher, saver Saver, clk clock.Clock, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg.withDefaults(),
		store: store,
		disp:  disp,
		saver: saver,
		clk:   clk,
		log:   log,
	}
}

// Apply updates the cadence and ladder at runtime. The new interval takes
// effect on the next timer reset.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	interval := s.cfg.Interval
	s.mu.Unlock()

	s.log.Info("sweep started", logx.Duration("interval", interval))

	go func() {
		defer close(done)
		for {
			s.mu.Lock()
			d := s.cfg.Interval
			s.mu.Unlock()

			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-stopCh:
				timer.Stop()
				return
			case <-timer.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	stopCh, done := s.stopCh, s.done
	s.stopCh, s.done = nil, nil
	s.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	select {
	case <-done:
		s.log.Info("sweep stopped")
	case <-ctx.Done():
		s.log.Warn("sweep stop cancelled", logx.Err(ctx.Err()))
	}
}

// tick runs one full evaluation pass. A dispatch failure for one record never
// aborts the rest, and its bookkeeping still advances: it is better to miss
// one severity step than to re-spam a tier when the transport flakes.
func (s *Service) tick(ctx context.Context) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	now := s.clk.Now()
	entries := s.store.SnapshotActive()

	mutated := false
	for _, e := range entries {
		act := manifest.Evaluate(e.Record, now, cfg.Tiers, cfg.MinSpacing)
		switch act.Kind {
		case manifest.ActionAlert:
			text := manifest.RenderAlert(e.Record, act.Remaining)
			s.dispatch(ctx, cfg, e.ChatID, text)
			s.store.ApplyMutation(e.Record.ID, act.Tier, "", now)
			s.alerts.Add(1)
			mutated = true
			s.log.Debug("alert fired",
				logx.Int64("chat", e.ChatID),
				logx.String("client", e.Record.Client),
				logx.Int("tier", act.Tier),
				logx.Int("remaining_min", act.Remaining))

		case manifest.ActionExpire:
			// Flip status before sending: Expired is terminal, so even a
			// cancel racing this tick can't cause a second overdue notice.
			if s.store.ApplyMutation(e.Record.ID, manifest.TierNone, manifest.StatusExpired, now) {
				s.dispatch(ctx, cfg, e.ChatID, manifest.RenderOverdue(e.Record))
				s.expiries.Add(1)
				mutated = true
				s.log.Info("manifest expired",
					logx.Int64("chat", e.ChatID),
					logx.String("client", e.Record.Client))
			}
		}
	}

	if mutated && s.saver != nil {
		if err := s.saver.Save(ctx, s.store.Export()); err != nil {
			// Memory stays authoritative; the next mutating tick retries the
			// full snapshot.
			s.saveFailures.Add(1)
			s.log.Warn("registry save failed", logx.Err(err))
		}
	}

	s.ticks.Add(1)
	s.lastTickMu.Lock()
	s.lastTick = now
	s.lastTickMu.Unlock()
}

func (s *Service) dispatch(ctx context.Context, cfg Config, chatID int64, text string) {
	dctx, cancel := context.WithTimeout(ctx, cfg.DispatchTimeout)
	defer cancel()
	if err := s.disp.Send(dctx, transport.ChatTarget{ChatID: chatID}, text); err != nil {
		s.dispatchFailures.Add(1)
		s.log.Warn("dispatch failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	interval := s.cfg.Interval
	s.mu.Unlock()
	s.lastTickMu.Lock()
	last := s.lastTick
	s.lastTickMu.Unlock()
	return Snapshot{
		Interval:         interval,
		Ticks:            s.ticks.Load(),
		Alerts:           s.alerts.Load(),
		Expiries:         s.expiries.Load(),
		DispatchFailures: s.dispatchFailures.Load(),
		SaveFailures:     s.saveFailures.Load(),
		LastTick:         last,
	}
}
