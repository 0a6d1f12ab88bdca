// Package notify delivers rendered reminder texts to a chat transport.
//
// Delivery is strictly best-effort and single-attempt: the tier ladder in the
// sweep already guarantees each alert is decided exactly once, and retrying a
// flaky transport from here would turn one missed severity step into spam.
// Callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"romabot/internal/transport"
	"romabot/pkg/logx"
)

var ErrNoAdapter = errors.New("notify: no transport adapter")

type Config struct {
	RatePerSec int // token bucket rate+burst, default 3
}

type HistoryItem struct {
	At     time.Time
	ChatID int64
	Text   string
	Error  string
}

type Stats struct {
	Sent    uint64
	Failed  uint64
	History []HistoryItem
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter transport.Adapter
	log     logx.Logger

	sent   atomic.Uint64
	failed atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log}
	s.Apply(cfg)
	return s
}

// Apply updates pacing at runtime (config hot reload).
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	s.mu.Lock()
	s.cfg = cfg
	// Burst = rate per sec, so a sweep firing several chats at once isn't
	// serialized a full second apart.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Send delivers one text to one chat. It blocks for rate limiting (honoring
// ctx) and makes exactly one transport attempt.
func (s *Service) Send(ctx context.Context, to transport.ChatTarget, text string) error {
	s.mu.Lock()
	lim := s.limiter
	ad := s.adapter
	s.mu.Unlock()

	if ad == nil {
		return ErrNoAdapter
	}
	if err := lim.Wait(ctx); err != nil {
		return err
	}

	_, err := ad.SendText(ctx, to, text, &transport.SendOptions{DisablePreview: true})

	item := HistoryItem{At: time.Now(), ChatID: to.ChatID, Text: text}
	if err != nil {
		s.failed.Add(1)
		item.Error = err.Error()
	} else {
		s.sent.Add(1)
	}
	s.appendHistory(item)
	return err
}

func (s *Service) Snapshot() Stats {
	s.hmu.Lock()
	hist := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return Stats{
		Sent:    s.sent.Load(),
		Failed:  s.failed.Load(),
		History: hist,
	}
}

func (s *Service) appendHistory(item HistoryItem) {
	const keep = 200
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > keep {
		s.history = s.history[len(s.history)-keep:]
	}
	s.hmu.Unlock()
}
