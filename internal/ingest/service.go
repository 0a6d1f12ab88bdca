// Package ingest turns incoming chat messages into registry operations and
// Portuguese confirmations. One goroutine drains the transport's update
// channel; each command is handled on its own bounded goroutine so a slow
// reply can't stall the queue.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"romabot/internal/clock"
	"romabot/internal/manifest"
	"romabot/internal/transport"
	"romabot/pkg/logx"
)

// Replier delivers one reply text. Satisfied by the notify service so replies
// share the outgoing rate budget with alerts.
type Replier interface {
	Send(ctx context.Context, to transport.ChatTarget, text string) error
}

type Config struct {
	HandleTimeout time.Duration // per-command budget, default 10s
	MaxClientLen  int           // default 64
}

func (c Config) withDefaults() Config {
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = 10 * time.Second
	}
	if c.MaxClientLen <= 0 {
		c.MaxClientLen = 64
	}
	return c
}

type Service struct {
	cfg     Config
	store   *manifest.Store
	replier Replier
	clk     clock.Clock
	log     logx.Logger

	// extraStatus contributes engine lines (sweep counters, delivery stats)
	// to /status; the registry counts and uptime are rendered here.
	extraStatus func() string
	startedAt   time.Time

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config, store *manifest.Store, replier Replier, clk clock.Clock, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		store:   store,
		replier: replier,
		clk:     clk,
		log:     log,
	}
}

// SetStatusExtra installs an optional provider for extra /status lines.
func (s *Service) SetStatusExtra(fn func() string) { s.extraStatus = fn }

func (s *Service) Start(ctx context.Context, in <-chan transport.Update) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.startedAt = s.clk.Now()
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case up, ok := <-in:
				if !ok {
					return
				}
				if up.Kind != transport.UpdateMessage || up.Message == nil {
					continue
				}
				msg := *up.Message
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					defer func() {
						if r := recover(); r != nil {
							s.log.Error("command handler panic",
								logx.Any("panic", r),
								logx.Int64("chat", msg.ChatID),
								logx.String("text", msg.Text))
						}
					}()
					hctx, cancel := context.WithTimeout(ctx, s.cfg.HandleTimeout)
					defer cancel()
					s.handle(hctx, msg)
				}()
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

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return
	}
	select {
	case <-finished:
	case <-ctx.Done():
		s.log.Warn("ingest stop: handlers still running", logx.Err(ctx.Err()))
	}
}

func (s *Service) handle(ctx context.Context, msg transport.Message) {
	cmd, args, ok := splitCommand(msg.Text)
	if !ok {
		return // plain chatter, not a command
	}
	to := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	switch cmd {
	case "romaneio":
		s.handleRegister(ctx, to, args)
	case "cancelar":
		s.handleCancel(ctx, to, args)
	case "listar":
		s.handleList(ctx, to)
	case "status":
		s.handleStatus(ctx, to)
	case "ajuda", "help", "start":
		s.reply(ctx, to, helpText)
	default:
		// Unknown commands are ignored: other bots share these groups.
	}
}

func (s *Service) handleRegister(ctx context.Context, to transport.ChatTarget, args []string) {
	if len(args) < 2 {
		s.reply(ctx, to, "Uso: /romaneio <cliente> <HH:MM>")
		return
	}
	client, err := normalizeClient(args[:len(args)-1], s.cfg.MaxClientLen)
	if err != nil {
		s.reply(ctx, to, "Nome de cliente inválido. Uso: /romaneio <cliente> <HH:MM>")
		return
	}
	now := s.clk.Now()
	deadline, err := parseDeadline(args[len(args)-1], now, s.clk.Location())
	if err != nil {
		s.reply(ctx, to, "Horário inválido. Use HH:MM, por exemplo: /romaneio "+client+" 17:30")
		return
	}

	rec := s.store.Insert(to.ChatID, client, deadline, now)
	s.log.Info("manifest registered",
		logx.Int64("chat", to.ChatID),
		logx.String("client", rec.Client),
		logx.Time("deadline", rec.Deadline))

	when := "às " + deadline.Format("15:04")
	if deadline.In(s.clk.Location()).Day() != now.In(s.clk.Location()).Day() {
		when = "amanhã " + when
	}
	s.reply(ctx, to, fmt.Sprintf("✅ Romaneio do cliente %s registrado. Saída %s.", rec.Client, when))
}

func (s *Service) handleCancel(ctx context.Context, to transport.ChatTarget, args []string) {
	if len(args) == 0 {
		s.reply(ctx, to, "Uso: /cancelar <cliente>")
		return
	}
	client, err := normalizeClient(args, s.cfg.MaxClientLen)
	if err != nil {
		s.reply(ctx, to, "Uso: /cancelar <cliente>")
		return
	}
	rec, found := s.store.Cancel(to.ChatID, client)
	if !found {
		s.reply(ctx, to, fmt.Sprintf("Nenhum romaneio ativo para o cliente %s.", client))
		return
	}
	s.log.Info("manifest cancelled", logx.Int64("chat", to.ChatID), logx.String("client", rec.Client))
	s.reply(ctx, to, fmt.Sprintf("✅ Romaneio do cliente %s cancelado.", rec.Client))
}

func (s *Service) handleList(ctx context.Context, to transport.ChatTarget) {
	recs := s.store.List(to.ChatID)
	if len(recs) == 0 {
		s.reply(ctx, to, "Nenhum romaneio registrado neste chat.")
		return
	}
	var b strings.Builder
	b.WriteString("📋 Romaneios:\n")
	for _, rec := range recs {
		state := "ativo"
		if rec.Status != manifest.StatusActive {
			state = "expirado"
		}
		fmt.Fprintf(&b, "• %s — saída às %s (%s)\n", rec.Client, rec.Deadline.In(s.clk.Location()).Format("15:04"), state)
	}
	s.reply(ctx, to, strings.TrimRight(b.String(), "\n"))
}

func (s *Service) handleStatus(ctx context.Context, to transport.ChatTarget) {
	active, expired := s.store.Counts()
	uptime := s.clk.Now().Sub(s.startedAt).Truncate(time.Second)

	var b strings.Builder
	b.WriteString("📊 Status\n")
	fmt.Fprintf(&b, "• Ativos: %d | Expirados: %d\n", active, expired)
	fmt.Fprintf(&b, "• No ar há: %s", uptime)
	if s.extraStatus != nil {
		if extra := strings.TrimSpace(s.extraStatus()); extra != "" {
			b.WriteString("\n")
			b.WriteString(extra)
		}
	}
	s.reply(ctx, to, b.String())
}

func (s *Service) reply(ctx context.Context, to transport.ChatTarget, text string) {
	if err := s.replier.Send(ctx, to, text); err != nil {
		s.log.Warn("reply failed", logx.Int64("chat", to.ChatID), logx.Err(err))
	}
}

const helpText = `🤖 Comandos:
/romaneio <cliente> <HH:MM> — registra a saída de um romaneio
/cancelar <cliente> — cancela o romaneio ativo do cliente
/listar — lista os romaneios deste chat
/status — estado do rastreador
/ajuda — esta mensagem`
