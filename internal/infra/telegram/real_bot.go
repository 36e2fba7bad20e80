package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"compat-assistant/internal/config"
	"compat-assistant/internal/domain"
	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/domain/ports/repository"
	"compat-assistant/internal/usecase"
)

const outboxSize = 256

// botAPI is the part of tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// binding ties a Telegram chat to the session it is talking in.
type binding struct {
	sessionID   string
	unsubscribe func()
}

// Bot is a Telegram front end for the conversation engine. Each chat talks
// in one session at a time; /new starts another.
type Bot struct {
	api      botAPI
	chat     usecase.ChatUseCase
	stats    usecase.StatsUseCase
	bindings repository.ChatBindingRepository
	adminIDs map[int64]struct{}
	workers  int
	log      *zerolog.Logger

	mu    sync.Mutex
	chats map[int64]*binding

	// outbox decouples engine callbacks from Telegram round trips.
	outbox chan tgbotapi.Chattable
}

func NewBot(cfg config.TelegramConfig, chat usecase.ChatUseCase, stats usecase.StatsUseCase, bindings repository.ChatBindingRepository, logger *zerolog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram.token is empty")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newBot(api, cfg, chat, stats, bindings, logger), nil
}

func newBot(api botAPI, cfg config.TelegramConfig, chat usecase.ChatUseCase, stats usecase.StatsUseCase, bindings repository.ChatBindingRepository, logger *zerolog.Logger) *Bot {
	botLog := logger.With().Str("component", "TelegramBot").Logger()
	admins := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = struct{}{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Bot{
		api:      api,
		chat:     chat,
		stats:    stats,
		bindings: bindings,
		adminIDs: admins,
		workers:  workers,
		log:      &botLog,
		chats:    make(map[int64]*binding),
		outbox:   make(chan tgbotapi.Chattable, outboxSize),
	}
}

// Run polls for updates until ctx is cancelled. Updates are handled by a
// fixed set of workers; replies go out through a single sender.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.log.Info().Int("workers", b.workers).Msg("Starting telegram polling")

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case update, ok := <-updates:
					if !ok {
						return
					}
					if err := b.handleUpdate(ctx, update); err != nil {
						b.log.Error().Err(err).Int("worker", workerID).Msg("error handling update")
					}
				}
			}
		}(i + 1)
	}

	senderDone := make(chan struct{})
	go func() {
		defer close(senderDone)
		b.sendLoop(ctx)
	}()

	<-ctx.Done()
	b.api.StopReceivingUpdates()
	wg.Wait()
	<-senderDone
	b.unbindAll()
	b.log.Info().Msg("Stopping telegram polling")
	return nil
}

func (b *Bot) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-b.outbox:
			if _, err := b.api.Send(c); err != nil {
				b.log.Warn().Err(err).Msg("telegram send failed")
			}
		}
	}
}

// enqueue never blocks; engine callbacks call it.
func (b *Bot) enqueue(c tgbotapi.Chattable) {
	select {
	case b.outbox <- c:
	default:
		b.log.Warn().Msg("telegram outbox full, dropping message")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.enqueue(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}
	if msg.IsCommand() {
		return b.handleCommand(ctx, msg)
	}
	return b.submit(ctx, msg.Chat.ID, msg.Text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start", "new":
		_, err := b.startSession(ctx, chatID, strings.TrimSpace(msg.CommandArguments()))
		return err
	case "help":
		b.reply(chatID, helpText())
		return nil
	case "profile":
		p, err := b.chat.GetProfile(ctx)
		if err != nil {
			return err
		}
		b.reply(chatID, formatProfile(p))
		return nil
	case "stats":
		if !b.isAdmin(msg) {
			b.reply(chatID, "You are not authorized to use this command.")
			return nil
		}
		o, err := b.stats.Totals(ctx)
		if err != nil {
			b.reply(chatID, "Failed to get stats. Please try again later.")
			return err
		}
		b.reply(chatID, formatStats(o))
		return nil
	default:
		b.reply(chatID, "Unknown command. Send /help for the list of commands.")
		return nil
	}
}

func (b *Bot) isAdmin(msg *tgbotapi.Message) bool {
	if msg.From == nil {
		return false
	}
	_, ok := b.adminIDs[msg.From.ID]
	return ok
}

// startSession opens a new session for the chat and replaces any previous
// binding. The greeting arrives through the initial history.
func (b *Bot) startSession(ctx context.Context, chatID int64, title string) (string, error) {
	session, err := b.chat.CreateSession(ctx, title)
	if err != nil {
		b.reply(chatID, "Could not start a conversation. Please try again later.")
		return "", err
	}
	if err := b.bind(ctx, chatID, session.ID); err != nil {
		return "", err
	}
	if err := b.bindings.SetBinding(ctx, chatID, session.ID); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to store chat binding")
	}

	for _, m := range session.Messages {
		if m.Sender == model.SenderAssistant {
			b.reply(chatID, formatReply(m))
		}
	}
	b.log.Info().Int64("chat_id", chatID).Str("session_id", session.ID).Msg("telegram chat bound to session")
	return session.ID, nil
}

// bind subscribes the chat to sessionID, replacing any previous binding.
func (b *Bot) bind(ctx context.Context, chatID int64, sessionID string) error {
	unsubscribe, err := b.chat.Subscribe(ctx, sessionID, b.listener(chatID))
	if err != nil {
		return err
	}
	b.mu.Lock()
	prev := b.chats[chatID]
	b.chats[chatID] = &binding{sessionID: sessionID, unsubscribe: unsubscribe}
	b.mu.Unlock()
	if prev != nil {
		prev.unsubscribe()
	}
	return nil
}

// sessionFor returns the chat's session, resuming a stored binding or
// starting a new session when there is none.
func (b *Bot) sessionFor(ctx context.Context, chatID int64) (string, error) {
	b.mu.Lock()
	bd := b.chats[chatID]
	b.mu.Unlock()
	if bd != nil {
		return bd.sessionID, nil
	}

	sessionID, err := b.bindings.GetBinding(ctx, chatID)
	switch {
	case err == nil:
		if err := b.bind(ctx, chatID, sessionID); err == nil {
			return sessionID, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
	case !errors.Is(err, domain.ErrNotFound):
		return "", err
	}
	return b.startSession(ctx, chatID, "")
}

func (b *Bot) submit(ctx context.Context, chatID int64, text string) error {
	sessionID, err := b.sessionFor(ctx, chatID)
	if err != nil {
		return err
	}
	res, err := b.chat.Submit(ctx, sessionID, text)
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		b.reply(chatID, "You are sending messages too fast. Please wait a moment.")
		return nil
	case errors.Is(err, domain.ErrClosed):
		b.reply(chatID, "The assistant is restarting. Please try again shortly.")
		return nil
	case err != nil:
		return err
	}
	if !res.Accepted {
		b.reply(chatID, "Please type a question about your operating system, database or web server.")
	}
	return nil
}

// listener forwards assistant messages and the typing indicator. User
// messages are already on the user's screen.
func (b *Bot) listener(chatID int64) usecase.Listener {
	return func(ev model.SessionEvent) {
		switch ev.Type {
		case model.EventComposing:
			if ev.Composing {
				b.enqueue(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
			}
		case model.EventMessage:
			if ev.Message != nil && ev.Message.Sender == model.SenderAssistant {
				b.reply(chatID, formatReply(*ev.Message))
			}
		}
	}
}

func (b *Bot) unbindAll() {
	b.mu.Lock()
	chats := b.chats
	b.chats = make(map[int64]*binding)
	b.mu.Unlock()
	for _, bd := range chats {
		bd.unsubscribe()
	}
}
