// Package bot is the Telegram front end: menus, prompts and the buttons
// participants use to answer a collection.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/session"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxMessageLength = 4096

	DefaultMaxConcurrentUpdates = 32
)

type Config struct {
	AdminID         int64
	InstructionText string
	// MaxConcurrentUpdates caps how many updates are handled at once.
	// Zero means DefaultMaxConcurrentUpdates.
	MaxConcurrentUpdates int
}

type Bot struct {
	api         Sender
	collections CollectionEngine
	users       UserDirectory
	configs     ConfigStore
	sessions    session.Store
	cfg         Config
	logger      *zap.Logger
	inflight    *semaphore.Weighted
}

func New(api Sender, collections CollectionEngine, users UserDirectory, configs ConfigStore, sessions session.Store, cfg Config, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrentUpdates <= 0 {
		cfg.MaxConcurrentUpdates = DefaultMaxConcurrentUpdates
	}
	return &Bot{
		api:         api,
		collections: collections,
		users:       users,
		configs:     configs,
		sessions:    sessions,
		cfg:         cfg,
		logger:      logger,
		inflight:    semaphore.NewWeighted(int64(cfg.MaxConcurrentUpdates)),
	}
}

// Run handles updates until ctx is cancelled or the channel closes. Every
// update gets its own goroutine, at most MaxConcurrentUpdates at a time;
// when all slots are busy Run stops reading updates until one frees up.
// Run waits for in-flight ones before returning.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := b.inflight.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer b.inflight.Release(1)
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling update",
				zap.Int("update_id", update.UpdateID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.cfg.AdminID != 0 && userID == b.cfg.AdminID
}

func (b *Bot) send(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, truncate(text))
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// edit replaces a menu message in place. Telegram refuses edits of old or
// unchanged messages; those failures are only logged.
func (b *Bot) edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, truncate(text))
	cfg.ReplyMarkup = markup
	if _, err := b.api.Send(cfg); err != nil {
		b.logger.Warn("edit failed",
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID),
			zap.Error(err),
		)
	}
}

func (b *Bot) reply(msg *tgbotapi.Message, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if msg == nil {
		return
	}
	b.edit(msg.Chat.ID, msg.MessageID, text, markup)
}

func (b *Bot) fail(chatID int64, err error, what string) {
	b.logger.Error(what, zap.Int64("chat_id", chatID), zap.Error(err))
	b.send(chatID, textSomethingWentWrong, nil)
}

func truncate(text string) string {
	r := []rune(text)
	if len(r) <= maxMessageLength {
		return text
	}
	return string(r[:maxMessageLength])
}

func userLabel(u *tgbotapi.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.UserName != "" {
		return u.UserName
	}
	return fmt.Sprint(u.ID)
}
