package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/services"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/session"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var now = time.Now

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Text == "" {
		return
	}

	userID := msg.From.ID
	chatID := msg.Chat.ID
	isAdmin := b.isAdmin(userID)
	text := strings.TrimSpace(msg.Text)

	if msg.IsCommand() && msg.Command() == "start" {
		b.handleStart(ctx, msg)
		return
	}

	state, err := b.sessions.Get(ctx, userID)
	if err != nil {
		b.fail(chatID, err, "failed to load session")
		return
	}

	if !state.Active() {
		b.showMainMenu(ctx, chatID, isAdmin, nil)
		return
	}

	if text == cancelButton {
		b.clearSession(ctx, userID)
		b.send(chatID, textActionCancelled, removeReplyKeyboard())
		b.showMainMenu(ctx, chatID, isAdmin, nil)
		return
	}

	// Every remaining step belongs to an admin flow.
	if !isAdmin {
		b.clearSession(ctx, userID)
		b.showMainMenu(ctx, chatID, false, nil)
		return
	}

	switch state.Step {
	case session.StepConfigText:
		b.handleConfigText(ctx, chatID, userID, text, state)
	case session.StepConfigEditName:
		b.handleConfigEditName(ctx, chatID, userID, text, state)
	case session.StepConfigEditText:
		b.handleConfigEditText(ctx, chatID, userID, text, state)
	case session.StepCollectionAmount:
		b.handleCollectionAmount(ctx, chatID, userID, text)
	case session.StepCollectionDescription:
		b.handleCollectionDescription(ctx, chatID, userID, text, state)
	case session.StepCollectionPaymentDetails:
		b.handleCollectionPaymentDetails(ctx, chatID, userID, text, state)
	case session.StepBroadcastMessage:
		b.handleBroadcast(ctx, chatID, userID, text)
	default:
		b.send(chatID, "Please choose an option from the list above.", nil)
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	from := msg.From
	isAdmin := b.isAdmin(from.ID)

	_, created, err := b.users.GetOrCreate(ctx, from.ID, from.UserName, from.FirstName, isAdmin)
	if err != nil {
		b.fail(msg.Chat.ID, err, "failed to register user")
		return
	}

	if created {
		b.logger.Info("user registered", zap.Int64("user_id", from.ID), zap.String("username", from.UserName))
		if !isAdmin && b.cfg.AdminID != 0 {
			info := userLabel(from)
			if from.UserName != "" {
				info += " (@" + from.UserName + ")"
			}
			b.send(b.cfg.AdminID, fmt.Sprintf("👤 New user: %s\nID: %d", info, from.ID), nil)
		}
	}

	b.showMainMenu(ctx, msg.Chat.ID, isAdmin, nil)
}

// showMainMenu edits the given menu message in place, or sends a fresh one
// when there is nothing to edit.
func (b *Bot) showMainMenu(ctx context.Context, chatID int64, isAdmin bool, edit *tgbotapi.Message) {
	greeting := "👋 Main menu"
	var active *models.Collection
	if isAdmin {
		greeting = "👋 Admin panel"
		c, _, err := b.collections.Active(ctx)
		if err != nil && !errors.Is(err, services.ErrNoActiveCollection) {
			b.logger.Warn("failed to load active collection", zap.Error(err))
		}
		active = c
	}

	markup := mainMenu(isAdmin, active)
	if edit != nil {
		b.edit(chatID, edit.MessageID, greeting, markup)
		return
	}
	b.send(chatID, greeting, markup)
}

// configName takes the name from whatever follows the first '#' in the
// text, or falls back to a timestamp.
func configName(text string, at time.Time) string {
	if i := strings.IndexByte(text, '#'); i >= 0 {
		if name := strings.TrimSpace(text[i+1:]); name != "" {
			return name
		}
	}
	return "Config " + at.Format("2006-01-02 15:04")
}

func (b *Bot) handleConfigText(ctx context.Context, chatID, adminID int64, text string, state session.State) {
	if state.SelectedUserID == 0 {
		b.restart(ctx, chatID, adminID)
		return
	}

	name := configName(text, now())
	if _, err := b.configs.Add(ctx, state.SelectedUserID, name, text); err != nil {
		b.clearSession(ctx, adminID)
		b.fail(chatID, err, "failed to add config")
		return
	}
	b.clearSession(ctx, adminID)

	owner := fmt.Sprint(state.SelectedUserID)
	if u, err := b.users.Get(ctx, state.SelectedUserID); err == nil {
		owner = u.DisplayName()
	}

	b.send(chatID, fmt.Sprintf("✅ Config \"%s\" added for %s.", name, owner), removeReplyKeyboard())
	b.showMainMenu(ctx, chatID, true, nil)
	b.send(state.SelectedUserID, "📢 A new config was added for you: "+name, mainMenuUser())
}

func (b *Bot) handleConfigEditName(ctx context.Context, chatID, adminID int64, text string, state session.State) {
	if state.ConfigID == 0 || text == "" {
		b.restart(ctx, chatID, adminID)
		return
	}

	cfg, err := b.configs.Update(ctx, state.ConfigID, text, nil)
	b.clearSession(ctx, adminID)
	if errors.Is(err, services.ErrConfigNotFound) {
		b.send(chatID, "Config not found.", removeReplyKeyboard())
		b.showMainMenu(ctx, chatID, true, nil)
		return
	}
	if err != nil {
		b.fail(chatID, err, "failed to rename config")
		return
	}

	b.send(chatID, fmt.Sprintf("✅ Config renamed to \"%s\".", cfg.Name), removeReplyKeyboard())
	b.send(chatID, fmt.Sprintf("📄 %s\n\n%s", cfg.Name, cfg.ConfigText), configActions(cfg.ID, true, cfg.UserID))
}

func (b *Bot) handleConfigEditText(ctx context.Context, chatID, adminID int64, text string, state session.State) {
	if state.ConfigID == 0 {
		b.restart(ctx, chatID, adminID)
		return
	}

	cfg, err := b.configs.Update(ctx, state.ConfigID, "", &text)
	b.clearSession(ctx, adminID)
	if errors.Is(err, services.ErrConfigNotFound) {
		b.send(chatID, "Config not found.", removeReplyKeyboard())
		b.showMainMenu(ctx, chatID, true, nil)
		return
	}
	if err != nil {
		b.fail(chatID, err, "failed to update config text")
		return
	}

	b.send(chatID, "✅ Config text updated.", removeReplyKeyboard())
	b.send(chatID, fmt.Sprintf("📄 %s\n\n%s", cfg.Name, cfg.ConfigText), configActions(cfg.ID, true, cfg.UserID))
}

// parseAmount accepts both "1500.50" and "1500,50".
func parseAmount(text string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(text), ",", "."))
	if err != nil {
		return decimal.Zero, err
	}
	if err := services.ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func (b *Bot) handleCollectionAmount(ctx context.Context, chatID, adminID int64, text string) {
	amount, err := parseAmount(text)
	if err != nil {
		b.send(chatID, "❌ Enter a valid amount (for example 1500 or 1500.50):", cancelReplyKeyboard())
		return
	}

	b.setSession(ctx, adminID, session.State{Step: session.StepCollectionDescription, Amount: amount})
	b.send(chatID, "📝 Enter a description (what the money is for):", cancelReplyKeyboard())
}

func (b *Bot) handleCollectionDescription(ctx context.Context, chatID, adminID int64, text string, state session.State) {
	state.Step = session.StepCollectionPaymentDetails
	state.Description = text
	b.setSession(ctx, adminID, state)
	b.send(chatID, "💳 Enter the payment details:", cancelReplyKeyboard())
}

func (b *Bot) handleCollectionPaymentDetails(ctx context.Context, chatID, adminID int64, text string, state session.State) {
	if !state.Amount.IsPositive() || state.Description == "" {
		b.restart(ctx, chatID, adminID)
		return
	}

	out, err := b.collections.CreateCollection(ctx, state.Amount, state.Description, text)
	b.clearSession(ctx, adminID)
	switch {
	case errors.Is(err, services.ErrCollectionAlreadyActive):
		b.send(chatID, "A collection is already active. Finish it before starting a new one.", removeReplyKeyboard())
		b.showMainMenu(ctx, chatID, true, nil)
		return
	case err != nil:
		b.fail(chatID, err, "failed to create collection")
		return
	}

	invited := 0
	for _, o := range out.Obligations {
		if o.Status == models.ParticipantPending {
			invited++
		}
	}

	reply := fmt.Sprintf("✅ Collection created!\n\n💰 Amount: %s\n📝 Purpose: %s\n\n📢 Invited: %d",
		money(out.Collection.TotalAmount), out.Collection.Description, invited)
	if out.Delivery.Failed > 0 {
		reply += fmt.Sprintf(" (not delivered: %d)", out.Delivery.Failed)
	}
	reply += "\n\nThe split is calculated automatically once everyone answers, or press \"Finish collection\" to do it now."
	b.send(chatID, reply, removeReplyKeyboard())
	b.showMainMenu(ctx, chatID, true, nil)
}

func (b *Bot) handleBroadcast(ctx context.Context, chatID, adminID int64, text string) {
	users, err := b.users.ListExcept(ctx, adminID)
	b.clearSession(ctx, adminID)
	if err != nil {
		b.fail(chatID, err, "failed to list users")
		return
	}
	if len(users) == 0 {
		b.send(chatID, "There is nobody to notify.", removeReplyKeyboard())
		b.showMainMenu(ctx, chatID, true, nil)
		return
	}

	sent, failed := 0, 0
	for _, u := range users {
		if _, err := b.api.Send(tgbotapi.NewMessage(u.TelegramID, truncate(text))); err != nil {
			b.logger.Warn("broadcast delivery failed", zap.Int64("user_id", u.TelegramID), zap.Error(err))
			failed++
			continue
		}
		sent++
	}

	result := fmt.Sprintf("Message sent to %d users.", sent)
	if failed > 0 {
		result += fmt.Sprintf(" Not delivered: %d.", failed)
	}
	b.send(chatID, result, removeReplyKeyboard())
	b.showMainMenu(ctx, chatID, true, nil)
}

// restart drops a prompt chain whose saved state is incomplete.
func (b *Bot) restart(ctx context.Context, chatID, userID int64) {
	b.clearSession(ctx, userID)
	b.send(chatID, "❌ Something is missing. Please start again.", removeReplyKeyboard())
	b.showMainMenu(ctx, chatID, b.isAdmin(userID), nil)
}
