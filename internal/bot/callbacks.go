package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/lifecycle"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/services"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/session"
	"go.uber.org/zap"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.Data == "" {
		return
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.logger.Warn("answer callback failed", zap.String("callback_id", q.ID), zap.Error(err))
	}

	userID := q.From.ID
	isAdmin := b.isAdmin(userID)
	b.logger.Debug("callback", zap.Int64("user_id", userID), zap.String("data", q.Data))

	if q.Data == cbCancel {
		b.clearSession(ctx, userID)
		b.send(q.Message.Chat.ID, textActionCancelled, removeReplyKeyboard())
		b.showMainMenu(ctx, q.Message.Chat.ID, isAdmin, q.Message)
		return
	}

	parts := strings.Split(q.Data, ":")
	switch {
	case parts[0] == "user":
		b.handleUserCallback(ctx, q.Message, userID, parts)
	case parts[0] == "admin" && isAdmin:
		b.handleAdminCallback(ctx, q.Message, userID, parts)
	case parts[0] == "config":
		b.handleConfigCallback(ctx, q.Message, userID, isAdmin, parts)
	case parts[0] == "collection":
		b.handleCollectionCallback(ctx, q.Message, userID, parts)
	case parts[0] == cbSelectUser && isAdmin:
		b.handleUserSelection(ctx, q.Message, userID, parts)
	}
}

func (b *Bot) handleUserCallback(ctx context.Context, msg *tgbotapi.Message, userID int64, parts []string) {
	if len(parts) < 2 {
		return
	}

	switch parts[1] {
	case "menu":
		b.showMainMenu(ctx, msg.Chat.ID, false, msg)

	case "configs":
		configs, err := b.configs.ListByUser(ctx, userID)
		if err != nil {
			b.fail(msg.Chat.ID, err, "failed to list configs")
			return
		}
		if len(configs) == 0 {
			b.reply(msg, "You have no configs yet.", backToMenu(false))
			return
		}
		b.reply(msg, "Your configs:", configList(configs, false, 0))

	case "instruction":
		text := strings.TrimSpace(b.cfg.InstructionText)
		if text == "" {
			text = textInstructionMissing
		}
		b.reply(msg, text, backToMenu(false))
	}
}

func (b *Bot) handleAdminCallback(ctx context.Context, msg *tgbotapi.Message, adminID int64, parts []string) {
	if len(parts) < 2 {
		return
	}
	chatID := msg.Chat.ID

	var targetID int64
	if len(parts) >= 3 {
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return
		}
		targetID = id
	}

	switch parts[1] {
	case "menu":
		b.clearSession(ctx, adminID)
		b.showMainMenu(ctx, chatID, true, msg)

	case "users":
		users, err := b.users.ListExcept(ctx, adminID)
		if err != nil {
			b.fail(chatID, err, "failed to list users")
			return
		}
		if len(users) == 0 {
			b.reply(msg, "No users yet.", backToMenu(true))
			return
		}
		lines := make([]string, 0, len(users))
		for _, u := range users {
			username := "none"
			if u.Username != nil && *u.Username != "" {
				username = "@" + *u.Username
			}
			lines = append(lines, fmt.Sprintf("• %s (%s) - ID: %d", u.DisplayName(), username, u.TelegramID))
		}
		b.reply(msg, "📋 Users:\n\n"+strings.Join(lines, "\n"), backToMenu(true))

	case "delete_user":
		if targetID != 0 {
			b.reply(msg, fmt.Sprintf("Delete user %d and all their configs?", targetID), deleteUserConfirmation(targetID))
			return
		}
		users, err := b.users.ListExcept(ctx, adminID)
		if err != nil {
			b.fail(chatID, err, "failed to list users")
			return
		}
		if len(users) == 0 {
			b.reply(msg, "No users yet.", backToMenu(true))
			return
		}
		b.reply(msg, "Choose a user to delete:", userList(users, cbAdminDeleteUser))

	case "delete_user_confirm":
		if targetID == 0 {
			return
		}
		switch err := b.users.Delete(ctx, targetID); {
		case errors.Is(err, services.ErrUserInActiveCollection):
			b.reply(msg, "This user takes part in the active collection. Finish or cancel it first.", backToMenu(true))
		case errors.Is(err, services.ErrUserNotFound):
			b.reply(msg, "User not found.", backToMenu(true))
		case err != nil:
			b.fail(chatID, err, "failed to delete user")
		default:
			b.logger.Info("user deleted", zap.Int64("user_id", targetID))
			b.reply(msg, "🗑️ User deleted.", backToMenu(true))
		}

	case "add_config":
		users, err := b.users.ListExcept(ctx, adminID)
		if err != nil {
			b.fail(chatID, err, "failed to list users")
			return
		}
		if len(users) == 0 {
			b.reply(msg, "There are no users to add a config for.", backToMenu(true))
			return
		}
		b.setSession(ctx, adminID, session.State{Step: session.StepConfigUserSelection})
		b.reply(msg, "Choose a user:", userList(users, cbSelectUser))

	case "broadcast":
		b.setSession(ctx, adminID, session.State{Step: session.StepBroadcastMessage})
		b.send(chatID, "Enter the message to send to every user.", cancelReplyKeyboard())

	case "user_configs":
		b.showUserConfigs(ctx, msg, adminID, targetID)

	case "start_collection":
		active, _, err := b.collections.Active(ctx)
		if err != nil && !errors.Is(err, services.ErrNoActiveCollection) {
			b.fail(chatID, err, "failed to load active collection")
			return
		}
		if active != nil {
			b.reply(msg, "A collection is already active. Finish it before starting a new one.", backToMenu(true))
			return
		}
		b.setSession(ctx, adminID, session.State{Step: session.StepCollectionAmount})
		b.send(chatID, "💰 Enter the total amount:", cancelReplyKeyboard())

	case "collection_status":
		active, obligations, err := b.collections.Active(ctx)
		if errors.Is(err, services.ErrNoActiveCollection) {
			b.reply(msg, textNoActiveCollection, backToMenu(true))
			return
		}
		if err != nil {
			b.fail(chatID, err, "failed to load active collection")
			return
		}
		b.reply(msg, renderStatus(active, obligations), mainMenuAdmin(active))

	case "finalize_collection":
		b.adminOverride(ctx, msg, "✅ Collection moved on.", b.collections.ForceFinalize)

	case "move_to_payment":
		b.adminOverride(ctx, msg, "💳 Moved to payment.", b.collections.ForceAdvanceToPayment)

	case "cancel_collection":
		b.adminOverride(ctx, msg, "❌ Collection cancelled.", b.collections.Cancel)

	case "last_collection_results":
		last, obligations, err := b.collections.LastCompleted(ctx)
		if errors.Is(err, services.ErrCollectionNotFound) {
			b.reply(msg, "No collection has been completed yet.", backToMenu(true))
			return
		}
		if err != nil {
			b.fail(chatID, err, "failed to load last collection")
			return
		}
		b.reply(msg, renderResults(last, obligations), backToMenu(true))
	}
}

type overrideFunc func(ctx context.Context, collectionID uuid.UUID) (*services.Outcome, error)

// adminOverride applies a forced transition to whatever collection is open
// right now.
func (b *Bot) adminOverride(ctx context.Context, msg *tgbotapi.Message, done string, fn overrideFunc) {
	active, _, err := b.collections.Active(ctx)
	if errors.Is(err, services.ErrNoActiveCollection) {
		b.reply(msg, textNoActiveCollection, backToMenu(true))
		return
	}
	if err != nil {
		b.fail(msg.Chat.ID, err, "failed to load active collection")
		return
	}

	out, err := fn(ctx, active.ID)
	switch {
	case errors.Is(err, services.ErrWrongStage):
		b.reply(msg, "That action does not apply to the collection's current stage.", mainMenuAdmin(active))
		return
	case errors.Is(err, services.ErrNoActiveCollection), errors.Is(err, services.ErrCollectionNotActive):
		b.reply(msg, textNoActiveCollection, backToMenu(true))
		return
	case err != nil:
		b.fail(msg.Chat.ID, err, "admin override failed")
		return
	}

	var next *models.Collection
	if !out.Collection.Status.IsTerminal() {
		next = out.Collection
	}
	b.reply(msg, renderAdminOutcome(done, out.Result, out.Delivery), mainMenuAdmin(next))
}

func (b *Bot) showUserConfigs(ctx context.Context, msg *tgbotapi.Message, adminID, targetID int64) {
	chatID := msg.Chat.ID

	if targetID == 0 {
		users, err := b.users.ListExcept(ctx, adminID)
		if err != nil {
			b.fail(chatID, err, "failed to list users")
			return
		}
		if len(users) == 0 {
			b.reply(msg, "No users yet.", backToMenu(true))
			return
		}
		b.reply(msg, "Choose a user to view their configs:", userList(users, cbAdminUserConfigs))
		return
	}

	configs, err := b.configs.ListByUser(ctx, targetID)
	if err != nil {
		b.fail(chatID, err, "failed to list configs")
		return
	}

	name := strconv.FormatInt(targetID, 10)
	if u, err := b.users.Get(ctx, targetID); err == nil {
		name = u.DisplayName()
	}

	if len(configs) == 0 {
		b.reply(msg, fmt.Sprintf("%s has no configs.", name), backToMenu(true))
		return
	}
	b.reply(msg, fmt.Sprintf("📋 Configs of %s:", name), configList(configs, true, targetID))
}

func (b *Bot) handleConfigCallback(ctx context.Context, msg *tgbotapi.Message, userID int64, isAdmin bool, parts []string) {
	if len(parts) < 3 {
		return
	}
	configID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return
	}
	var ownerID int64
	if len(parts) >= 4 {
		ownerID, _ = strconv.ParseInt(parts[3], 10, 64)
	}

	action := parts[1]
	if action != "view" && !isAdmin {
		return
	}

	cfg, err := b.configs.Get(ctx, configID)
	if errors.Is(err, services.ErrConfigNotFound) {
		b.reply(msg, "Config not found.", backToMenu(isAdmin))
		return
	}
	if err != nil {
		b.fail(msg.Chat.ID, err, "failed to load config")
		return
	}
	if !isAdmin && cfg.UserID != userID {
		b.reply(msg, "Config not found.", backToMenu(false))
		return
	}

	switch action {
	case "view":
		b.reply(msg, fmt.Sprintf("📄 %s\n\n%s", cfg.Name, cfg.ConfigText), configActions(cfg.ID, isAdmin, ownerID))

	case "delete":
		if err := b.configs.Delete(ctx, cfg.ID); err != nil && !errors.Is(err, services.ErrConfigNotFound) {
			b.fail(msg.Chat.ID, err, "failed to delete config")
			return
		}
		b.logger.Info("config deleted", zap.Int64("config_id", cfg.ID), zap.Int64("user_id", cfg.UserID))
		b.showUserConfigs(ctx, msg, userID, cfg.UserID)

	case "edit_name":
		b.setSession(ctx, userID, session.State{Step: session.StepConfigEditName, ConfigID: cfg.ID, SelectedUserID: cfg.UserID})
		b.send(msg.Chat.ID, fmt.Sprintf("Enter a new name for \"%s\":", cfg.Name), cancelReplyKeyboard())

	case "edit_text":
		b.setSession(ctx, userID, session.State{Step: session.StepConfigEditText, ConfigID: cfg.ID, SelectedUserID: cfg.UserID})
		b.send(msg.Chat.ID, fmt.Sprintf("Enter the new text for \"%s\":", cfg.Name), cancelReplyKeyboard())
	}
}

func (b *Bot) handleCollectionCallback(ctx context.Context, msg *tgbotapi.Message, userID int64, parts []string) {
	if len(parts) < 3 {
		return
	}
	choice, err := lifecycle.ParseChoice(parts[1])
	if err != nil {
		return
	}
	collectionID, err := uuid.Parse(parts[2])
	if err != nil {
		return
	}

	out, err := b.collections.RecordChoice(ctx, collectionID, userID, choice)
	switch {
	case errors.Is(err, services.ErrNotAParticipant):
		b.reply(msg, "You are not taking part in this collection.", nil)
	case errors.Is(err, services.ErrCollectionNotActive), errors.Is(err, services.ErrCollectionNotFound):
		b.reply(msg, "This collection is already finished or cancelled.", nil)
	case errors.Is(err, services.ErrWrongStage):
		b.reply(msg, textNoLongerApplicable, nil)
	case err != nil:
		b.fail(msg.Chat.ID, err, "failed to record choice")
	default:
		b.reply(msg, choiceReply(out.Result), nil)
	}
}

func (b *Bot) handleUserSelection(ctx context.Context, msg *tgbotapi.Message, adminID int64, parts []string) {
	if len(parts) < 2 {
		return
	}
	selected, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return
	}

	state, err := b.sessions.Get(ctx, adminID)
	if err != nil {
		b.fail(msg.Chat.ID, err, "failed to load session")
		return
	}
	if state.Step != session.StepConfigUserSelection {
		return
	}

	b.setSession(ctx, adminID, session.State{Step: session.StepConfigText, SelectedUserID: selected})
	b.send(msg.Chat.ID, "📄 Enter the config text (the name is taken from the part after #):", cancelReplyKeyboard())
}

func (b *Bot) setSession(ctx context.Context, userID int64, state session.State) {
	if err := b.sessions.Set(ctx, userID, state); err != nil {
		b.logger.Error("failed to save session", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (b *Bot) clearSession(ctx context.Context, userID int64) {
	if err := b.sessions.Clear(ctx, userID); err != nil {
		b.logger.Error("failed to clear session", zap.Int64("user_id", userID), zap.Error(err))
	}
}
