package bot

import (
	"strconv"

	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const cancelButton = "❌ Cancel"

const (
	cbCancel = "cancel"

	cbUserMenu        = "user:menu"
	cbUserConfigs     = "user:configs"
	cbUserInstruction = "user:instruction"

	cbAdminMenu             = "admin:menu"
	cbAdminUsers            = "admin:users"
	cbAdminDeleteUser       = "admin:delete_user"
	cbAdminDeleteUserOK     = "admin:delete_user_confirm"
	cbAdminAddConfig        = "admin:add_config"
	cbAdminUserConfigs      = "admin:user_configs"
	cbAdminBroadcast        = "admin:broadcast"
	cbAdminStartCollection  = "admin:start_collection"
	cbAdminCollectionStatus = "admin:collection_status"
	cbAdminFinalize         = "admin:finalize_collection"
	cbAdminMoveToPayment    = "admin:move_to_payment"
	cbAdminLastResults      = "admin:last_collection_results"
	cbAdminCancelCollection = "admin:cancel_collection"

	cbSelectUser = "selectuser"
)

func button(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func row(buttons ...tgbotapi.InlineKeyboardButton) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(buttons...)
}

func keyboard(rows ...[]tgbotapi.InlineKeyboardButton) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func withID(prefix string, id int64) string {
	return prefix + ":" + strconv.FormatInt(id, 10)
}

func mainMenuUser() *tgbotapi.InlineKeyboardMarkup {
	return keyboard(
		row(button("📋 My configs", cbUserConfigs)),
		row(button("📖 Instructions", cbUserInstruction)),
	)
}

// mainMenuAdmin shows the collection controls that apply to the active
// collection's stage, or the start button when none is open.
func mainMenuAdmin(active *models.Collection) *tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		row(button("👥 Users", cbAdminUsers)),
		row(button("🗑️ Delete user", cbAdminDeleteUser)),
		row(button("➕ Add config", cbAdminAddConfig), button("📋 User configs", cbAdminUserConfigs)),
		row(button("📢 Message everyone", cbAdminBroadcast)),
	}

	if active == nil {
		rows = append(rows,
			row(button("💰 Start collection", cbAdminStartCollection)),
			row(button("📋 Last collection results", cbAdminLastResults)),
		)
		return keyboard(rows...)
	}

	rows = append(rows, row(button("📊 Collection status", cbAdminCollectionStatus)))
	switch active.Status {
	case models.CollectionPending, models.CollectionAwaitingPayment:
		rows = append(rows, row(button("✅ Finish collection", cbAdminFinalize)))
	case models.CollectionAwaitingConfirmation:
		rows = append(rows, row(button("💳 Move to payment", cbAdminMoveToPayment)))
	}
	rows = append(rows, row(button("❌ Cancel collection", cbAdminCancelCollection)))
	return keyboard(rows...)
}

func mainMenu(isAdmin bool, active *models.Collection) *tgbotapi.InlineKeyboardMarkup {
	if isAdmin {
		return mainMenuAdmin(active)
	}
	return mainMenuUser()
}

func backToMenu(isAdmin bool) *tgbotapi.InlineKeyboardMarkup {
	data := cbUserMenu
	if isAdmin {
		data = cbAdminMenu
	}
	return keyboard(row(button("⬅️ Main menu", data)))
}

func userList(users []models.User, prefix string) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(users)+1)
	for _, u := range users {
		rows = append(rows, row(button(u.DisplayName(), withID(prefix, u.TelegramID))))
	}
	rows = append(rows, row(button("⬅️ Back", cbAdminMenu)))
	return keyboard(rows...)
}

func deleteUserConfirmation(userID int64) *tgbotapi.InlineKeyboardMarkup {
	return keyboard(row(
		button("✅ Yes, delete", withID(cbAdminDeleteUserOK, userID)),
		button("❌ No", cbAdminMenu),
	))
}

// configRef builds config callback data. ownerID is set when the admin
// browses another user's configs so Back returns to that user's list.
func configRef(action string, configID, ownerID int64) string {
	data := withID("config:"+action, configID)
	if ownerID != 0 {
		data = withID(data, ownerID)
	}
	return data
}

func configList(configs []models.UserConfig, isAdmin bool, ownerID int64) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(configs)+1)
	for _, c := range configs {
		rows = append(rows, row(button("📄 "+c.Name, configRef("view", c.ID, ownerID))))
	}
	back := cbUserMenu
	if isAdmin {
		back = cbAdminMenu
	}
	rows = append(rows, row(button("⬅️ Back", back)))
	return keyboard(rows...)
}

func configActions(configID int64, isAdmin bool, ownerID int64) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if isAdmin {
		rows = append(rows,
			row(button("🗑️ Delete", configRef("delete", configID, ownerID))),
			row(
				button("✏️ Name", configRef("edit_name", configID, ownerID)),
				button("✏️ Text", configRef("edit_text", configID, ownerID)),
			),
		)
	}

	back := cbUserConfigs
	if isAdmin {
		back = cbAdminMenu
		if ownerID != 0 {
			back = withID(cbAdminUserConfigs, ownerID)
		}
	}
	rows = append(rows, row(button("⬅️ Back", back)))
	return keyboard(rows...)
}

func collectionRef(action, collectionID string) string {
	return "collection:" + action + ":" + collectionID
}

func participationKeyboard(collectionID string) *tgbotapi.InlineKeyboardMarkup {
	return keyboard(row(
		button("✅ I'm in", collectionRef("join", collectionID)),
		button("❌ Not this time", collectionRef("decline", collectionID)),
	))
}

func confirmationKeyboard(collectionID string) *tgbotapi.InlineKeyboardMarkup {
	return keyboard(row(
		button("✅ Confirm", collectionRef("confirm", collectionID)),
		button("❌ Drop out", collectionRef("reject", collectionID)),
	))
}

func paidKeyboard(collectionID string) *tgbotapi.InlineKeyboardMarkup {
	return keyboard(row(button("✅ I have paid", collectionRef("paid", collectionID))))
}

// cancelReplyKeyboard stays under the input box while a text prompt is open.
func cancelReplyKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(cancelButton)))
	kb.ResizeKeyboard = true
	return kb
}

func removeReplyKeyboard() tgbotapi.ReplyKeyboardRemove {
	return tgbotapi.NewRemoveKeyboard(false)
}
