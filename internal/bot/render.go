package bot

import (
	"fmt"
	"strings"

	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/lifecycle"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/notify"
	"github.com/shopspring/decimal"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	textSomethingWentWrong = "⚠️ Something went wrong. Please try again later."
	textNoLongerApplicable = "This is no longer applicable."
	textActionCancelled    = "Action cancelled."
	textNoActiveCollection = "There is no active collection."
	textInstructionMissing = "Instructions are not available right now."
)

var participantStatusOrder = []models.ParticipantStatus{
	models.ParticipantPending,
	models.ParticipantParticipating,
	models.ParticipantConfirmed,
	models.ParticipantPaid,
	models.ParticipantDeclinedPayment,
	models.ParticipantDeclined,
}

var participantEmoji = map[models.ParticipantStatus]string{
	models.ParticipantPending:         "⏳",
	models.ParticipantParticipating:   "✋",
	models.ParticipantDeclined:        "❌",
	models.ParticipantConfirmed:       "✅",
	models.ParticipantDeclinedPayment: "🚫",
	models.ParticipantPaid:            "💰",
}

var participantLabel = map[models.ParticipantStatus]string{
	models.ParticipantPending:         "no answer yet",
	models.ParticipantParticipating:   "taking part",
	models.ParticipantDeclined:        "declined",
	models.ParticipantConfirmed:       "confirmed",
	models.ParticipantDeclinedPayment: "refused to pay",
	models.ParticipantPaid:            "paid",
}

var collectionLabel = map[models.CollectionStatus]string{
	models.CollectionPending:              "collecting answers",
	models.CollectionAwaitingConfirmation: "waiting for confirmations",
	models.CollectionAwaitingPayment:      "waiting for payments",
	models.CollectionCompleted:            "completed",
	models.CollectionCancelled:            "cancelled",
}

var choiceLabel = map[lifecycle.Choice]string{
	lifecycle.Join:     "joined",
	lifecycle.Decline:  "declined",
	lifecycle.Confirm:  "confirmed the amount",
	lifecycle.Reject:   "dropped out",
	lifecycle.MarkPaid: "marked as paid",
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// renderNotification turns an outbound message into chat text plus the
// buttons the recipient needs to answer it.
func renderNotification(m notify.Message) (string, *tgbotapi.InlineKeyboardMarkup) {
	switch m.Kind {
	case notify.KindInvite:
		return fmt.Sprintf("💰 New collection: %s\nTotal: %s\n\nWill you take part?",
			m.Description, money(m.TotalAmount)), participationKeyboard(m.CollectionID)

	case notify.KindConfirmRequest:
		return fmt.Sprintf("🧮 The split for \"%s\" is ready.\nYour share: %s\n\nPlease confirm you will pay it.",
			m.Description, money(m.Amount)), confirmationKeyboard(m.CollectionID)

	case notify.KindRecalculated:
		return fmt.Sprintf("🔄 Someone dropped out of \"%s\", so the split changed.\nYour new share: %s\n\nPlease confirm again.",
			m.Description, money(m.Amount)), confirmationKeyboard(m.CollectionID)

	case notify.KindPaymentInstructions:
		return fmt.Sprintf("💳 Time to pay for \"%s\".\nYour share: %s\n\nPayment details:\n%s\n\nPress the button once you have paid.",
			m.Description, money(m.Amount), m.PaymentDetails), paidKeyboard(m.CollectionID)

	case notify.KindCompleted:
		if m.Forced {
			return fmt.Sprintf("🏁 The organizer closed the collection \"%s\".", m.Description), nil
		}
		return fmt.Sprintf("🎉 The collection \"%s\" is complete. Thank you!", m.Description), nil

	case notify.KindCancelled:
		return fmt.Sprintf("❌ The collection \"%s\" was cancelled.", m.Description), nil

	case notify.KindOrganizerSummary:
		return renderSummary(m), nil
	}
	return "", nil
}

func renderSummary(m notify.Message) string {
	var sb strings.Builder
	s := m.Summary
	if s == nil {
		return ""
	}

	switch {
	case s.ParticipantID != 0:
		name := s.ParticipantName
		if name == "" {
			name = fmt.Sprint(s.ParticipantID)
		}
		fmt.Fprintf(&sb, "👤 %s %s (%s)\n", name, choiceLabel[s.Choice], participantLabel[s.ParticipantStatus])
	case s.From == "":
		fmt.Fprintf(&sb, "💰 Collection \"%s\" started for %s.\n", m.Description, money(m.TotalAmount))
	default:
		fmt.Fprintf(&sb, "🛠 Collection \"%s\" updated by the organizer.\n", m.Description)
	}

	if s.From != "" && s.From != s.To {
		fmt.Fprintf(&sb, "Stage: %s → %s\n", collectionLabel[s.From], collectionLabel[s.To])
	}

	var counts []string
	for _, st := range participantStatusOrder {
		if n := s.Counts[st]; n > 0 {
			counts = append(counts, fmt.Sprintf("%s %d", participantEmoji[st], n))
		}
	}
	if len(counts) > 0 {
		sb.WriteString(strings.Join(counts, "  "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderStatus(c *models.Collection, obligations []*models.Obligation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 %s\nTotal: %s\nStage: %s\n\n", c.Description, money(c.TotalAmount), collectionLabel[c.Status])

	paid := decimal.Zero
	for _, o := range obligations {
		line := fmt.Sprintf("%s %s: %s", participantEmoji[o.Status], o.DisplayName, participantLabel[o.Status])
		if o.Status.IsPayer() && c.Status != models.CollectionPending {
			line += " · " + money(o.AmountToPay)
		}
		sb.WriteString(line + "\n")
		if o.Status == models.ParticipantPaid {
			paid = paid.Add(o.AmountToPay)
		}
	}

	if c.Status == models.CollectionAwaitingPayment || c.Status == models.CollectionCompleted {
		fmt.Fprintf(&sb, "\nPaid so far: %s of %s", money(paid), money(c.TotalAmount))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderResults(c *models.Collection, obligations []*models.Obligation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Last completed collection: %s\nTotal: %s\nCreated: %s\n\n",
		c.Description, money(c.TotalAmount), c.CreatedAt.Format("2006-01-02"))

	payers := 0
	for _, o := range obligations {
		if !o.Status.IsPayer() {
			continue
		}
		payers++
		fmt.Fprintf(&sb, "%s %s: %s\n", participantEmoji[o.Status], o.DisplayName, money(o.AmountToPay))
	}
	if payers == 0 {
		sb.WriteString("Nobody paid in this collection.")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// choiceReply is what replaces the buttons after a participant answers.
func choiceReply(res lifecycle.Result) string {
	if res.AlreadyMarked {
		return "Already noted."
	}
	switch res.Choice {
	case lifecycle.Join:
		return "✅ You are in. The final split will follow once everyone answers."
	case lifecycle.Decline:
		return "👌 You are not taking part this time."
	case lifecycle.Confirm:
		return "✅ Confirmed. Payment details will follow."
	case lifecycle.Reject:
		return "👌 You dropped out of this collection."
	case lifecycle.MarkPaid:
		return "💰 Payment noted. Thank you!"
	}
	return "OK"
}

func renderAdminOutcome(action string, res lifecycle.Result, rep notify.Report) string {
	text := fmt.Sprintf("%s\nStage: %s → %s", action, collectionLabel[res.From], collectionLabel[res.To])
	if rep.Sent+rep.Failed > 0 {
		text += fmt.Sprintf("\nNotifications sent: %d", rep.Sent)
		if rep.Failed > 0 {
			text += fmt.Sprintf(", failed: %d", rep.Failed)
		}
	}
	return text
}
