// Package notify turns collection transitions into outbound messages and
// delivers them one recipient at a time.
package notify

import (
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/lifecycle"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindInvite              Kind = "invite"
	KindConfirmRequest      Kind = "confirm_request"
	KindRecalculated        Kind = "recalculated"
	KindPaymentInstructions Kind = "payment_instructions"
	KindCompleted           Kind = "completed"
	KindCancelled           Kind = "cancelled"
	KindOrganizerSummary    Kind = "organizer_summary"
)

type Message struct {
	Recipient      int64
	Kind           Kind
	CollectionID   string
	Description    string
	PaymentDetails string
	TotalAmount    decimal.Decimal
	Amount         decimal.Decimal
	Forced         bool
	Summary        *Summary
}

// Summary is what the organizer sees after every action on a collection.
type Summary struct {
	ParticipantID     int64
	ParticipantName   string
	Choice            lifecycle.Choice
	ParticipantStatus models.ParticipantStatus
	From              models.CollectionStatus
	To                models.CollectionStatus
	Counts            map[models.ParticipantStatus]int
}

type Trigger string

const (
	TriggerCreated Trigger = "created"
	TriggerChoice  Trigger = "choice"
	TriggerAdmin   Trigger = "admin"
)

type Event struct {
	Trigger     Trigger
	Collection  *models.Collection
	Obligations []*models.Obligation
	Result      lifecycle.Result
	OrganizerID int64
}

// Plan lists the messages an event produces. Obligations must reflect the
// state after the transition was applied.
func Plan(ev Event) []Message {
	if ev.Result.AlreadyMarked {
		return nil
	}

	var msgs []Message
	base := Message{
		CollectionID:   ev.Collection.ID.String(),
		Description:    ev.Collection.Description,
		PaymentDetails: ev.Collection.PaymentDetails,
		TotalAmount:    ev.Collection.TotalAmount,
		Forced:         ev.Result.Forced,
	}

	each := func(kind Kind, match func(*models.Obligation) bool) {
		for _, o := range ev.Obligations {
			if o.UserID == ev.OrganizerID || !match(o) {
				continue
			}
			m := base
			m.Recipient = o.UserID
			m.Kind = kind
			m.Amount = o.AmountToPay
			msgs = append(msgs, m)
		}
	}
	hasStatus := func(statuses ...models.ParticipantStatus) func(*models.Obligation) bool {
		return func(o *models.Obligation) bool {
			for _, s := range statuses {
				if o.Status == s {
					return true
				}
			}
			return false
		}
	}

	r := ev.Result
	switch {
	case ev.Trigger == TriggerCreated:
		each(KindInvite, hasStatus(models.ParticipantPending))
	case r.Recalculated:
		each(KindRecalculated, hasStatus(models.ParticipantParticipating))
	case !r.Transitioned():
	case r.To == models.CollectionAwaitingConfirmation:
		each(KindConfirmRequest, hasStatus(models.ParticipantParticipating))
	case r.To == models.CollectionAwaitingPayment:
		each(KindPaymentInstructions, hasStatus(models.ParticipantConfirmed))
	case r.To == models.CollectionCompleted:
		each(KindCompleted, hasStatus(models.ParticipantPaid, models.ParticipantConfirmed))
	case r.To == models.CollectionCancelled:
		each(KindCancelled, func(*models.Obligation) bool { return true })
	}

	if ev.OrganizerID != 0 {
		m := base
		m.Recipient = ev.OrganizerID
		m.Kind = KindOrganizerSummary
		m.Summary = summarize(ev)
		msgs = append(msgs, m)
	}

	return msgs
}

func summarize(ev Event) *Summary {
	s := &Summary{
		ParticipantID: ev.Result.ParticipantID,
		Choice:        ev.Result.Choice,
		From:          ev.Result.From,
		To:            ev.Result.To,
		Counts:        make(map[models.ParticipantStatus]int),
	}
	if ev.Trigger == TriggerCreated {
		s.From = ""
		s.To = ev.Collection.Status
	}
	for _, o := range ev.Obligations {
		s.Counts[o.Status]++
		if o.UserID == ev.Result.ParticipantID && ev.Result.ParticipantID != 0 {
			s.ParticipantName = o.DisplayName
			s.ParticipantStatus = o.Status
		}
	}
	return s
}
