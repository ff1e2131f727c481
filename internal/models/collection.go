package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CollectionStatus string

const (
	CollectionPending              CollectionStatus = "pending"
	CollectionAwaitingConfirmation CollectionStatus = "awaiting_confirmation"
	CollectionAwaitingPayment      CollectionStatus = "awaiting_payment"
	CollectionCompleted            CollectionStatus = "completed"
	CollectionCancelled            CollectionStatus = "cancelled"
)

// ActiveCollectionStatuses lists the non-terminal statuses.
var ActiveCollectionStatuses = []CollectionStatus{
	CollectionPending,
	CollectionAwaitingConfirmation,
	CollectionAwaitingPayment,
}

func (s CollectionStatus) IsTerminal() bool {
	return s == CollectionCompleted || s == CollectionCancelled
}

type ParticipantStatus string

const (
	ParticipantPending         ParticipantStatus = "pending"
	ParticipantParticipating   ParticipantStatus = "participating"
	ParticipantDeclined        ParticipantStatus = "declined"
	ParticipantConfirmed       ParticipantStatus = "confirmed"
	ParticipantDeclinedPayment ParticipantStatus = "declined_payment"
	ParticipantPaid            ParticipantStatus = "paid"
)

// IsPayer reports whether the status counts toward the amount split.
func (s ParticipantStatus) IsPayer() bool {
	return s == ParticipantParticipating || s == ParticipantConfirmed || s == ParticipantPaid
}

type Collection struct {
	ID             uuid.UUID        `json:"id"`
	TotalAmount    decimal.Decimal  `json:"total_amount"`
	Description    string           `json:"description"`
	PaymentDetails string           `json:"payment_details"`
	Status         CollectionStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Obligation is one participant's stake in a collection.
type Obligation struct {
	ID           int64             `json:"id"`
	CollectionID uuid.UUID         `json:"collection_id"`
	UserID       int64             `json:"user_id"`
	Status       ParticipantStatus `json:"status"`
	AmountToPay  decimal.Decimal   `json:"amount_to_pay"`
	DisplayName  string            `json:"display_name,omitempty"`
}
