package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateCollectionRequest struct {
	TotalAmount    string `json:"total_amount"`
	Description    string `json:"description"`
	PaymentDetails string `json:"payment_details"`
}

type RecordChoiceRequest struct {
	UserID int64  `json:"user_id"`
	Choice string `json:"choice"`
}

type ParticipantResponse struct {
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	AmountToPay string `json:"amount_to_pay"`
}

type CollectionResponse struct {
	ID             uuid.UUID             `json:"id"`
	TotalAmount    string                `json:"total_amount"`
	Collected      string                `json:"collected"`
	Description    string                `json:"description"`
	PaymentDetails string                `json:"payment_details"`
	Status         string                `json:"status"`
	CreatedAt      time.Time             `json:"created_at"`
	Participants   []ParticipantResponse `json:"participants"`
}

// TransitionResponse reports what a state-changing call did.
type TransitionResponse struct {
	Collection    CollectionResponse `json:"collection"`
	From          string             `json:"from,omitempty"`
	To            string             `json:"to,omitempty"`
	AlreadyMarked bool               `json:"already_marked,omitempty"`
	Recalculated  bool               `json:"recalculated,omitempty"`
	Forced        bool               `json:"forced,omitempty"`
	Notified      int                `json:"notified"`
	NotifyFailed  int                `json:"notify_failed"`
}
