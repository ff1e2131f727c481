// Package session tracks where each chat user is in a multi-step text prompt.
package session

import (
	"context"

	"github.com/shopspring/decimal"
)

type Step string

const (
	StepNone                     Step = ""
	StepConfigUserSelection      Step = "config_user_selection"
	StepConfigText               Step = "config_text"
	StepConfigEditName           Step = "config_edit_name"
	StepConfigEditText           Step = "config_edit_text"
	StepCollectionAmount         Step = "collection_amount"
	StepCollectionDescription    Step = "collection_description"
	StepCollectionPaymentDetails Step = "collection_payment_details"
	StepBroadcastMessage         Step = "broadcast_message"
)

// State is the per-user cursor plus whatever partial input the current
// prompt chain has collected so far.
type State struct {
	Step           Step            `json:"step"`
	SelectedUserID int64           `json:"selected_user_id,omitempty"`
	ConfigID       int64           `json:"config_id,omitempty"`
	ConfigName     string          `json:"config_name,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description,omitempty"`
}

func (s State) Active() bool {
	return s.Step != StepNone
}

// Store is keyed by chat user. Get on an unknown user returns an empty State.
type Store interface {
	Get(ctx context.Context, userID int64) (State, error)
	Set(ctx context.Context, userID int64, state State) error
	Clear(ctx context.Context, userID int64) error
}
