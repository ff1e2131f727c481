// Package lifecycle holds the collection state machine.
//
// A Snapshot is the in-memory view of one collection and its obligations,
// loaded under a row lock by the ledger store. Every operation here mutates
// the snapshot only; persisting the changes is the caller's job, inside the
// same transaction that loaded it.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/split"
	"github.com/shopspring/decimal"
)

var (
	ErrCollectionNotActive = errors.New("collection is no longer active")
	ErrNotAParticipant     = errors.New("user is not a participant of this collection")
	ErrWrongStage          = errors.New("action is not allowed at the current stage")
	ErrInvalidChoice       = errors.New("invalid choice")
)

type Choice string

const (
	Join     Choice = "join"
	Decline  Choice = "decline"
	Confirm  Choice = "confirm"
	Reject   Choice = "reject"
	MarkPaid Choice = "paid"
)

func ParseChoice(s string) (Choice, error) {
	switch c := Choice(s); c {
	case Join, Decline, Confirm, Reject, MarkPaid:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
}

// Result describes what a single operation did to the snapshot.
type Result struct {
	ParticipantID int64
	Choice        Choice
	Status        models.ParticipantStatus
	AlreadyMarked bool

	From models.CollectionStatus
	To   models.CollectionStatus

	Finalized    bool
	Recalculated bool
	Forced       bool
	Share        decimal.Decimal
}

func (r Result) Transitioned() bool {
	return r.From != r.To
}

type Snapshot struct {
	Collection  *models.Collection
	Obligations []*models.Obligation
	// OrganizerID is exempt from the confirmation step and is the recipient
	// of the money, so their own share is settled automatically. Zero means
	// the organizer holds no obligation.
	OrganizerID int64
}

func (s *Snapshot) find(userID int64) *models.Obligation {
	for _, o := range s.Obligations {
		if o.UserID == userID {
			return o
		}
	}
	return nil
}

func (s *Snapshot) withStatus(statuses ...models.ParticipantStatus) []*models.Obligation {
	var out []*models.Obligation
	for _, o := range s.Obligations {
		for _, st := range statuses {
			if o.Status == st {
				out = append(out, o)
				break
			}
		}
	}
	return out
}

// Payers returns obligations currently counted in the split.
func (s *Snapshot) Payers() []*models.Obligation {
	var out []*models.Obligation
	for _, o := range s.Obligations {
		if o.Status.IsPayer() {
			out = append(out, o)
		}
	}
	return out
}

func (s *Snapshot) isOrganizer(o *models.Obligation) bool {
	return s.OrganizerID != 0 && o.UserID == s.OrganizerID
}

func (s *Snapshot) begin() Result {
	return Result{From: s.Collection.Status, To: s.Collection.Status}
}

func (s *Snapshot) setStatus(r *Result, to models.CollectionStatus) {
	s.Collection.Status = to
	r.To = to
}

// Apply records a participant's choice and runs the completion checks of
// the current stage.
func (s *Snapshot) Apply(participantID int64, choice Choice) (Result, error) {
	if s.Collection.Status.IsTerminal() {
		return Result{}, ErrCollectionNotActive
	}

	ob := s.find(participantID)
	if ob == nil {
		return Result{}, ErrNotAParticipant
	}

	r := s.begin()
	r.ParticipantID = participantID
	r.Choice = choice

	switch choice {
	case Join, Decline:
		if s.Collection.Status != models.CollectionPending {
			return Result{}, ErrWrongStage
		}
		target := models.ParticipantParticipating
		if choice == Decline {
			target = models.ParticipantDeclined
		}
		if ob.Status == target {
			r.Status = ob.Status
			r.AlreadyMarked = true
			return r, nil
		}
		ob.Status = target
		r.Status = ob.Status
		if s.allAnswered() {
			s.finalize(&r)
		}

	case Confirm, Reject:
		if s.Collection.Status != models.CollectionAwaitingConfirmation {
			return Result{}, ErrWrongStage
		}
		switch ob.Status {
		case models.ParticipantParticipating:
		case models.ParticipantConfirmed:
			if choice == Confirm {
				r.Status = ob.Status
				r.AlreadyMarked = true
				return r, nil
			}
		default:
			return Result{}, ErrWrongStage
		}
		if choice == Confirm {
			ob.Status = models.ParticipantConfirmed
		} else {
			ob.Status = models.ParticipantDeclinedPayment
		}
		s.evaluateConfirmations(&r)
		r.Status = ob.Status

	case MarkPaid:
		if s.Collection.Status != models.CollectionAwaitingPayment {
			return Result{}, ErrWrongStage
		}
		switch ob.Status {
		case models.ParticipantPaid:
			r.Status = ob.Status
			r.AlreadyMarked = true
			return r, nil
		case models.ParticipantConfirmed:
		default:
			return Result{}, ErrWrongStage
		}
		ob.Status = models.ParticipantPaid
		r.Status = ob.Status
		s.evaluatePayments(&r)

	default:
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}

	return r, nil
}

func (s *Snapshot) allAnswered() bool {
	return len(s.withStatus(models.ParticipantPending)) == 0
}

// finalize closes the opt-in window, splitting the total between everyone
// participating, or cancels the collection when nobody besides the organizer
// is. Unanswered invites count as declined from here on.
func (s *Snapshot) finalize(r *Result) {
	r.Finalized = true
	for _, o := range s.withStatus(models.ParticipantPending) {
		o.Status = models.ParticipantDeclined
	}

	payers := s.withStatus(models.ParticipantParticipating)
	share, err := s.split(payers)
	if errors.Is(err, split.ErrNoPayers) {
		s.setStatus(r, models.CollectionCancelled)
		return
	}
	r.Share = share
	s.setStatus(r, models.CollectionAwaitingConfirmation)
	s.confirmOrganizer()
	if s.allConfirmed() {
		s.enterPayment(r)
	}
}

// split shares the total between payers. A set holding nobody but the
// organizer has no one to collect from and yields ErrNoPayers.
func (s *Snapshot) split(payers []*models.Obligation) (decimal.Decimal, error) {
	others := 0
	for _, o := range payers {
		if !s.isOrganizer(o) {
			others++
		}
	}
	if others == 0 {
		return decimal.Zero, split.ErrNoPayers
	}
	return split.Apply(s.Collection.TotalAmount, payers)
}

// allConfirmed reports whether every obligation still in the split has
// confirmed its amount.
func (s *Snapshot) allConfirmed() bool {
	for _, o := range s.Obligations {
		if o.Status == models.ParticipantDeclined {
			continue
		}
		if o.Status != models.ParticipantConfirmed {
			return false
		}
	}
	return true
}

func (s *Snapshot) confirmOrganizer() {
	if s.OrganizerID == 0 {
		return
	}
	if ob := s.find(s.OrganizerID); ob != nil && ob.Status == models.ParticipantParticipating {
		ob.Status = models.ParticipantConfirmed
	}
}

func (s *Snapshot) evaluateConfirmations(r *Result) {
	rejected := s.withStatus(models.ParticipantDeclinedPayment)
	if len(rejected) > 0 {
		s.recalculate(r, rejected)
		return
	}

	if s.allConfirmed() {
		s.enterPayment(r)
	}
}

// recalculate turns payment rejections into final declines, re-splits the
// total over the remaining payers and sends them all back to confirmation.
func (s *Snapshot) recalculate(r *Result, rejected []*models.Obligation) {
	for _, o := range rejected {
		o.Status = models.ParticipantDeclined
		o.AmountToPay = decimal.Zero
	}

	remaining := s.withStatus(models.ParticipantParticipating, models.ParticipantConfirmed)
	share, err := s.split(remaining)
	if errors.Is(err, split.ErrNoPayers) {
		s.setStatus(r, models.CollectionCancelled)
		return
	}

	for _, o := range remaining {
		o.Status = models.ParticipantParticipating
	}
	s.confirmOrganizer()
	r.Recalculated = true
	r.Share = share
	if s.allConfirmed() {
		s.enterPayment(r)
	}
}

// enterPayment opens the payment stage. The organizer's own share counts as
// paid, so the completion check runs straight away.
func (s *Snapshot) enterPayment(r *Result) {
	s.setStatus(r, models.CollectionAwaitingPayment)
	if s.OrganizerID != 0 {
		if ob := s.find(s.OrganizerID); ob != nil && ob.Status == models.ParticipantConfirmed {
			ob.Status = models.ParticipantPaid
		}
	}
	s.evaluatePayments(r)
}

func (s *Snapshot) evaluatePayments(r *Result) {
	paying := s.withStatus(models.ParticipantConfirmed, models.ParticipantPaid)
	if len(paying) == 0 {
		return
	}
	for _, o := range paying {
		if o.Status != models.ParticipantPaid {
			return
		}
	}
	s.setStatus(r, models.CollectionCompleted)
}

// ForceFinalize is the organizer's "finish" action: it closes the opt-in
// window while Pending and completes the collection while AwaitingPayment.
func (s *Snapshot) ForceFinalize() (Result, error) {
	r := s.begin()
	r.Forced = true
	switch s.Collection.Status {
	case models.CollectionPending:
		s.finalize(&r)
	case models.CollectionAwaitingPayment:
		s.setStatus(&r, models.CollectionCompleted)
	case models.CollectionCompleted, models.CollectionCancelled:
		return Result{}, ErrCollectionNotActive
	default:
		return Result{}, ErrWrongStage
	}
	return r, nil
}

// ForceAdvance moves to payment without waiting for every confirmation.
// Payers still unconfirmed are treated as confirmed so they can mark payment.
func (s *Snapshot) ForceAdvance() (Result, error) {
	if s.Collection.Status.IsTerminal() {
		return Result{}, ErrCollectionNotActive
	}
	if s.Collection.Status != models.CollectionAwaitingConfirmation {
		return Result{}, ErrWrongStage
	}
	r := s.begin()
	r.Forced = true
	for _, o := range s.withStatus(models.ParticipantParticipating) {
		o.Status = models.ParticipantConfirmed
	}
	s.enterPayment(&r)
	return r, nil
}

// ForceComplete completes a collection awaiting payment regardless of
// outstanding confirmed obligations.
func (s *Snapshot) ForceComplete() (Result, error) {
	if s.Collection.Status.IsTerminal() {
		return Result{}, ErrCollectionNotActive
	}
	if s.Collection.Status != models.CollectionAwaitingPayment {
		return Result{}, ErrWrongStage
	}
	r := s.begin()
	r.Forced = true
	s.setStatus(&r, models.CollectionCompleted)
	return r, nil
}

func (s *Snapshot) Cancel() (Result, error) {
	if s.Collection.Status.IsTerminal() {
		return Result{}, ErrCollectionNotActive
	}
	r := s.begin()
	r.Forced = true
	s.setStatus(&r, models.CollectionCancelled)
	return r, nil
}

// Clone deep-copies the snapshot so callers can diff before/after.
func (s *Snapshot) Clone() *Snapshot {
	c := *s.Collection
	out := &Snapshot{Collection: &c, OrganizerID: s.OrganizerID}
	for _, o := range s.Obligations {
		cp := *o
		out.Obligations = append(out.Obligations, &cp)
	}
	return out
}
