package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/lifecycle"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/notify"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/split"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/sse"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidAmount           = errors.New("amount must be positive with at most two decimal places")
	ErrCollectionAlreadyActive = errors.New("a collection is already active")
	ErrNoActiveCollection      = errors.New("no active collection")
	ErrCollectionNotFound      = errors.New("collection not found")

	ErrCollectionNotActive = lifecycle.ErrCollectionNotActive
	ErrNotAParticipant     = lifecycle.ErrNotAParticipant
	ErrWrongStage          = lifecycle.ErrWrongStage
	ErrInvalidChoice       = lifecycle.ErrInvalidChoice
)

// ValidateAmount accepts totals the ledger can store exactly: positive and
// in whole cents.
func ValidateAmount(total decimal.Decimal) error {
	if !total.IsPositive() || !total.Equal(total.Round(split.Places)) {
		return ErrInvalidAmount
	}
	return nil
}

type Ledger interface {
	Create(ctx context.Context, c *models.Collection, obligations []*models.Obligation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Collection, error)
	GetActive(ctx context.Context) (*models.Collection, error)
	GetLastCompleted(ctx context.Context) (*models.Collection, error)
	GetObligations(ctx context.Context, collectionID uuid.UUID) ([]*models.Obligation, error)
	Mutate(ctx context.Context, collectionID uuid.UUID, organizerID int64, fn func(*lifecycle.Snapshot) (lifecycle.Result, error)) (*lifecycle.Snapshot, lifecycle.Result, error)
}

type Directory interface {
	List(ctx context.Context) ([]models.User, error)
}

type EventPublisher interface {
	BroadcastCreated(c *models.Collection, participants int)
	BroadcastTransition(ev sse.TransitionEvent)
	BroadcastParticipantAction(ev sse.ParticipantActionEvent)
}

// Outcome is what a state-changing call reports back to its caller.
type Outcome struct {
	Collection  *models.Collection
	Obligations []*models.Obligation
	Result      lifecycle.Result
	Delivery    notify.Report
}

// CollectionService runs the collection lifecycle: every call is applied to
// the ledger atomically and the resulting notifications are dispatched
// after the change is committed.
type CollectionService struct {
	ledger      Ledger
	users       Directory
	dispatcher  *notify.Dispatcher
	events      EventPublisher
	organizerID int64
	logger      *zap.Logger
}

func NewCollectionService(ledger Ledger, users Directory, dispatcher *notify.Dispatcher, organizerID int64, logger *zap.Logger) *CollectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollectionService{
		ledger:      ledger,
		users:       users,
		dispatcher:  dispatcher,
		organizerID: organizerID,
		logger:      logger,
	}
}

// WithEvents attaches a dashboard event publisher.
func (s *CollectionService) WithEvents(events EventPublisher) *CollectionService {
	s.events = events
	return s
}

func (s *CollectionService) OrganizerID() int64 {
	return s.organizerID
}

// CreateCollection opens a collection for every registered user. The
// organizer joins as a payer straight away; everyone else is invited.
func (s *CollectionService) CreateCollection(ctx context.Context, total decimal.Decimal, description, paymentDetails string) (*Outcome, error) {
	if err := ValidateAmount(total); err != nil {
		return nil, err
	}

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	c := &models.Collection{
		TotalAmount:    total,
		Description:    description,
		PaymentDetails: paymentDetails,
		Status:         models.CollectionPending,
	}

	obligations := make([]*models.Obligation, 0, len(users))
	for _, u := range users {
		ob := &models.Obligation{
			UserID:      u.TelegramID,
			Status:      models.ParticipantPending,
			AmountToPay: decimal.Zero,
			DisplayName: u.DisplayName(),
		}
		if u.TelegramID == s.organizerID {
			ob.Status = models.ParticipantParticipating
		}
		obligations = append(obligations, ob)
	}

	if err := s.ledger.Create(ctx, c, obligations); err != nil {
		return nil, err
	}

	s.logger.Info("collection created",
		zap.String("collection_id", c.ID.String()),
		zap.String("total", c.TotalAmount.StringFixed(2)),
		zap.Int("participants", len(obligations)),
	)

	if s.events != nil {
		s.events.BroadcastCreated(c, len(obligations))
	}

	out := &Outcome{Collection: c, Obligations: obligations}
	out.Delivery = s.notify(ctx, notify.TriggerCreated, c, obligations, lifecycle.Result{})
	return out, nil
}

// RecordChoice applies a participant's answer to the given collection.
func (s *CollectionService) RecordChoice(ctx context.Context, collectionID uuid.UUID, participantID int64, choice lifecycle.Choice) (*Outcome, error) {
	return s.mutate(ctx, notify.TriggerChoice, collectionID, func(snap *lifecycle.Snapshot) (lifecycle.Result, error) {
		return snap.Apply(participantID, choice)
	})
}

func (s *CollectionService) ForceFinalize(ctx context.Context, collectionID uuid.UUID) (*Outcome, error) {
	return s.mutate(ctx, notify.TriggerAdmin, collectionID, (*lifecycle.Snapshot).ForceFinalize)
}

func (s *CollectionService) ForceAdvanceToPayment(ctx context.Context, collectionID uuid.UUID) (*Outcome, error) {
	return s.mutate(ctx, notify.TriggerAdmin, collectionID, (*lifecycle.Snapshot).ForceAdvance)
}

func (s *CollectionService) ForceComplete(ctx context.Context, collectionID uuid.UUID) (*Outcome, error) {
	return s.mutate(ctx, notify.TriggerAdmin, collectionID, (*lifecycle.Snapshot).ForceComplete)
}

func (s *CollectionService) Cancel(ctx context.Context, collectionID uuid.UUID) (*Outcome, error) {
	return s.mutate(ctx, notify.TriggerAdmin, collectionID, (*lifecycle.Snapshot).Cancel)
}

// Active returns the open collection with its obligations.
func (s *CollectionService) Active(ctx context.Context) (*models.Collection, []*models.Obligation, error) {
	c, err := s.ledger.GetActive(ctx)
	if err != nil {
		return nil, nil, err
	}
	obligations, err := s.ledger.GetObligations(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, obligations, nil
}

func (s *CollectionService) LastCompleted(ctx context.Context) (*models.Collection, []*models.Obligation, error) {
	c, err := s.ledger.GetLastCompleted(ctx)
	if err != nil {
		return nil, nil, err
	}
	obligations, err := s.ledger.GetObligations(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, obligations, nil
}

func (s *CollectionService) Get(ctx context.Context, id uuid.UUID) (*models.Collection, []*models.Obligation, error) {
	c, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	obligations, err := s.ledger.GetObligations(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, obligations, nil
}

func (s *CollectionService) mutate(ctx context.Context, trigger notify.Trigger, collectionID uuid.UUID, fn func(*lifecycle.Snapshot) (lifecycle.Result, error)) (*Outcome, error) {
	snap, res, err := s.ledger.Mutate(ctx, collectionID, s.organizerID, fn)
	if err != nil {
		if trigger == notify.TriggerAdmin && errors.Is(err, ErrCollectionNotFound) {
			return nil, ErrNoActiveCollection
		}
		return nil, err
	}

	fields := []zap.Field{
		zap.String("collection_id", collectionID.String()),
		zap.String("from", string(res.From)),
		zap.String("to", string(res.To)),
	}
	if res.ParticipantID != 0 {
		fields = append(fields,
			zap.Int64("participant_id", res.ParticipantID),
			zap.String("choice", string(res.Choice)),
			zap.Bool("already_marked", res.AlreadyMarked),
		)
	}
	if res.Recalculated {
		fields = append(fields, zap.String("share", res.Share.StringFixed(2)))
	}
	s.logger.Info("collection updated", fields...)

	s.publish(collectionID, res)

	out := &Outcome{Collection: snap.Collection, Obligations: snap.Obligations, Result: res}
	out.Delivery = s.notify(ctx, trigger, snap.Collection, snap.Obligations, res)
	return out, nil
}

func (s *CollectionService) publish(collectionID uuid.UUID, res lifecycle.Result) {
	if s.events == nil || res.AlreadyMarked {
		return
	}
	if res.ParticipantID != 0 {
		ev := sse.ParticipantActionEvent{
			CollectionID: collectionID,
			UserID:       res.ParticipantID,
			Choice:       string(res.Choice),
			Status:       res.Status,
			Recalculated: res.Recalculated,
		}
		if !res.Share.IsZero() {
			ev.Share = res.Share.StringFixed(2)
		}
		s.events.BroadcastParticipantAction(ev)
	}
	if res.Transitioned() {
		s.events.BroadcastTransition(sse.TransitionEvent{
			CollectionID: collectionID,
			From:         res.From,
			To:           res.To,
			Forced:       res.Forced,
		})
	}
}

// notify runs after the change is durable, so it is detached from the
// caller's cancellation.
func (s *CollectionService) notify(ctx context.Context, trigger notify.Trigger, c *models.Collection, obligations []*models.Obligation, res lifecycle.Result) notify.Report {
	if s.dispatcher == nil {
		return notify.Report{}
	}
	msgs := notify.Plan(notify.Event{
		Trigger:     trigger,
		Collection:  c,
		Obligations: obligations,
		Result:      res,
		OrganizerID: s.organizerID,
	})
	return s.dispatcher.Dispatch(context.WithoutCancel(ctx), msgs)
}
