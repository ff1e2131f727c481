package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/lifecycle"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/notify"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/services"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/sse"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockCollectionService mocks the CollectionService
type MockCollectionService struct {
	mock.Mock
}

func (m *MockCollectionService) outcome(args mock.Arguments) (*services.Outcome, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Outcome), args.Error(1)
}

func (m *MockCollectionService) CreateCollection(ctx context.Context, total decimal.Decimal, description, paymentDetails string) (*services.Outcome, error) {
	return m.outcome(m.Called(ctx, total, description, paymentDetails))
}

func (m *MockCollectionService) RecordChoice(ctx context.Context, collectionID uuid.UUID, participantID int64, choice lifecycle.Choice) (*services.Outcome, error) {
	return m.outcome(m.Called(ctx, collectionID, participantID, choice))
}

func (m *MockCollectionService) ForceFinalize(ctx context.Context, collectionID uuid.UUID) (*services.Outcome, error) {
	return m.outcome(m.Called(ctx, collectionID))
}

func (m *MockCollectionService) ForceAdvanceToPayment(ctx context.Context, collectionID uuid.UUID) (*services.Outcome, error) {
	return m.outcome(m.Called(ctx, collectionID))
}

func (m *MockCollectionService) ForceComplete(ctx context.Context, collectionID uuid.UUID) (*services.Outcome, error) {
	return m.outcome(m.Called(ctx, collectionID))
}

func (m *MockCollectionService) Cancel(ctx context.Context, collectionID uuid.UUID) (*services.Outcome, error) {
	return m.outcome(m.Called(ctx, collectionID))
}

func (m *MockCollectionService) snapshot(args mock.Arguments) (*models.Collection, []*models.Obligation, error) {
	c, _ := args.Get(0).(*models.Collection)
	o, _ := args.Get(1).([]*models.Obligation)
	return c, o, args.Error(2)
}

func (m *MockCollectionService) Active(ctx context.Context) (*models.Collection, []*models.Obligation, error) {
	return m.snapshot(m.Called(ctx))
}

func (m *MockCollectionService) LastCompleted(ctx context.Context) (*models.Collection, []*models.Obligation, error) {
	return m.snapshot(m.Called(ctx))
}

func (m *MockCollectionService) Get(ctx context.Context, id uuid.UUID) (*models.Collection, []*models.Obligation, error) {
	return m.snapshot(m.Called(ctx, id))
}

// MockSSEHub mocks the SSE hub
type MockSSEHub struct {
	mock.Mock
}

func (m *MockSSEHub) Register(client *sse.Client) {
	m.Called(client)
}

func (m *MockSSEHub) Unregister(client *sse.Client) {
	m.Called(client)
}

// RecordingTransport captures delivered notifications instead of sending
// them. Recipients listed in Fail get an error.
type RecordingTransport struct {
	mu        sync.Mutex
	Delivered []notify.Message
	Fail      map[int64]error
}

func (r *RecordingTransport) Deliver(_ context.Context, m notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail[m.Recipient]; err != nil {
		return err
	}
	r.Delivered = append(r.Delivered, m)
	return nil
}

// To returns the kinds delivered to one recipient, in order.
func (r *RecordingTransport) To(recipient int64) []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []notify.Kind
	for _, m := range r.Delivered {
		if m.Recipient == recipient {
			kinds = append(kinds, m.Kind)
		}
	}
	return kinds
}

// Reset forgets everything delivered so far.
func (r *RecordingTransport) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Delivered = nil
}
