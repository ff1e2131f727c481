package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/lifecycle"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/notify"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/sse"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const organizerID int64 = 1

// memLedger keeps collections in memory and serializes Mutate calls the
// way the row lock does in Postgres.
type memLedger struct {
	mu          sync.Mutex
	collections map[uuid.UUID]*models.Collection
	obligations map[uuid.UUID][]*models.Obligation
	order       []uuid.UUID
}

func newMemLedger() *memLedger {
	return &memLedger{
		collections: make(map[uuid.UUID]*models.Collection),
		obligations: make(map[uuid.UUID][]*models.Obligation),
	}
}

func (l *memLedger) Create(_ context.Context, c *models.Collection, obligations []*models.Obligation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.collections {
		if !existing.Status.IsTerminal() {
			return ErrCollectionAlreadyActive
		}
	}
	c.ID = uuid.New()
	cp := *c
	l.collections[c.ID] = &cp
	l.order = append(l.order, c.ID)
	var stored []*models.Obligation
	for i, o := range obligations {
		o.ID = int64(i + 1)
		o.CollectionID = c.ID
		oc := *o
		stored = append(stored, &oc)
	}
	l.obligations[c.ID] = stored
	return nil
}

func (l *memLedger) GetByID(_ context.Context, id uuid.UUID) (*models.Collection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.collections[id]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	cp := *c
	return &cp, nil
}

func (l *memLedger) GetActive(_ context.Context) (*models.Collection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.order) - 1; i >= 0; i-- {
		if c := l.collections[l.order[i]]; !c.Status.IsTerminal() {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNoActiveCollection
}

func (l *memLedger) GetLastCompleted(_ context.Context) (*models.Collection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.order) - 1; i >= 0; i-- {
		if c := l.collections[l.order[i]]; c.Status == models.CollectionCompleted {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrCollectionNotFound
}

func (l *memLedger) GetObligations(_ context.Context, id uuid.UUID) ([]*models.Obligation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.Obligation
	for _, o := range l.obligations[id] {
		oc := *o
		out = append(out, &oc)
	}
	return out, nil
}

func (l *memLedger) Mutate(_ context.Context, id uuid.UUID, organizer int64, fn func(*lifecycle.Snapshot) (lifecycle.Result, error)) (*lifecycle.Snapshot, lifecycle.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.collections[id]
	if !ok {
		return nil, lifecycle.Result{}, ErrCollectionNotFound
	}
	stored := &lifecycle.Snapshot{Collection: c, Obligations: l.obligations[id], OrganizerID: organizer}
	work := stored.Clone()
	res, err := fn(work)
	if err != nil {
		return nil, lifecycle.Result{}, err
	}
	l.collections[id] = work.Collection
	l.obligations[id] = work.Obligations
	return work.Clone(), res, nil
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) List(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]models.User)
	return users, args.Error(1)
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []notify.Message
	fail map[int64]bool
}

func (r *recordingTransport) Deliver(_ context.Context, m notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[m.Recipient] {
		return errors.New("chat not found")
	}
	r.sent = append(r.sent, m)
	return nil
}

func (r *recordingTransport) take() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

func (r *recordingTransport) recipients(kind notify.Kind) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for _, m := range r.sent {
		if m.Kind == kind {
			out = append(out, m.Recipient)
		}
	}
	return out
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) BroadcastCreated(c *models.Collection, participants int) {
	m.Called(c, participants)
}

func (m *mockPublisher) BroadcastTransition(ev sse.TransitionEvent) {
	m.Called(ev)
}

func (m *mockPublisher) BroadcastParticipantAction(ev sse.ParticipantActionEvent) {
	m.Called(ev)
}

func user(id int64, name string) models.User {
	return models.User{TelegramID: id, FirstName: &name}
}

type engineFixture struct {
	svc       *CollectionService
	ledger    *memLedger
	transport *recordingTransport
	directory *mockDirectory
}

func setupCollectionService(t *testing.T, users ...models.User) *engineFixture {
	t.Helper()
	ledger := newMemLedger()
	transport := &recordingTransport{fail: map[int64]bool{}}
	directory := new(mockDirectory)
	directory.On("List", mock.Anything).Return(users, nil)

	svc := NewCollectionService(ledger, directory, notify.NewDispatcher(transport, nil), organizerID, nil)
	return &engineFixture{svc: svc, ledger: ledger, transport: transport, directory: directory}
}

func (f *engineFixture) create(t *testing.T, total string) uuid.UUID {
	t.Helper()
	out, err := f.svc.CreateCollection(context.Background(), decimal.RequireFromString(total), "trip", "card 1234")
	require.NoError(t, err)
	return out.Collection.ID
}

func (f *engineFixture) choose(t *testing.T, id uuid.UUID, participant int64, choice lifecycle.Choice) *Outcome {
	t.Helper()
	out, err := f.svc.RecordChoice(context.Background(), id, participant, choice)
	require.NoError(t, err)
	return out
}

func obligationOf(t *testing.T, out *Outcome, userID int64) *models.Obligation {
	t.Helper()
	for _, o := range out.Obligations {
		if o.UserID == userID {
			return o
		}
	}
	t.Fatalf("no obligation for %d", userID)
	return nil
}

func TestCollectionService_CreateCollection(t *testing.T) {
	f := setupCollectionService(t, user(organizerID, "Admin"), user(2, "A"), user(3, "B"), user(4, "C"))

	out, err := f.svc.CreateCollection(context.Background(), decimal.NewFromInt(1000), "trip", "card 1234")

	require.NoError(t, err)
	assert.Equal(t, models.CollectionPending, out.Collection.Status)
	assert.NotEqual(t, uuid.Nil, out.Collection.ID)
	assert.Len(t, out.Obligations, 4)
	assert.Equal(t, models.ParticipantParticipating, obligationOf(t, out, organizerID).Status)
	for _, id := range []int64{2, 3, 4} {
		assert.Equal(t, models.ParticipantPending, obligationOf(t, out, id).Status)
	}
	assert.Equal(t, []int64{2, 3, 4}, f.transport.recipients(notify.KindInvite))
	assert.Equal(t, []int64{organizerID}, f.transport.recipients(notify.KindOrganizerSummary))
	assert.Equal(t, notify.Report{Sent: 4}, out.Delivery)
}

func TestCollectionService_CreateCollection_InvalidAmount(t *testing.T) {
	f := setupCollectionService(t)

	for _, amount := range []string{"0", "-5", "0.004", "100.555"} {
		_, err := f.svc.CreateCollection(context.Background(), decimal.RequireFromString(amount), "x", "y")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
	f.directory.AssertNotCalled(t, "List", mock.Anything)
}

func TestValidateAmount(t *testing.T) {
	for _, amount := range []string{"0.01", "100", "100.5", "100.50", "100.500"} {
		assert.NoError(t, ValidateAmount(decimal.RequireFromString(amount)), amount)
	}
	for _, amount := range []string{"0", "0.00", "-0.01", "0.004", "0.009", "100.555"} {
		assert.ErrorIs(t, ValidateAmount(decimal.RequireFromString(amount)), ErrInvalidAmount, amount)
	}
}

func TestCollectionService_CreateCollection_AlreadyActive(t *testing.T) {
	f := setupCollectionService(t, user(2, "A"))
	f.create(t, "100")

	_, err := f.svc.CreateCollection(context.Background(), decimal.NewFromInt(50), "again", "card")

	assert.ErrorIs(t, err, ErrCollectionAlreadyActive)
}

func TestCollectionService_FullLifecycle(t *testing.T) {
	f := setupCollectionService(t, user(2, "A"), user(3, "B"), user(4, "C"))
	id := f.create(t, "1000")
	f.transport.take()

	f.choose(t, id, 2, lifecycle.Join)
	f.choose(t, id, 3, lifecycle.Join)
	out := f.choose(t, id, 4, lifecycle.Decline)

	assert.Equal(t, models.CollectionAwaitingConfirmation, out.Collection.Status)
	assert.Equal(t, "500", obligationOf(t, out, 2).AmountToPay.String())
	assert.Equal(t, []int64{2, 3}, f.transport.recipients(notify.KindConfirmRequest))
	f.transport.take()

	f.choose(t, id, 2, lifecycle.Confirm)
	out = f.choose(t, id, 3, lifecycle.Confirm)

	assert.Equal(t, models.CollectionAwaitingPayment, out.Collection.Status)
	assert.Equal(t, []int64{2, 3}, f.transport.recipients(notify.KindPaymentInstructions))
	f.transport.take()

	f.choose(t, id, 2, lifecycle.MarkPaid)
	out = f.choose(t, id, 3, lifecycle.MarkPaid)

	assert.Equal(t, models.CollectionCompleted, out.Collection.Status)
	assert.Equal(t, []int64{2, 3}, f.transport.recipients(notify.KindCompleted))

	_, err := f.svc.RecordChoice(context.Background(), id, 2, lifecycle.MarkPaid)
	assert.ErrorIs(t, err, ErrCollectionNotActive)

	last, obligations, err := f.svc.LastCompleted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, last.ID)
	assert.Len(t, obligations, 3)
}

func TestCollectionService_MarkPaidTwiceSendsNothing(t *testing.T) {
	f := setupCollectionService(t, user(2, "A"), user(3, "B"))
	id := f.create(t, "100")
	f.choose(t, id, 2, lifecycle.Join)
	f.choose(t, id, 3, lifecycle.Join)
	f.choose(t, id, 2, lifecycle.Confirm)
	f.choose(t, id, 3, lifecycle.Confirm)
	f.choose(t, id, 2, lifecycle.MarkPaid)
	f.transport.take()

	out := f.choose(t, id, 2, lifecycle.MarkPaid)

	assert.True(t, out.Result.AlreadyMarked)
	assert.Equal(t, models.ParticipantPaid, out.Result.Status)
	assert.Empty(t, f.transport.take())
}

func TestCollectionService_RejectRecalculatesAndNotifies(t *testing.T) {
	f := setupCollectionService(t, user(2, "A"), user(3, "B"), user(4, "C"))
	id := f.create(t, "900")
	for _, u := range []int64{2, 3, 4} {
		f.choose(t, id, u, lifecycle.Join)
	}
	f.choose(t, id, 2, lifecycle.Confirm)
	f.transport.take()

	out := f.choose(t, id, 4, lifecycle.Reject)

	assert.True(t, out.Result.Recalculated)
	assert.Equal(t, "450", out.Result.Share.String())
	assert.Equal(t, models.ParticipantParticipating, obligationOf(t, out, 2).Status)
	assert.Equal(t, []int64{2, 3}, f.transport.recipients(notify.KindRecalculated))
}

func TestCollectionService_DeliveryFailureDoesNotRollBack(t *testing.T) {
	f := setupCollectionService(t, user(2, "A"), user(3, "B"))
	f.transport.fail[2] = true
	id := f.create(t, "100")

	f.choose(t, id, 2, lifecycle.Join)
	out := f.choose(t, id, 3, lifecycle.Join)

	assert.Equal(t, models.CollectionAwaitingConfirmation, out.Collection.Status)
	assert.Equal(t, 1, out.Delivery.Failed)
	assert.Equal(t, []int64{3}, f.transport.recipients(notify.KindConfirmRequest))

	c, _, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionAwaitingConfirmation, c.Status)
}

func TestCollectionService_NotAParticipant(t *testing.T) {
	f := setupCollectionService(t, user(2, "A"))
	id := f.create(t, "100")

	_, err := f.svc.RecordChoice(context.Background(), id, 99, lifecycle.Join)

	assert.ErrorIs(t, err, ErrNotAParticipant)
}

func TestCollectionService_AdminOverrides(t *testing.T) {
	ctx := context.Background()
	f := setupCollectionService(t, user(organizerID, "Admin"), user(2, "A"), user(3, "B"))
	id := f.create(t, "300")
	f.choose(t, id, 2, lifecycle.Join)

	_, err := f.svc.ForceAdvanceToPayment(ctx, id)
	assert.ErrorIs(t, err, ErrWrongStage)

	out, err := f.svc.ForceFinalize(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionAwaitingConfirmation, out.Collection.Status)
	assert.Equal(t, "150", obligationOf(t, out, 2).AmountToPay.String())
	assert.Equal(t, models.ParticipantConfirmed, obligationOf(t, out, organizerID).Status)

	out, err = f.svc.ForceAdvanceToPayment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionAwaitingPayment, out.Collection.Status)
	assert.Equal(t, models.ParticipantConfirmed, obligationOf(t, out, 2).Status)

	out, err = f.svc.ForceComplete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionCompleted, out.Collection.Status)
	assert.True(t, out.Result.Forced)

	_, err = f.svc.Cancel(ctx, id)
	assert.ErrorIs(t, err, ErrCollectionNotActive)
}

func TestCollectionService_Cancel(t *testing.T) {
	f := setupCollectionService(t, user(organizerID, "Admin"), user(2, "A"), user(3, "B"))
	id := f.create(t, "300")
	f.transport.take()

	out, err := f.svc.Cancel(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, models.CollectionCancelled, out.Collection.Status)
	assert.Equal(t, []int64{2, 3}, f.transport.recipients(notify.KindCancelled))

	_, _, err = f.svc.Active(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveCollection)
}

func TestCollectionService_AdminOverrideUnknownCollection(t *testing.T) {
	f := setupCollectionService(t)

	_, err := f.svc.ForceFinalize(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrNoActiveCollection)
}

func TestCollectionService_ConcurrentRejectionsSerialize(t *testing.T) {
	f := setupCollectionService(t, user(2, "A"), user(3, "B"), user(4, "C"), user(5, "D"))
	id := f.create(t, "1000")
	for _, u := range []int64{2, 3, 4, 5} {
		f.choose(t, id, u, lifecycle.Join)
	}

	var wg sync.WaitGroup
	for _, u := range []int64{2, 3} {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			_, err := f.svc.RecordChoice(context.Background(), id, u, lifecycle.Reject)
			assert.NoError(t, err)
		}(u)
	}
	wg.Wait()

	_, obligations, err := f.svc.Active(context.Background())
	require.NoError(t, err)
	for _, o := range obligations {
		switch o.UserID {
		case 2, 3:
			assert.Equal(t, models.ParticipantDeclined, o.Status)
		default:
			assert.Equal(t, "500", o.AmountToPay.String())
		}
	}
}

func TestCollectionService_PublishesEvents(t *testing.T) {
	f := setupCollectionService(t, user(2, "A"))
	events := new(mockPublisher)
	f.svc.WithEvents(events)

	events.On("BroadcastCreated", mock.Anything, 1).Return().Once()
	events.On("BroadcastParticipantAction", mock.MatchedBy(func(ev sse.ParticipantActionEvent) bool {
		return ev.UserID == 2 && ev.Choice == "join" && ev.Share == "100.00"
	})).Return().Once()
	events.On("BroadcastTransition", mock.MatchedBy(func(ev sse.TransitionEvent) bool {
		return ev.From == models.CollectionPending && ev.To == models.CollectionAwaitingConfirmation
	})).Return().Once()

	id := f.create(t, "100")
	f.choose(t, id, 2, lifecycle.Join)

	events.AssertExpectations(t)
}

func TestCollectionService_RepeatedJoinSendsNothing(t *testing.T) {
	f := setupCollectionService(t, user(organizerID, "Admin"), user(2, "A"), user(3, "B"))
	id := f.create(t, "100")
	f.choose(t, id, 2, lifecycle.Join)
	f.transport.take()

	out := f.choose(t, id, 2, lifecycle.Join)

	assert.True(t, out.Result.AlreadyMarked)
	assert.Equal(t, models.ParticipantParticipating, out.Result.Status)
	assert.Empty(t, f.transport.take())
	assert.Zero(t, out.Delivery.Sent)
}

func TestCollectionService_EveryoneButOrganizerDeclines(t *testing.T) {
	f := setupCollectionService(t, user(organizerID, "Admin"), user(2, "A"), user(3, "B"))
	id := f.create(t, "300")
	f.choose(t, id, 2, lifecycle.Decline)
	f.transport.take()

	out := f.choose(t, id, 3, lifecycle.Decline)

	assert.Equal(t, models.CollectionCancelled, out.Collection.Status)
	assert.Equal(t, []int64{2, 3}, f.transport.recipients(notify.KindCancelled))
	assert.Equal(t, []int64{organizerID}, f.transport.recipients(notify.KindOrganizerSummary))

	_, _, err := f.svc.Active(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveCollection)
}
