package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/lifecycle"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/notify"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/services"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const organizerID int64 = 1

type engineFixture struct {
	ledger    *testutil.LedgerDB
	fixtures  *testutil.Fixtures
	engine    *services.CollectionService
	transport *testutil.RecordingTransport
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ledger := testutil.StartLedgerDB(t, organizerID)
	transport := &testutil.RecordingTransport{}
	engine := services.NewCollectionService(
		services.NewLedgerStore(ledger.DB),
		services.NewUserService(ledger.DB),
		notify.NewDispatcher(transport, nil),
		organizerID,
		nil,
	)

	return &engineFixture{
		ledger:    ledger,
		fixtures:  testutil.NewFixtures(ledger.DB),
		engine:    engine,
		transport: transport,
	}
}

func statusOf(obligations []*models.Obligation, userID int64) (models.ParticipantStatus, decimal.Decimal) {
	for _, o := range obligations {
		if o.UserID == userID {
			return o.Status, o.AmountToPay
		}
	}
	return "", decimal.Zero
}

func TestCollectionService_Integration_FullLifecycle(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	alice := f.fixtures.CreateUser(t)
	bob := f.fixtures.CreateUser(t)
	carol := f.fixtures.CreateUser(t)

	out, err := f.engine.CreateCollection(ctx, decimal.RequireFromString("1000"), "Dinner", "card 1234")
	require.NoError(t, err)
	id := out.Collection.ID
	assert.Equal(t, models.CollectionPending, out.Collection.Status)
	assert.Len(t, out.Obligations, 4)
	assert.Equal(t, []notify.Kind{notify.KindInvite}, f.transport.To(alice.TelegramID))
	assert.Equal(t, []notify.Kind{notify.KindOrganizerSummary}, f.transport.To(organizerID))

	_, err = f.engine.RecordChoice(ctx, id, alice.TelegramID, lifecycle.Join)
	require.NoError(t, err)
	_, err = f.engine.RecordChoice(ctx, id, bob.TelegramID, lifecycle.Join)
	require.NoError(t, err)
	out, err = f.engine.RecordChoice(ctx, id, carol.TelegramID, lifecycle.Decline)
	require.NoError(t, err)

	assert.True(t, out.Result.Finalized)
	assert.Equal(t, models.CollectionAwaitingConfirmation, out.Collection.Status)
	status, amount := statusOf(out.Obligations, organizerID)
	assert.Equal(t, models.ParticipantConfirmed, status)
	assert.Equal(t, "333.33", amount.StringFixed(2))

	_, err = f.engine.RecordChoice(ctx, id, alice.TelegramID, lifecycle.Confirm)
	require.NoError(t, err)
	out, err = f.engine.RecordChoice(ctx, id, bob.TelegramID, lifecycle.Reject)
	require.NoError(t, err)

	assert.True(t, out.Result.Recalculated)
	assert.Equal(t, "500.00", out.Result.Share.StringFixed(2))
	status, amount = statusOf(out.Obligations, alice.TelegramID)
	assert.Equal(t, models.ParticipantParticipating, status)
	assert.Equal(t, "500.00", amount.StringFixed(2))
	status, amount = statusOf(out.Obligations, bob.TelegramID)
	assert.Equal(t, models.ParticipantDeclined, status)
	assert.True(t, amount.IsZero())

	out, err = f.engine.RecordChoice(ctx, id, alice.TelegramID, lifecycle.Confirm)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionAwaitingPayment, out.Collection.Status)
	status, _ = statusOf(out.Obligations, organizerID)
	assert.Equal(t, models.ParticipantPaid, status)

	out, err = f.engine.RecordChoice(ctx, id, alice.TelegramID, lifecycle.MarkPaid)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionCompleted, out.Collection.Status)

	// Re-read from the database rather than trusting the returned snapshot.
	stored, obligations, err := f.engine.LastCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, stored.ID)
	collected := decimal.Zero
	for _, o := range obligations {
		if o.Status == models.ParticipantPaid {
			collected = collected.Add(o.AmountToPay)
		}
	}
	assert.Equal(t, "1000.00", collected.StringFixed(2))

	_, _, err = f.engine.Active(ctx)
	assert.ErrorIs(t, err, services.ErrNoActiveCollection)

	_, err = f.engine.RecordChoice(ctx, id, alice.TelegramID, lifecycle.MarkPaid)
	assert.ErrorIs(t, err, services.ErrCollectionNotActive)
}

func TestCollectionService_Integration_SingleActiveCollection(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.fixtures.CreateUser(t)

	first, err := f.engine.CreateCollection(ctx, decimal.RequireFromString("100"), "First", "card")
	require.NoError(t, err)

	_, err = f.engine.CreateCollection(ctx, decimal.RequireFromString("200"), "Second", "card")
	assert.ErrorIs(t, err, services.ErrCollectionAlreadyActive)

	_, err = f.engine.Cancel(ctx, first.Collection.ID)
	require.NoError(t, err)

	_, err = f.engine.CreateCollection(ctx, decimal.RequireFromString("200"), "Second", "card")
	assert.NoError(t, err)
}

func TestCollectionService_Integration_ConcurrentAnswersFinalizeOnce(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	var users []*models.User
	for i := 0; i < 8; i++ {
		users = append(users, f.fixtures.CreateUser(t))
	}

	out, err := f.engine.CreateCollection(ctx, decimal.RequireFromString("900"), "Retreat", "card")
	require.NoError(t, err)
	id := out.Collection.ID

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		finalized int
	)
	for _, u := range users {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			res, err := f.engine.RecordChoice(ctx, id, userID, lifecycle.Join)
			if !assert.NoError(t, err) {
				return
			}
			if res.Result.Finalized {
				mu.Lock()
				finalized++
				mu.Unlock()
			}
		}(u.TelegramID)
	}
	wg.Wait()

	assert.Equal(t, 1, finalized)

	collection, obligations, err := f.engine.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionAwaitingConfirmation, collection.Status)
	for _, o := range obligations {
		assert.Equal(t, "100.00", o.AmountToPay.StringFixed(2), "user %d", o.UserID)
	}
}

func TestUserService_Integration_DeleteRefusedWhileCollecting(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	users := services.NewUserService(f.ledger.DB)
	configs := services.NewConfigService(f.ledger.DB)

	alice := f.fixtures.CreateUser(t)
	f.fixtures.CreateConfig(t, alice, "vpn", "wg0")

	out, err := f.engine.CreateCollection(ctx, decimal.RequireFromString("50"), "Pizza", "card")
	require.NoError(t, err)

	assert.ErrorIs(t, users.Delete(ctx, alice.TelegramID), services.ErrUserInActiveCollection)

	_, err = f.engine.Cancel(ctx, out.Collection.ID)
	require.NoError(t, err)

	require.NoError(t, users.Delete(ctx, alice.TelegramID))
	remaining, err := configs.ListByUser(ctx, alice.TelegramID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestCollectionService_Integration_EveryoneButOrganizerDeclines(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	alice := f.fixtures.CreateUser(t)
	bob := f.fixtures.CreateUser(t, testutil.WithTelegramID(5000))

	out, err := f.engine.CreateCollection(ctx, decimal.RequireFromString("300"), "Boat", "card")
	require.NoError(t, err)
	id := out.Collection.ID

	_, err = f.engine.RecordChoice(ctx, id, alice.TelegramID, lifecycle.Decline)
	require.NoError(t, err)
	out, err = f.engine.RecordChoice(ctx, id, bob.TelegramID, lifecycle.Decline)
	require.NoError(t, err)

	assert.Equal(t, models.CollectionCancelled, out.Collection.Status)
	assert.Contains(t, f.transport.To(bob.TelegramID), notify.KindCancelled)

	stored, _, err := f.engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionCancelled, stored.Status)

	f.ledger.Reset(t)

	organizer := f.ledger.Organizer(t)
	assert.True(t, organizer.IsAdmin)
	registered, err := services.NewUserService(f.ledger.DB).List(ctx)
	require.NoError(t, err)
	require.Len(t, registered, 1)
	assert.Equal(t, organizerID, registered[0].TelegramID)
}
