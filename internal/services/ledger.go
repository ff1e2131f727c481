package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/database"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/lifecycle"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
)

const singleActiveConstraint = "ux_collections_single_active"

const collectionColumns = `id, total_amount, description, payment_details, status, created_at`

const activeStatusFilter = `status IN ('pending', 'awaiting_confirmation', 'awaiting_payment')`

const obligationSelect = `
	SELECT cp.id, cp.collection_id, cp.user_id, cp.status, cp.amount_to_pay,
		COALESCE(NULLIF(u.first_name, ''), NULLIF(u.username, ''), u.telegram_id::text)
	FROM collection_participants cp
	JOIN users u ON u.telegram_id = cp.user_id
	WHERE cp.collection_id = $1
	ORDER BY cp.id`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LedgerStore persists collections and their participant obligations.
type LedgerStore struct {
	db *database.DB
}

func NewLedgerStore(db *database.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Create inserts a collection with its obligations in one transaction.
// It fails with ErrCollectionAlreadyActive while another collection is open.
func (s *LedgerStore) Create(ctx context.Context, c *models.Collection, obligations []*models.Obligation) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO collections (total_amount, description, payment_details, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, c.TotalAmount, c.Description, c.PaymentDetails, c.Status).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isSingleActiveViolation(err) {
			return ErrCollectionAlreadyActive
		}
		return fmt.Errorf("failed to create collection: %w", err)
	}

	for _, o := range obligations {
		o.CollectionID = c.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO collection_participants (collection_id, user_id, status, amount_to_pay)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, o.CollectionID, o.UserID, o.Status, o.AmountToPay).Scan(&o.ID)
		if err != nil {
			return fmt.Errorf("failed to add participant %d: %w", o.UserID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *LedgerStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	c, err := scanCollection(s.db.Pool.QueryRow(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCollectionNotFound
	}
	return c, err
}

func (s *LedgerStore) GetActive(ctx context.Context) (*models.Collection, error) {
	c, err := scanCollection(s.db.Pool.QueryRow(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE `+activeStatusFilter+`
		ORDER BY created_at DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveCollection
	}
	return c, err
}

// GetLastCompleted returns the most recently created completed collection.
func (s *LedgerStore) GetLastCompleted(ctx context.Context) (*models.Collection, error) {
	c, err := scanCollection(s.db.Pool.QueryRow(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE status = $1
		ORDER BY created_at DESC LIMIT 1`, models.CollectionCompleted))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCollectionNotFound
	}
	return c, err
}

func (s *LedgerStore) GetObligations(ctx context.Context, collectionID uuid.UUID) ([]*models.Obligation, error) {
	return loadObligations(ctx, s.db.Pool, collectionID)
}

// Mutate locks the collection row, hands the loaded snapshot to fn and
// writes back whatever fn changed, all in one transaction. Concurrent calls
// for the same collection are serialized by the row lock, so each one
// observes the effect of the previous.
func (s *LedgerStore) Mutate(ctx context.Context, collectionID uuid.UUID, organizerID int64, fn func(*lifecycle.Snapshot) (lifecycle.Result, error)) (*lifecycle.Snapshot, lifecycle.Result, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, lifecycle.Result{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := scanCollection(tx.QueryRow(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = $1 FOR UPDATE`, collectionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lifecycle.Result{}, ErrCollectionNotFound
		}
		return nil, lifecycle.Result{}, fmt.Errorf("failed to lock collection: %w", err)
	}

	obligations, err := loadObligations(ctx, tx, collectionID)
	if err != nil {
		return nil, lifecycle.Result{}, err
	}

	snap := &lifecycle.Snapshot{Collection: c, Obligations: obligations, OrganizerID: organizerID}
	before := snap.Clone()

	res, err := fn(snap)
	if err != nil {
		return nil, lifecycle.Result{}, err
	}

	for i, o := range snap.Obligations {
		prev := before.Obligations[i]
		if o.Status == prev.Status && o.AmountToPay.Equal(prev.AmountToPay) {
			continue
		}
		_, err = tx.Exec(ctx, `
			UPDATE collection_participants SET status = $1, amount_to_pay = $2 WHERE id = $3
		`, o.Status, o.AmountToPay, o.ID)
		if err != nil {
			return nil, lifecycle.Result{}, fmt.Errorf("failed to update participant %d: %w", o.UserID, err)
		}
	}

	if snap.Collection.Status != before.Collection.Status {
		_, err = tx.Exec(ctx, `UPDATE collections SET status = $1 WHERE id = $2`, snap.Collection.Status, c.ID)
		if err != nil {
			return nil, lifecycle.Result{}, fmt.Errorf("failed to update collection status: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, lifecycle.Result{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return snap, res, nil
}

func scanCollection(row pgx.Row) (*models.Collection, error) {
	var c models.Collection
	err := row.Scan(&c.ID, &c.TotalAmount, &c.Description, &c.PaymentDetails, &c.Status, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func loadObligations(ctx context.Context, q querier, collectionID uuid.UUID) ([]*models.Obligation, error) {
	rows, err := q.Query(ctx, obligationSelect, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	defer rows.Close()

	var obligations []*models.Obligation
	for rows.Next() {
		var o models.Obligation
		if err := rows.Scan(&o.ID, &o.CollectionID, &o.UserID, &o.Status, &o.AmountToPay, &o.DisplayName); err != nil {
			return nil, err
		}
		obligations = append(obligations, &o)
	}
	return obligations, rows.Err()
}

func isSingleActiveViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == singleActiveConstraint
}
