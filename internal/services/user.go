package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/database"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrUserInActiveCollection = errors.New("user takes part in the active collection")
)

const userColumns = `telegram_id, username, first_name, is_admin, created_at`

type UserService struct {
	db *database.DB
}

func NewUserService(db *database.DB) *UserService {
	return &UserService{db: db}
}

// GetOrCreate registers a chat user on first contact and refreshes their
// profile on later ones. created reports whether the user is new.
func (s *UserService) GetOrCreate(ctx context.Context, telegramID int64, username, firstName string, isAdmin bool) (user *models.User, created bool, err error) {
	user, err = scanUser(s.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))

	if err == nil {
		if deref(user.Username) != username || deref(user.FirstName) != firstName || user.IsAdmin != isAdmin {
			_, _ = s.db.Pool.Exec(ctx, `
				UPDATE users SET username = $1, first_name = $2, is_admin = $3
				WHERE telegram_id = $4
			`, nullableString(username), nullableString(firstName), isAdmin, telegramID)
			user.Username = nullableString(username)
			user.FirstName = nullableString(firstName)
			user.IsAdmin = isAdmin
		}
		return user, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	user, err = scanUser(s.db.Pool.QueryRow(ctx, `
		INSERT INTO users (telegram_id, username, first_name, is_admin)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO UPDATE SET username = EXCLUDED.username
		RETURNING `+userColumns,
		telegramID, nullableString(username), nullableString(firstName), isAdmin))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	return user, true, nil
}

func (s *UserService) Get(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := scanUser(s.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
}

// ListExcept returns every registered user but one, typically the admin.
func (s *UserService) ListExcept(ctx context.Context, telegramID int64) ([]models.User, error) {
	return s.list(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id <> $1 ORDER BY created_at`, telegramID)
}

func (s *UserService) list(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.TelegramID, &u.Username, &u.FirstName, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Delete removes a user and their configs. Users holding an obligation in
// the open collection cannot be removed until it is finished.
func (s *UserService) Delete(ctx context.Context, telegramID int64) error {
	var busy bool
	err := s.db.Pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM collection_participants cp
			JOIN collections c ON c.id = cp.collection_id
			WHERE cp.user_id = $1 AND c.`+activeStatusFilter+`
		)
	`, telegramID).Scan(&busy)
	if err != nil {
		return err
	}
	if busy {
		return ErrUserInActiveCollection
	}

	result, err := s.db.Pool.Exec(ctx, `DELETE FROM users WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.TelegramID, &u.Username, &u.FirstName, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
