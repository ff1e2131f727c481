package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/database"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
)

// Fixtures provides factory methods for creating test data
type Fixtures struct {
	db      *database.DB
	counter int64
}

// NewFixtures creates a new fixtures factory
func NewFixtures(db *database.DB) *Fixtures {
	return &Fixtures{db: db}
}

// CreateUser registers a chat user with a generated Telegram ID and name
func (f *Fixtures) CreateUser(t *testing.T, opts ...UserOption) *models.User {
	t.Helper()
	f.counter++

	firstName := fmt.Sprintf("User %d", f.counter)
	username := fmt.Sprintf("user%d", f.counter)
	user := &models.User{
		TelegramID: 1000 + f.counter,
		FirstName:  &firstName,
		Username:   &username,
	}

	for _, opt := range opts {
		opt(user)
	}

	ctx := context.Background()
	err := f.db.Pool.QueryRow(ctx, `
		INSERT INTO users (telegram_id, username, first_name, is_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, user.TelegramID, user.Username, user.FirstName, user.IsAdmin).Scan(&user.CreatedAt)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user
}

// UserOption configures a test user
type UserOption func(*models.User)

// WithTelegramID sets the user's Telegram ID
func WithTelegramID(id int64) UserOption {
	return func(u *models.User) {
		u.TelegramID = id
	}
}

// CreateConfig attaches a config to the given user
func (f *Fixtures) CreateConfig(t *testing.T, user *models.User, name, text string) *models.UserConfig {
	t.Helper()

	cfg := &models.UserConfig{UserID: user.TelegramID, Name: name, ConfigText: text}
	err := f.db.Pool.QueryRow(context.Background(), `
		INSERT INTO user_configs (user_id, name, config_text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, cfg.UserID, cfg.Name, cfg.ConfigText).Scan(&cfg.ID, &cfg.CreatedAt)
	if err != nil {
		t.Fatalf("failed to create config: %v", err)
	}

	return cfg
}
