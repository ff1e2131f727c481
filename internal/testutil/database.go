package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/database"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:16-alpine"
	ledgerDBName  = "collectbot_test"
)

// LedgerDB is a migrated collection ledger running in a throwaway Postgres
// container, with the organizer already registered.
type LedgerDB struct {
	DB          *database.DB
	OrganizerID int64
}

// StartLedgerDB boots Postgres, applies the production migrations through
// database.New and Migrate, and registers organizerID as the admin user.
// The container is removed when the test ends.
func StartLedgerDB(t *testing.T, organizerID int64) *LedgerDB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "collectbot",
				"POSTGRES_PASSWORD": "collectbot",
				"POSTGRES_DB":       ledgerDBName,
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithDeadline(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "5432/tcp", "")
	if err != nil {
		t.Fatalf("postgres endpoint: %v", err)
	}

	db, err := database.New(ctx, fmt.Sprintf("postgres://collectbot:collectbot@%s/%s?sslmode=disable", endpoint, ledgerDBName))
	if err != nil {
		t.Fatalf("connect ledger: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate ledger: %v", err)
	}

	l := &LedgerDB{DB: db, OrganizerID: organizerID}
	l.seedOrganizer(t)
	return l
}

// Reset wipes every collection, config and user, then registers the
// organizer again.
func (l *LedgerDB) Reset(t *testing.T) {
	t.Helper()
	_, err := l.DB.Pool.Exec(context.Background(),
		`TRUNCATE collection_participants, collections, user_configs, users RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("reset ledger: %v", err)
	}
	l.seedOrganizer(t)
}

// Organizer loads the organizer's user row.
func (l *LedgerDB) Organizer(t *testing.T) *models.User {
	t.Helper()
	var u models.User
	err := l.DB.Pool.QueryRow(context.Background(), `
		SELECT telegram_id, username, first_name, is_admin, created_at
		FROM users WHERE telegram_id = $1
	`, l.OrganizerID).Scan(&u.TelegramID, &u.Username, &u.FirstName, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		t.Fatalf("load organizer: %v", err)
	}
	return &u
}

func (l *LedgerDB) seedOrganizer(t *testing.T) {
	t.Helper()
	_, err := l.DB.Pool.Exec(context.Background(), `
		INSERT INTO users (telegram_id, first_name, is_admin)
		VALUES ($1, 'Organizer', TRUE)
		ON CONFLICT (telegram_id) DO NOTHING
	`, l.OrganizerID)
	if err != nil {
		t.Fatalf("seed organizer: %v", err)
	}
}
