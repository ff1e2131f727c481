package services

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/database"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configCols = []string{"id", "user_id", "name", "config_text", "created_at"}

func setupConfigService(t *testing.T) (*ConfigService, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	db := &database.DB{Pool: mock}
	return NewConfigService(db), mock
}

func TestConfigService_Add(t *testing.T) {
	svc, mock := setupConfigService(t)

	mock.ExpectQuery(`INSERT INTO user_configs`).
		WithArgs(int64(7), "vpn", "[Interface]").
		WillReturnRows(pgxmock.NewRows(configCols).
			AddRow(int64(1), int64(7), "vpn", "[Interface]", time.Now()))

	cfg, err := svc.Add(context.Background(), 7, "  vpn ", "[Interface]")

	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.ID)
	assert.Equal(t, "vpn", cfg.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigService_ListByUser(t *testing.T) {
	svc, mock := setupConfigService(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM user_configs`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(configCols).
			AddRow(int64(2), int64(7), "b", "text b", now).
			AddRow(int64(1), int64(7), "a", "text a", now))

	configs, err := svc.ListByUser(context.Background(), 7)

	require.NoError(t, err)
	assert.Len(t, configs, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigService_Get_NotFound(t *testing.T) {
	svc, mock := setupConfigService(t)

	mock.ExpectQuery(`SELECT .+ FROM user_configs WHERE id`).
		WithArgs(int64(3)).
		WillReturnError(pgx.ErrNoRows)

	_, err := svc.Get(context.Background(), 3)

	assert.ErrorIs(t, err, ErrConfigNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigService_Update_NameOnly(t *testing.T) {
	svc, mock := setupConfigService(t)

	mock.ExpectQuery(`UPDATE user_configs`).
		WithArgs("renamed", (*string)(nil), int64(3)).
		WillReturnRows(pgxmock.NewRows(configCols).
			AddRow(int64(3), int64(7), "renamed", "unchanged", time.Now()))

	cfg, err := svc.Update(context.Background(), 3, " renamed ", nil)

	require.NoError(t, err)
	assert.Equal(t, "renamed", cfg.Name)
	assert.Equal(t, "unchanged", cfg.ConfigText)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigService_Update_NotFound(t *testing.T) {
	svc, mock := setupConfigService(t)
	text := "new"

	mock.ExpectQuery(`UPDATE user_configs`).
		WithArgs("", &text, int64(3)).
		WillReturnError(pgx.ErrNoRows)

	_, err := svc.Update(context.Background(), 3, "", &text)

	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestConfigService_Delete(t *testing.T) {
	svc, mock := setupConfigService(t)

	mock.ExpectExec(`DELETE FROM user_configs`).
		WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	assert.NoError(t, svc.Delete(context.Background(), 3))

	mock.ExpectExec(`DELETE FROM user_configs`).
		WithArgs(int64(4)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, svc.Delete(context.Background(), 4), ErrConfigNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
