package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/database"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/models"
)

var ErrConfigNotFound = errors.New("config not found")

const configColumns = `id, user_id, name, config_text, created_at`

// ConfigService stores the named text blobs the admin hands out to users.
type ConfigService struct {
	db *database.DB
}

func NewConfigService(db *database.DB) *ConfigService {
	return &ConfigService{db: db}
}

func (s *ConfigService) Add(ctx context.Context, userID int64, name, text string) (*models.UserConfig, error) {
	cfg, err := scanConfig(s.db.Pool.QueryRow(ctx, `
		INSERT INTO user_configs (user_id, name, config_text)
		VALUES ($1, $2, $3)
		RETURNING `+configColumns,
		userID, strings.TrimSpace(name), text))
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	return cfg, nil
}

func (s *ConfigService) ListByUser(ctx context.Context, userID int64) ([]models.UserConfig, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+configColumns+` FROM user_configs
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []models.UserConfig
	for rows.Next() {
		var c models.UserConfig
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.ConfigText, &c.CreatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

func (s *ConfigService) Get(ctx context.Context, id int64) (*models.UserConfig, error) {
	cfg, err := scanConfig(s.db.Pool.QueryRow(ctx,
		`SELECT `+configColumns+` FROM user_configs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	return cfg, err
}

// Update changes the name, the text, or both. A blank name or a nil text
// leaves that field untouched.
func (s *ConfigService) Update(ctx context.Context, id int64, name string, text *string) (*models.UserConfig, error) {
	name = strings.TrimSpace(name)
	cfg, err := scanConfig(s.db.Pool.QueryRow(ctx, `
		UPDATE user_configs
		SET name = COALESCE(NULLIF($1, ''), name), config_text = COALESCE($2, config_text)
		WHERE id = $3
		RETURNING `+configColumns,
		name, text, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	return cfg, err
}

func (s *ConfigService) Delete(ctx context.Context, id int64) error {
	result, err := s.db.Pool.Exec(ctx, `DELETE FROM user_configs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrConfigNotFound
	}
	return nil
}

func scanConfig(row pgx.Row) (*models.UserConfig, error) {
	var c models.UserConfig
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.ConfigText, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
