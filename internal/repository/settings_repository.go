package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
)

type SettingsRepository interface {
	GetByUserDid(ctx context.Context, userDid string) (*models.UserSettings, bool, error)
	UpsertTimezone(ctx context.Context, userDid, timezone string, now time.Time) error
}

type settingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) GetByUserDid(ctx context.Context, userDid string) (*models.UserSettings, bool, error) {
	query := `SELECT user_did, timezone, updated_at FROM user_settings WHERE user_did = $1`

	var settings models.UserSettings
	err := r.db.QueryRowContext(ctx, query, userDid).Scan(&settings.UserDid, &settings.Timezone, &settings.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}

	return &settings, true, nil
}

func (r *settingsRepository) UpsertTimezone(ctx context.Context, userDid, timezone string, now time.Time) error {
	query := `
		INSERT INTO user_settings (user_did, timezone, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_did) DO UPDATE
		SET timezone = EXCLUDED.timezone,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, userDid, timezone, now)
	if err != nil {
		slog.Info(err.Error())
		return classify(err)
	}

	return nil
}
