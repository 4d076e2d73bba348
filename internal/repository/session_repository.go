package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
)

type SessionRepository interface {
	GetByDid(ctx context.Context, userDid string) (*models.BlueskySession, error)
	Upsert(ctx context.Context, s *models.BlueskySession) error
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.BlueskySession, error)
}

type sessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) GetByDid(ctx context.Context, userDid string) (*models.BlueskySession, error) {
	query := `SELECT user_did, pds_url, access_token, expires_at, updated_at FROM bluesky_sessions WHERE user_did = $1`

	var s models.BlueskySession
	err := r.db.QueryRowContext(ctx, query, userDid).Scan(&s.UserDid, &s.PdsURL, &s.AccessToken, &s.ExpiresAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &s, nil
}

// Upsert stores a session whose AccessToken is already encrypted.
func (r *sessionRepository) Upsert(ctx context.Context, s *models.BlueskySession) error {
	query := `
		INSERT INTO bluesky_sessions (user_did, pds_url, access_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_did) DO UPDATE
		SET pds_url = EXCLUDED.pds_url,
			access_token = EXCLUDED.access_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query, s.UserDid, s.PdsURL, s.AccessToken, s.ExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return classify(err)
	}
	return nil
}

// ListExpiringBetween returns sessions expiring in (from, to], soonest first.
func (r *sessionRepository) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.BlueskySession, error) {
	query := `
		SELECT user_did, pds_url, access_token, expires_at, updated_at
		FROM bluesky_sessions
		WHERE expires_at > $1 AND expires_at <= $2
		ORDER BY expires_at
	`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.BlueskySession
	for rows.Next() {
		var s models.BlueskySession
		if err := rows.Scan(&s.UserDid, &s.PdsURL, &s.AccessToken, &s.ExpiresAt, &s.UpdatedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		sessions = append(sessions, &s)
	}

	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return sessions, nil
}
