package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/maheshrc27/skyqueue/internal/models"
)

type UserRepository interface {
	GetByDid(ctx context.Context, did string) (*models.User, bool, error)
	Create(ctx context.Context, tx *sql.Tx, user *models.User) error
	UpdateHandle(ctx context.Context, did, handle string) error
	Remove(ctx context.Context, did string) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByDid(ctx context.Context, did string) (*models.User, bool, error) {
	var user models.User
	query := "SELECT did, handle, created_at FROM users WHERE did = $1"
	err := r.db.QueryRowContext(ctx, query, did).Scan(&user.Did, &user.Handle, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}
	return &user, true, nil
}

// Create inserts the user. Creating an existing DID is a no-op.
func (r *userRepository) Create(ctx context.Context, tx *sql.Tx, user *models.User) error {
	query := `
		INSERT INTO users (did, handle) VALUES ($1, $2)
		ON CONFLICT (did) DO NOTHING
		RETURNING created_at
	`
	err := conn(r.db, tx).QueryRowContext(ctx, query, user.Did, user.Handle).Scan(&user.CreatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		slog.Info(err.Error())
		return classify(err)
	}
	return nil
}

func (r *userRepository) UpdateHandle(ctx context.Context, did, handle string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE users SET handle = $1 WHERE did = $2", handle, did)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove deletes the user together with their queue, schedules, history and
// session.
func (r *userRepository) Remove(ctx context.Context, did string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE did = $1", did)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
