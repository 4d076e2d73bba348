package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
)

type PostedImageRepository interface {
	MoveToPosted(ctx context.Context, userDid string, img *models.QueuedImage, postedAt time.Time) (*models.PostedImage, error)
	ListByUser(ctx context.Context, userDid string, limit int) ([]*models.PostedImage, error)
}

type postedImageRepository struct {
	db    *sql.DB
	queue QueueRepository
}

func NewPostedImageRepository(db *sql.DB, queue QueueRepository) PostedImageRepository {
	return &postedImageRepository{db: db, queue: queue}
}

// MoveToPosted records img as posted and removes it from the queue in one
// transaction. If the image is no longer queued nothing is written.
func (r *postedImageRepository) MoveToPosted(ctx context.Context, userDid string, img *models.QueuedImage, postedAt time.Time) (*models.PostedImage, error) {
	posted := &models.PostedImage{
		StorageKey: img.StorageKey,
		UserDid:    userDid,
		PostText:   img.PostText,
		IsNsfw:     img.IsNsfw,
		CreatedAt:  img.CreatedAt,
		PostedAt:   postedAt,
	}

	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO posted_images (storage_key, user_did, post_text, is_nsfw, created_at, posted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`
		err := tx.QueryRowContext(ctx, query,
			posted.StorageKey, posted.UserDid, posted.PostText, posted.IsNsfw, posted.CreatedAt, posted.PostedAt,
		).Scan(&posted.ID)
		if err != nil {
			slog.Info(err.Error())
			return classify(err)
		}

		if err := r.queue.DeleteTx(ctx, tx, userDid, img.StorageKey); err != nil {
			if errors.Is(err, ErrNotFound) {
				slog.Error("posted image missing from queue", "user_did", userDid, "storage_key", img.StorageKey)
				return fmt.Errorf("move %s to posted: %w", img.StorageKey, ErrInvariantViolation)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return posted, nil
}

func (r *postedImageRepository) ListByUser(ctx context.Context, userDid string, limit int) ([]*models.PostedImage, error) {
	query := `
		SELECT id, storage_key, user_did, post_text, is_nsfw, created_at, posted_at
		FROM posted_images
		WHERE user_did = $1
		ORDER BY posted_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userDid, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posted []*models.PostedImage
	for rows.Next() {
		var p models.PostedImage
		if err := rows.Scan(&p.ID, &p.StorageKey, &p.UserDid, &p.PostText, &p.IsNsfw, &p.CreatedAt, &p.PostedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posted = append(posted, &p)
	}

	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return posted, nil
}
