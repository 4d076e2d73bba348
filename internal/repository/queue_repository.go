package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maheshrc27/skyqueue/internal/models"
)

// QueueRepository stores the per-user queue of images waiting to be posted.
// Positions are dense: a user with N queued images holds orders 1..N.
type QueueRepository interface {
	Append(ctx context.Context, img *models.NewQueuedImage) (*models.QueuedImage, error)
	Get(ctx context.Context, userDid, storageKey string) (*models.QueuedImage, error)
	UpdateFields(ctx context.Context, userDid, storageKey string, u models.QueuedImageUpdate) error
	ListForUser(ctx context.Context, userDid string) ([]*models.QueuedImage, error)
	MoveTo(ctx context.Context, userDid, storageKey string, destination int) error
	Delete(ctx context.Context, userDid, storageKey string) error
	DeleteTx(ctx context.Context, tx *sql.Tx, userDid, storageKey string) error
	PeekHead(ctx context.Context, tx *sql.Tx, userDid string) (*models.QueuedImage, bool, error)
}

const queuedImageColumns = "storage_key, user_did, post_text, is_nsfw, queue_order, created_at"

type queueRepository struct {
	db *sql.DB
}

func NewQueueRepository(db *sql.DB) QueueRepository {
	return &queueRepository{db: db}
}

func scanQueuedImage(row interface{ Scan(...any) error }) (*models.QueuedImage, error) {
	var img models.QueuedImage
	err := row.Scan(&img.StorageKey, &img.UserDid, &img.PostText, &img.IsNsfw, &img.QueueOrder, &img.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// lockOwner takes a row lock on the owning user. Every mutation of a user's
// queue goes through it, so writers in other processes serialize as well.
func lockOwner(ctx context.Context, tx *sql.Tx, userDid string) error {
	var did string
	err := tx.QueryRowContext(ctx, `SELECT did FROM users WHERE did = $1 FOR UPDATE`, userDid).Scan(&did)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("owner %s: %w", userDid, ErrNotFound)
		}
		slog.Info(err.Error())
		return classify(err)
	}
	return nil
}

func (r *queueRepository) Append(ctx context.Context, img *models.NewQueuedImage) (*models.QueuedImage, error) {
	queued := &models.QueuedImage{
		StorageKey: img.StorageKey,
		UserDid:    img.UserDid,
		PostText:   img.PostText,
		IsNsfw:     img.IsNsfw,
	}

	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockOwner(ctx, tx, img.UserDid); err != nil {
			return err
		}

		var count, maxOrder int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(MAX(queue_order), 0) FROM queued_images WHERE user_did = $1`,
			img.UserDid,
		).Scan(&count, &maxOrder)
		if err != nil {
			slog.Info(err.Error())
			return classify(err)
		}
		if count >= models.MaxQueueLength {
			return ErrQueueFull
		}

		queued.QueueOrder = maxOrder + 1
		query := `
			INSERT INTO queued_images (storage_key, user_did, post_text, is_nsfw, queue_order)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`
		err = tx.QueryRowContext(ctx, query, img.StorageKey, img.UserDid, img.PostText, img.IsNsfw, queued.QueueOrder).
			Scan(&queued.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return classify(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return queued, nil
}

func (r *queueRepository) Get(ctx context.Context, userDid, storageKey string) (*models.QueuedImage, error) {
	query := `SELECT ` + queuedImageColumns + ` FROM queued_images WHERE user_did = $1 AND storage_key = $2`

	img, err := scanQueuedImage(r.db.QueryRowContext(ctx, query, userDid, storageKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return img, nil
}

func (r *queueRepository) UpdateFields(ctx context.Context, userDid, storageKey string, u models.QueuedImageUpdate) error {
	if u.Empty() {
		return nil
	}

	var sets []string
	var args []any
	if u.PostText != nil {
		args = append(args, *u.PostText)
		sets = append(sets, fmt.Sprintf("post_text = $%d", len(args)))
	}
	if u.IsNsfw != nil {
		args = append(args, *u.IsNsfw)
		sets = append(sets, fmt.Sprintf("is_nsfw = $%d", len(args)))
	}
	args = append(args, userDid, storageKey)

	query := fmt.Sprintf(`UPDATE queued_images SET %s WHERE user_did = $%d AND storage_key = $%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return classify(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *queueRepository) ListForUser(ctx context.Context, userDid string) ([]*models.QueuedImage, error) {
	query := `SELECT ` + queuedImageColumns + ` FROM queued_images WHERE user_did = $1 ORDER BY queue_order ASC`

	rows, err := r.db.QueryContext(ctx, query, userDid)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var images []*models.QueuedImage
	for rows.Next() {
		img, err := scanQueuedImage(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		images = append(images, img)
	}

	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return images, nil
}

// MoveTo relocates an image to destination and shifts the images between the
// old and new position by one. The whole move is a single transaction.
func (r *queueRepository) MoveTo(ctx context.Context, userDid, storageKey string, destination int) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockOwner(ctx, tx, userDid); err != nil {
			return err
		}

		current, err := currentOrder(ctx, tx, userDid, storageKey)
		if err != nil {
			return err
		}
		if destination == current {
			return nil
		}

		var count int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM queued_images WHERE user_did = $1`, userDid).Scan(&count)
		if err != nil {
			slog.Info(err.Error())
			return classify(err)
		}
		if destination < models.MinQueueOrder || destination > count {
			return fmt.Errorf("move %s to %d of %d: %w", storageKey, destination, count, ErrInvalidOrder)
		}

		if err := setOrder(ctx, tx, userDid, storageKey, models.QueueOrderSentinel(current)); err != nil {
			return err
		}

		if destination < current {
			_, err = tx.ExecContext(ctx, `
				UPDATE queued_images SET queue_order = queue_order + 1
				WHERE user_did = $1 AND queue_order >= $2 AND queue_order < $3
			`, userDid, destination, current)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE queued_images SET queue_order = queue_order - 1
				WHERE user_did = $1 AND queue_order > $2 AND queue_order <= $3
			`, userDid, current, destination)
		}
		if err != nil {
			slog.Info(err.Error())
			return classify(err)
		}

		return setOrder(ctx, tx, userDid, storageKey, destination)
	})
}

func (r *queueRepository) Delete(ctx context.Context, userDid, storageKey string) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return r.DeleteTx(ctx, tx, userDid, storageKey)
	})
}

// DeleteTx removes an image and closes the gap it leaves behind. It is the
// single compaction primitive shared by explicit deletes and posted moves.
func (r *queueRepository) DeleteTx(ctx context.Context, tx *sql.Tx, userDid, storageKey string) error {
	if err := lockOwner(ctx, tx, userDid); err != nil {
		return err
	}

	order, err := currentOrder(ctx, tx, userDid, storageKey)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM queued_images WHERE user_did = $1 AND storage_key = $2`, userDid, storageKey)
	if err != nil {
		slog.Info(err.Error())
		return classify(err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE queued_images SET queue_order = queue_order - 1
		WHERE user_did = $1 AND queue_order > $2
	`, userDid, order)
	if err != nil {
		slog.Info(err.Error())
		return classify(err)
	}

	return nil
}

// PeekHead returns the image at position 1. found is false for an empty queue.
func (r *queueRepository) PeekHead(ctx context.Context, tx *sql.Tx, userDid string) (*models.QueuedImage, bool, error) {
	query := `SELECT ` + queuedImageColumns + ` FROM queued_images WHERE user_did = $1 AND queue_order = $2`

	img, err := scanQueuedImage(conn(r.db, tx).QueryRowContext(ctx, query, userDid, models.MinQueueOrder))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}
	return img, true, nil
}

func currentOrder(ctx context.Context, tx *sql.Tx, userDid, storageKey string) (int, error) {
	var order int
	err := tx.QueryRowContext(ctx,
		`SELECT queue_order FROM queued_images WHERE user_did = $1 AND storage_key = $2 FOR UPDATE`,
		userDid, storageKey,
	).Scan(&order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		slog.Info(err.Error())
		return 0, classify(err)
	}
	return order, nil
}

func setOrder(ctx context.Context, tx *sql.Tx, userDid, storageKey string, order int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE queued_images SET queue_order = $1 WHERE user_did = $2 AND storage_key = $3`,
		order, userDid, storageKey,
	)
	if err != nil {
		slog.Info(err.Error())
		return classify(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		slog.Error("queued image vanished during move", "user_did", userDid, "storage_key", storageKey)
		return fmt.Errorf("set order of %s: %w", storageKey, ErrInvariantViolation)
	}
	return nil
}
