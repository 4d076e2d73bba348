package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostedImageRepository_MoveToPosted(t *testing.T) {
	// [A1 B2], posting A leaves [B1]
	db, mock := newMock(t)
	repo := NewPostedImageRepository(db, NewQueueRepository(db))
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	postedAt := created.Add(time.Hour)
	img := &models.QueuedImage{StorageKey: "A", UserDid: alice, PostText: "hi", QueueOrder: 1, CreatedAt: created}

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO posted_images")).
		WithArgs("A", alice, "hi", false, created, postedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	expectOwnerLock(mock, alice)
	expectCurrentOrder(mock, alice, "A", 1)
	mock.ExpectExec(q("DELETE FROM queued_images")).
		WithArgs(alice, "A").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("SET queue_order = queue_order - 1 WHERE user_did = $1 AND queue_order > $2")).
		WithArgs(alice, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	posted, err := repo.MoveToPosted(context.Background(), alice, img, postedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(7), posted.ID)
	assert.Equal(t, postedAt, posted.PostedAt)
	assert.Equal(t, "A", posted.StorageKey)
}

func TestPostedImageRepository_MoveToPostedVanishedRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostedImageRepository(db, NewQueueRepository(db))
	img := &models.QueuedImage{StorageKey: "A", UserDid: alice, QueueOrder: 1}

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO posted_images")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))
	expectOwnerLock(mock, alice)
	mock.ExpectQuery(q("SELECT queue_order FROM queued_images")).
		WithArgs(alice, "A").
		WillReturnRows(sqlmock.NewRows([]string{"queue_order"}))
	mock.ExpectRollback()

	_, err := repo.MoveToPosted(context.Background(), alice, img, time.Now())
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPostedImageRepository_ListByUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostedImageRepository(db, NewQueueRepository(db))
	now := time.Now()

	mock.ExpectQuery(q("ORDER BY posted_at DESC LIMIT $2")).
		WithArgs(alice, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "storage_key", "user_did", "post_text", "is_nsfw", "created_at", "posted_at"}).
			AddRow(int64(2), "b.png", alice, "", false, now, now).
			AddRow(int64(1), "a.png", alice, "", true, now, now.Add(-time.Hour)))

	posted, err := repo.ListByUser(context.Background(), alice, 10)
	require.NoError(t, err)
	require.Len(t, posted, 2)
	assert.Equal(t, int64(2), posted[0].ID)
	assert.True(t, posted[1].IsNsfw)
}
