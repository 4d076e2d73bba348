package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionCols = []string{"user_did", "pds_url", "access_token", "expires_at", "updated_at"}

func TestSessionRepository_GetByDidMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepository(db)

	mock.ExpectQuery(q("FROM bluesky_sessions WHERE user_did = $1")).
		WithArgs(alice).
		WillReturnRows(sqlmock.NewRows(sessionCols))

	_, err := repo.GetByDid(context.Background(), alice)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepository_ListExpiringBetween(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepository(db)
	from := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	mock.ExpectQuery(q("WHERE expires_at > $1 AND expires_at <= $2")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(alice, "https://bsky.social", "sealed", from.Add(10*time.Minute), from))

	sessions, err := repo.ListExpiringBetween(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, alice, sessions[0].UserDid)
}
