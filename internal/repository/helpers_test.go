package repository

import (
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

// q turns a literal SQL fragment into a sqlmock pattern.
func q(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

func expectOwnerLock(mock sqlmock.Sqlmock, userDid string) {
	mock.ExpectQuery(q("SELECT did FROM users WHERE did = $1 FOR UPDATE")).
		WithArgs(userDid).
		WillReturnRows(sqlmock.NewRows([]string{"did"}).AddRow(userDid))
}

func expectCurrentOrder(mock sqlmock.Sqlmock, userDid, storageKey string, order int) {
	mock.ExpectQuery(q("SELECT queue_order FROM queued_images WHERE user_did = $1 AND storage_key = $2 FOR UPDATE")).
		WithArgs(userDid, storageKey).
		WillReturnRows(sqlmock.NewRows([]string{"queue_order"}).AddRow(order))
}

var queuedImageCols = []string{"storage_key", "user_did", "post_text", "is_nsfw", "queue_order", "created_at"}
