package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
)

type ScheduleRepository interface {
	ListActiveWithTimezone(ctx context.Context) ([]*models.ScheduleWithTimezone, error)
	ListByUser(ctx context.Context, userDid string) ([]*models.PostingSchedule, error)
	ReplaceForUser(ctx context.Context, userDid string, schedules []models.ScheduleInput) ([]*models.PostingSchedule, error)
	MarkExecuted(ctx context.Context, tx *sql.Tx, scheduleID int64, occurrence, now time.Time) (bool, error)
}

const scheduleColumns = "s.id, s.user_did, s.cron_expression, s.active, s.color, s.last_executed, s.created_at, s.updated_at"

type scheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

func scanSchedule(row interface{ Scan(...any) error }, extra ...any) (*models.PostingSchedule, error) {
	var s models.PostingSchedule
	var lastExecuted sql.NullTime
	dest := append([]any{&s.ID, &s.UserDid, &s.CronExpression, &s.Active, &s.Color, &lastExecuted, &s.CreatedAt, &s.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if lastExecuted.Valid {
		t := lastExecuted.Time
		s.LastExecuted = &t
	}
	return &s, nil
}

// ListActiveWithTimezone joins every active schedule with its owner's
// timezone. Owners without settings fall back to UTC.
func (r *scheduleRepository) ListActiveWithTimezone(ctx context.Context) ([]*models.ScheduleWithTimezone, error) {
	query := `
		SELECT ` + scheduleColumns + `, COALESCE(us.timezone, '` + models.DefaultTimezone + `')
		FROM posting_schedules s
		LEFT JOIN user_settings us ON us.user_did = s.user_did
		WHERE s.active
		ORDER BY s.id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var result []*models.ScheduleWithTimezone
	for rows.Next() {
		var tz string
		s, err := scanSchedule(rows, &tz)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		result = append(result, &models.ScheduleWithTimezone{Schedule: *s, Timezone: tz})
	}

	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return result, nil
}

func (r *scheduleRepository) ListByUser(ctx context.Context, userDid string) ([]*models.PostingSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM posting_schedules s WHERE s.user_did = $1 ORDER BY s.id`

	rows, err := r.db.QueryContext(ctx, query, userDid)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var schedules []*models.PostingSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		schedules = append(schedules, s)
	}

	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return schedules, nil
}

// ReplaceForUser swaps the user's schedules for the given set atomically.
func (r *scheduleRepository) ReplaceForUser(ctx context.Context, userDid string, schedules []models.ScheduleInput) ([]*models.PostingSchedule, error) {
	var inserted []*models.PostingSchedule

	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockOwner(ctx, tx, userDid); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM posting_schedules WHERE user_did = $1`, userDid); err != nil {
			slog.Info(err.Error())
			return classify(err)
		}

		query := `
			INSERT INTO posting_schedules (user_did, cron_expression, active, color)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, updated_at
		`
		for _, in := range schedules {
			s := &models.PostingSchedule{
				UserDid:        userDid,
				CronExpression: in.CronExpression,
				Active:         in.Active,
				Color:          in.Color,
			}
			err := tx.QueryRowContext(ctx, query, userDid, in.CronExpression, in.Active, in.Color).
				Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
			if err != nil {
				slog.Info(err.Error())
				return classify(err)
			}
			inserted = append(inserted, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return inserted, nil
}

// MarkExecuted claims occurrence for the schedule by stamping it as executed
// at now. It reports false when the occurrence was already claimed, or the
// schedule no longer exists, and changes nothing in that case. Concurrent
// claims of one occurrence block on the row and only the first succeeds.
func (r *scheduleRepository) MarkExecuted(ctx context.Context, tx *sql.Tx, scheduleID int64, occurrence, now time.Time) (bool, error) {
	query := `
		UPDATE posting_schedules
		SET last_executed = GREATEST(COALESCE(last_executed, $1), $1),
			updated_at = $1
		WHERE id = $2 AND (last_executed IS NULL OR last_executed < $3)
	`

	result, err := conn(r.db, tx).ExecContext(ctx, query, now, scheduleID, occurrence)
	if err != nil {
		slog.Info(err.Error())
		return false, classify(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return affected == 1, nil
}
