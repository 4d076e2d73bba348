package models

import "time"

const DefaultTimezone = "UTC"

type PostingSchedule struct {
	ID             int64      `db:"id" json:"id"`
	UserDid        string     `db:"user_did" json:"user_did"`
	CronExpression string     `db:"cron_expression" json:"cron_expression"`
	Active         bool       `db:"active" json:"active"`
	Color          string     `db:"color" json:"color"`
	LastExecuted   *time.Time `db:"last_executed" json:"last_executed"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

type ScheduleInput struct {
	CronExpression string `json:"cron_expression"`
	Active         bool   `json:"active"`
	Color          string `json:"color"`
}

// ScheduleWithTimezone is an active schedule joined with its owner's timezone.
type ScheduleWithTimezone struct {
	Schedule PostingSchedule
	Timezone string
}

// DueSchedule is one occurrence the scheduler decided to act on.
type DueSchedule struct {
	ScheduleID int64     `json:"schedule_id"`
	UserDid    string    `json:"user_did"`
	Occurrence time.Time `json:"occurrence"`
}

type UserSettings struct {
	UserDid   string    `db:"user_did" json:"user_did"`
	Timezone  string    `db:"timezone" json:"timezone"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
