package models

import "time"

// Valid queue positions are 1..MaxQueueLength. A row being moved is parked at
// -abs(order) - MaxQueueLength, which can never overlap a valid position.
const (
	MinQueueOrder  = 1
	MaxQueueLength = 10000
)

func QueueOrderSentinel(current int) int {
	if current < 0 {
		current = -current
	}
	return -current - MaxQueueLength
}

type QueuedImage struct {
	StorageKey string    `db:"storage_key" json:"storage_key"`
	UserDid    string    `db:"user_did" json:"user_did"`
	PostText   string    `db:"post_text" json:"post_text"`
	IsNsfw     bool      `db:"is_nsfw" json:"is_nsfw"`
	QueueOrder int       `db:"queue_order" json:"queue_order"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type NewQueuedImage struct {
	UserDid    string
	StorageKey string
	PostText   string
	IsNsfw     bool
}

// QueuedImageUpdate is a partial update; nil fields are left untouched.
type QueuedImageUpdate struct {
	PostText *string `json:"post_text,omitempty"`
	IsNsfw   *bool   `json:"is_nsfw,omitempty"`
}

func (u QueuedImageUpdate) Empty() bool {
	return u.PostText == nil && u.IsNsfw == nil
}
