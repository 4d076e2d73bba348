package models

import "time"

type PostedImage struct {
	ID         int64     `db:"id" json:"id"`
	StorageKey string    `db:"storage_key" json:"storage_key"`
	UserDid    string    `db:"user_did" json:"user_did"`
	PostText   string    `db:"post_text" json:"post_text"`
	IsNsfw     bool      `db:"is_nsfw" json:"is_nsfw"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	PostedAt   time.Time `db:"posted_at" json:"posted_at"`
}
