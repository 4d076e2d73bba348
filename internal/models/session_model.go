package models

import "time"

// BlueskySession holds the credentials used to post on behalf of a user.
// AccessToken is stored encrypted.
type BlueskySession struct {
	UserDid     string    `db:"user_did" json:"user_did"`
	PdsURL      string    `db:"pds_url" json:"pds_url"`
	AccessToken string    `db:"access_token" json:"-"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
