package models

import "time"

// User is a Bluesky account identified by its DID.
type User struct {
	Did       string    `db:"did" json:"did"`
	Handle    string    `db:"handle" json:"handle"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
