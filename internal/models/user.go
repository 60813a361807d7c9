package models

import "time"

// Presence statuses persisted on the user row and broadcast to clients.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// User is the profile row the core reads for populating messages and writes for presence.
type User struct {
	ID          int        `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Email       string     `db:"email" json:"email,omitempty"`
	Avatar      string     `db:"avatar" json:"avatar"`
	Status      string     `db:"status" json:"status"`
	LastSeen    *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	StatusStamp int64      `db:"status_stamp" json:"-"`
}

// UserSummary is the subset of a user embedded in populated messages.
type UserSummary struct {
	ID     int    `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Avatar string `db:"avatar" json:"avatar"`
}

// Summary strips a user down to its public fields.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Avatar: u.Avatar}
}
