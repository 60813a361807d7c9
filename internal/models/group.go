package models

import "time"

// Group represents a chat group.
type Group struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatorID   int       `db:"creator_id" json:"creator_id"`
	MemberIDs   []int     `db:"-" json:"member_ids"`
	AdminIDs    []int     `db:"-" json:"admin_ids"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// GroupMember is one row of group membership.
type GroupMember struct {
	GroupID  int       `db:"group_id" json:"group_id"`
	UserID   int       `db:"user_id" json:"user_id"`
	IsAdmin  bool      `db:"is_admin" json:"is_admin"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// IsMember reports whether userID is in the loaded member list.
func (g Group) IsMember(userID int) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether userID is in the loaded admin list.
func (g Group) IsAdmin(userID int) bool {
	for _, id := range g.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
