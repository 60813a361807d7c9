package models

import "time"

// Conversation groups messages either between two users or within one group.
// Direct conversations store the pair ordered so that User1ID < User2ID.
type Conversation struct {
	ID            int         `db:"id" json:"id"`
	User1ID       *int        `db:"user1_id" json:"user1_id,omitempty"`
	User2ID       *int        `db:"user2_id" json:"user2_id,omitempty"`
	GroupID       *int        `db:"group_id" json:"group_id,omitempty"`
	LastMessageID *int        `db:"last_message_id" json:"last_message_id,omitempty"`
	UnreadCount   map[int]int `db:"-" json:"unread_count"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// Participants returns both users of a direct conversation, or nil for a group one.
func (c Conversation) Participants() []int {
	if c.User1ID == nil || c.User2ID == nil {
		return nil
	}
	return []int{*c.User1ID, *c.User2ID}
}

// OtherParticipant returns the participant that is not userID.
func (c Conversation) OtherParticipant(userID int) (int, bool) {
	if c.User1ID == nil || c.User2ID == nil {
		return 0, false
	}
	switch userID {
	case *c.User1ID:
		return *c.User2ID, true
	case *c.User2ID:
		return *c.User1ID, true
	}
	return 0, false
}

// Unread returns the unread counter of userID, zero when absent.
func (c Conversation) Unread(userID int) int {
	return c.UnreadCount[userID]
}

// DirectConversation is a direct conversation opened by one participant,
// together with the other participant and the message history.
type DirectConversation struct {
	Conversation Conversation
	Other        User
	Messages     []PopulatedMessage
}
