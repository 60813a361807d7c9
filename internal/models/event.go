package models

import "time"

// Outbound event names pushed to connections.
const (
	EventUserStatusChange    = "user_status_change"
	EventReceiveMessage      = "receive_message"
	EventMessageSent         = "message_sent"
	EventReceiveGroupMessage = "receive_group_message"
	EventGroupMessageSent    = "group_message_sent"
	EventUserTyping          = "user_typing"
	EventUserTypingGroup     = "user_typing_group"
	EventUserStopTyping      = "user_stop_typing"
	EventUserStopTypingGroup = "user_stop_typing_group"
	EventMessagesRead        = "messages_read"
	EventMessageError        = "message_error"
)

// Event is the frame written to a connection.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// StatusChange is the payload of user_status_change. Stamp grows with every
// change of any user, so clients keep the change with the highest stamp.
type StatusChange struct {
	UserID   int        `json:"userId"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
	At       time.Time  `json:"-"`
	Stamp    int64      `json:"stamp"`
}

// GroupMessageEvent is the payload of receive_group_message and group_message_sent.
type GroupMessageEvent struct {
	Message PopulatedMessage `json:"message"`
	Group   Group            `json:"group"`
}

// TypingEvent is the payload of the typing relays. GroupID is zero for direct typing.
type TypingEvent struct {
	UserID  int `json:"userId"`
	GroupID int `json:"groupId,omitempty"`
}

// ReadEvent is the payload of messages_read.
type ReadEvent struct {
	UserID int `json:"userId"`
}

// ErrorEvent is the payload of message_error.
type ErrorEvent struct {
	Error string `json:"error"`
}
