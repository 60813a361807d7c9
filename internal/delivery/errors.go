package delivery

import "errors"

var (
	// ErrInvalidMessage covers payloads that can never be delivered.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrPersistence means storage failed and nothing was committed.
	ErrPersistence = errors.New("message could not be saved")
	// ErrUnknownTarget is returned for conversations or groups that do not exist
	// or that the actor does not take part in.
	ErrUnknownTarget = errors.New("unknown target")
)

// ClientMessage is the text pushed to the sender in message_error. Details stay in the logs.
func ClientMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMessage):
		return "invalid message"
	case errors.Is(err, ErrUnknownTarget):
		return "unknown conversation or group"
	default:
		return "message could not be sent"
	}
}
