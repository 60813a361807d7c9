package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Inbound frame names.
const (
	TypeUserConnected = "user_connected"
	TypeSendMessage   = "send_message"
	TypeJoinGroup     = "join_group"
	TypeLeaveGroup    = "leave_group"
	TypeTyping        = "typing"
	TypeStopTyping    = "stop_typing"
	TypeMarkRead      = "mark_read"
	TypeDisconnect    = "disconnect"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownFrame   = errors.New("unknown frame type")
)

var validate = validator.New()

// Frame is the wire shape of every inbound and outbound message.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound is one of the closed set of client events below.
type Inbound interface {
	frameType() string
}

type UserConnected struct {
	UserID int `json:"userId" validate:"required,gt=0"`
}

// UnmarshalJSON accepts both {"userId": 7} and a bare 7.
func (u *UserConnected) UnmarshalJSON(data []byte) error {
	var id int
	if err := json.Unmarshal(data, &id); err == nil {
		u.UserID = id
		return nil
	}
	type plain UserConnected
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*u = UserConnected(p)
	return nil
}

type SendMessage struct {
	Sender      int    `json:"sender" validate:"gte=0"`
	Recipient   int    `json:"recipient" validate:"gte=0"`
	Group       int    `json:"group" validate:"gte=0"`
	Content     string `json:"content"`
	Attachments []int  `json:"attachments" validate:"dive,gt=0"`
}

type JoinGroup struct {
	UserID  int `json:"userId" validate:"gte=0"`
	GroupID int `json:"groupId" validate:"required,gt=0"`
}

type LeaveGroup struct {
	UserID  int `json:"userId" validate:"gte=0"`
	GroupID int `json:"groupId" validate:"required,gt=0"`
}

// Typing covers both typing and stop_typing.
type Typing struct {
	Sender    int  `json:"sender" validate:"gte=0"`
	Recipient int  `json:"recipient" validate:"gte=0"`
	Group     int  `json:"group" validate:"gte=0"`
	Stop      bool `json:"-"`
}

type MarkRead struct {
	ConversationID int `json:"conversationId" validate:"gte=0"`
	UserID         int `json:"userId" validate:"gte=0"`
	GroupID        int `json:"groupId" validate:"gte=0"`
}

type Disconnect struct{}

func (UserConnected) frameType() string { return TypeUserConnected }
func (SendMessage) frameType() string   { return TypeSendMessage }
func (JoinGroup) frameType() string     { return TypeJoinGroup }
func (LeaveGroup) frameType() string    { return TypeLeaveGroup }
func (MarkRead) frameType() string      { return TypeMarkRead }
func (Disconnect) frameType() string    { return TypeDisconnect }

func (t Typing) frameType() string {
	if t.Stop {
		return TypeStopTyping
	}
	return TypeTyping
}

// DecodeError reports a frame that could not be turned into an Inbound.
// Type is set when the envelope itself was readable.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses a raw frame into its variant and validates it.
func Decode(raw []byte) (Inbound, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %w", ErrMalformedFrame, err)}
	}

	var in Inbound
	var err error
	switch frame.Type {
	case TypeUserConnected:
		in, err = decodeData[UserConnected](frame.Data)
	case TypeSendMessage:
		in, err = decodeData[SendMessage](frame.Data)
	case TypeJoinGroup:
		in, err = decodeData[JoinGroup](frame.Data)
	case TypeLeaveGroup:
		in, err = decodeData[LeaveGroup](frame.Data)
	case TypeTyping, TypeStopTyping:
		var t Typing
		t, err = decodeData[Typing](frame.Data)
		t.Stop = frame.Type == TypeStopTyping
		in = t
	case TypeMarkRead:
		in, err = decodeData[MarkRead](frame.Data)
	case TypeDisconnect:
		in = Disconnect{}
	default:
		err = ErrUnknownFrame
	}
	if err != nil {
		return nil, &DecodeError{Type: frame.Type, Err: err}
	}
	return in, nil
}

func decodeData[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 || string(data) == "null" {
		return v, fmt.Errorf("%w: missing data", ErrMalformedFrame)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return v, nil
}
