package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"chat-realtime/internal/delivery"
	"chat-realtime/internal/models"
	"chat-realtime/internal/presence"
)

// Engine is the part of the delivery core a session drives.
type Engine interface {
	SendDirectMessage(ctx context.Context, origin presence.Handle, in delivery.DirectInput) (models.PopulatedMessage, error)
	SendGroupMessage(ctx context.Context, origin presence.Handle, in delivery.GroupInput) (models.GroupMessageEvent, error)
	MarkRead(ctx context.Context, actorID int, target delivery.ReadTarget) error
	Typing(ctx context.Context, senderID int, sender presence.Handle, target delivery.TypingTarget, stop bool) error
}

// State of a session.
type State int

const (
	StateUnidentified State = iota
	StateIdentified
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnidentified:
		return "unidentified"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session is the per-connection state machine.
type Session struct {
	handle   presence.Handle
	engine   Engine
	registry *presence.Registry
	rooms    *presence.Rooms
	log      *slog.Logger
	// claimed is the gateway-asserted user, 0 when the handshake carried none.
	claimed int

	mu     sync.Mutex
	state  State
	userID int
}

// NewSession creates an unidentified session for handle.
func NewSession(handle presence.Handle, engine Engine, registry *presence.Registry, rooms *presence.Rooms, claimed int, log *slog.Logger) *Session {
	return &Session{
		handle:   handle,
		engine:   engine,
		registry: registry,
		rooms:    rooms,
		claimed:  claimed,
		log:      log,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the bound user, 0 before identification.
func (s *Session) UserID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Receive decodes raw and handles it. Undecodable frames are dropped, except a
// send_message from an identified user which is answered with message_error.
func (s *Session) Receive(ctx context.Context, raw []byte) {
	in, err := Decode(raw)
	if err != nil {
		s.log.Info("dropping inbound frame", "user_id", s.UserID(), "err", err)
		var derr *DecodeError
		if errors.As(err, &derr) && derr.Type == TypeSendMessage && s.State() == StateIdentified {
			s.sendError(delivery.ErrInvalidMessage)
		}
		return
	}
	s.Handle(ctx, in)
}

// Handle runs one transition. Engine calls are detached from ctx cancellation
// so a disconnect never aborts a send halfway.
func (s *Session) Handle(ctx context.Context, in Inbound) {
	ctx = context.WithoutCancel(ctx)

	if _, ok := in.(Disconnect); ok {
		s.Close()
		return
	}

	s.mu.Lock()
	state, userID := s.state, s.userID
	s.mu.Unlock()

	switch state {
	case StateClosed:
		return
	case StateUnidentified:
		connected, ok := in.(UserConnected)
		if !ok {
			s.log.Debug("ignoring frame before user_connected", "type", in.frameType())
			return
		}
		s.identify(connected)
		return
	}

	switch ev := in.(type) {
	case UserConnected:
		if ev.UserID != userID {
			s.log.Warn("ignoring user_connected for another user", "user_id", userID, "requested", ev.UserID)
		}
	case SendMessage:
		s.sendMessage(ctx, userID, ev)
	case JoinGroup:
		if !s.owns(userID, ev.UserID, ev.frameType()) {
			return
		}
		s.rooms.Join(ev.GroupID, s.handle)
	case LeaveGroup:
		if !s.owns(userID, ev.UserID, ev.frameType()) {
			return
		}
		s.rooms.Leave(ev.GroupID, s.handle)
	case Typing:
		if !s.owns(userID, ev.Sender, ev.frameType()) {
			return
		}
		target := delivery.TypingTarget{RecipientID: ev.Recipient, GroupID: ev.Group}
		if err := s.engine.Typing(ctx, userID, s.handle, target, ev.Stop); err != nil {
			s.log.Info("typing not relayed", "user_id", userID, "err", err)
		}
	case MarkRead:
		if !s.owns(userID, ev.UserID, ev.frameType()) {
			return
		}
		target := delivery.ReadTarget{ConversationID: ev.ConversationID, GroupID: ev.GroupID}
		if err := s.engine.MarkRead(ctx, userID, target); err != nil {
			s.log.Info("mark read failed", "user_id", userID, "err", err)
		}
	}
}

// Close moves the session to Closed from any state. The handle leaves every
// room and presence is demoted if this handle was still the user's current one.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasIdentified := s.state == StateIdentified
	s.state = StateClosed
	userID := s.userID
	s.mu.Unlock()

	s.rooms.LeaveAll(s.handle)
	if wasIdentified {
		if _, ok := s.registry.Disconnect(s.handle); !ok {
			s.log.Debug("connection was already superseded", "user_id", userID)
		}
	}
	s.handle.Close()
}

func (s *Session) identify(ev UserConnected) {
	if s.claimed != 0 && ev.UserID != s.claimed {
		s.log.Warn("user_connected does not match authenticated user", "claimed", s.claimed, "requested", ev.UserID)
		s.sendError(delivery.ErrInvalidMessage)
		return
	}

	s.mu.Lock()
	if s.state != StateUnidentified {
		s.mu.Unlock()
		return
	}
	s.state = StateIdentified
	s.userID = ev.UserID
	s.mu.Unlock()

	previous, _ := s.registry.Connect(ev.UserID, s.handle)
	if previous != nil {
		s.log.Info("replacing previous connection", "user_id", ev.UserID, "previous_conn_id", previous.ID())
		previous.Close()
	}
	s.log.Info("user connected", "user_id", ev.UserID)
}

func (s *Session) sendMessage(ctx context.Context, userID int, ev SendMessage) {
	if ev.Sender != 0 && ev.Sender != userID {
		s.log.Warn("rejecting message sent on behalf of another user", "user_id", userID, "sender", ev.Sender)
		s.sendError(delivery.ErrInvalidMessage)
		return
	}
	if (ev.Recipient == 0) == (ev.Group == 0) {
		s.sendError(fmt.Errorf("%w: exactly one of recipient or group is required", delivery.ErrInvalidMessage))
		return
	}

	var err error
	if ev.Group != 0 {
		_, err = s.engine.SendGroupMessage(ctx, s.handle, delivery.GroupInput{
			SenderID: userID, GroupID: ev.Group, Content: ev.Content, Attachments: ev.Attachments,
		})
	} else {
		_, err = s.engine.SendDirectMessage(ctx, s.handle, delivery.DirectInput{
			SenderID: userID, RecipientID: ev.Recipient, Content: ev.Content, Attachments: ev.Attachments,
		})
	}
	if err != nil {
		s.sendError(err)
	}
}

// owns reports whether a payload's self-declared user matches the bound one.
func (s *Session) owns(userID, declared int, frameType string) bool {
	if declared == 0 || declared == userID {
		return true
	}
	s.log.Warn("ignoring frame declared for another user", "type", frameType, "user_id", userID, "declared", declared)
	return false
}

func (s *Session) sendError(err error) {
	evt := models.Event{Type: models.EventMessageError, Data: models.ErrorEvent{Error: delivery.ClientMessage(err)}}
	if sendErr := s.handle.Send(evt); sendErr != nil {
		s.log.Debug("message_error dropped", "err", sendErr)
	}
}
