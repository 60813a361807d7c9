// Package delivery persists messages and read state and pushes the resulting
// events to whoever is online.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-realtime/internal/conversation"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/presence"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/telemetry"
)

const (
	kindDirect = "direct"
	kindGroup  = "group"
)

// Publisher receives domain events after each committed change.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// DirectInput is a message from one user to another.
type DirectInput struct {
	SenderID    int
	RecipientID int
	Content     string
	Attachments []int
}

// GroupInput is a message posted to a group.
type GroupInput struct {
	SenderID    int
	GroupID     int
	Content     string
	Attachments []int
}

// ReadTarget selects what MarkRead clears. Exactly one field is set.
type ReadTarget struct {
	ConversationID int
	GroupID        int
}

// TypingTarget selects who sees a typing notification. Exactly one field is set.
type TypingTarget struct {
	RecipientID int
	GroupID     int
}

// Engine is the delivery core. It holds no per-connection state.
type Engine struct {
	store    repositories.Store
	registry *presence.Registry
	rooms    *presence.Rooms
	events   Publisher
	log      *slog.Logger
	tracer   trace.Tracer
	producer string
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithProducer names the service in published event metadata.
func WithProducer(name string) Option {
	return func(e *Engine) { e.producer = name }
}

// NewEngine wires the engine. events may be nil.
func NewEngine(store repositories.Store, registry *presence.Registry, rooms *presence.Rooms, events Publisher, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		registry: registry,
		rooms:    rooms,
		events:   events,
		log:      log,
		tracer:   telemetry.Tracer("chat-realtime/delivery"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SendDirectMessage stores a direct message, bumps the recipient's unread
// counter and pushes receive_message and message_sent.
func (e *Engine) SendDirectMessage(ctx context.Context, origin presence.Handle, in DirectInput) (models.PopulatedMessage, error) {
	ctx, span := e.tracer.Start(ctx, "delivery.send_direct", trace.WithAttributes(
		attribute.Int("sender_id", in.SenderID),
		attribute.Int("recipient_id", in.RecipientID),
	))
	defer span.End()

	if err := validateBody(in.Content, in.Attachments); err != nil {
		return e.reject(span, kindDirect, err)
	}
	if in.RecipientID == 0 {
		return e.reject(span, kindDirect, fmt.Errorf("%w: recipient is required", ErrInvalidMessage))
	}
	pair, err := conversation.PairKey(in.SenderID, in.RecipientID)
	if err != nil {
		return e.reject(span, kindDirect, fmt.Errorf("%w: %w", ErrInvalidMessage, err))
	}

	now := e.now()
	recipientID := in.RecipientID
	var saved models.Message
	err = e.store.WithTx(ctx, func(tx repositories.Store) error {
		var err error
		saved, err = tx.Messages().Create(ctx, models.Message{
			SenderID:      in.SenderID,
			RecipientID:   &recipientID,
			Content:       in.Content,
			AttachmentIDs: in.Attachments,
			CreatedAt:     now,
		})
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		conv, err := tx.Conversations().UpsertDirect(ctx, pair, &saved.ID, now)
		if err != nil {
			return err
		}
		for _, u := range conversation.OnSend(in.SenderID, []int{pair.Low, pair.High}) {
			if err := repositories.Apply(ctx, tx.Conversations(), conv.ID, u); err != nil {
				return fmt.Errorf("update unread: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return e.fail(span, kindDirect, in.SenderID, err)
	}

	populated := e.populate(ctx, saved)
	if h, ok := e.registry.Lookup(in.RecipientID); ok {
		e.push(h, models.Event{Type: models.EventReceiveMessage, Data: populated})
		observability.IncMessage(kindDirect, observability.OutcomeDelivered)
	} else {
		observability.IncMessage(kindDirect, observability.OutcomeOffline)
	}
	if origin != nil {
		e.push(origin, models.Event{Type: models.EventMessageSent, Data: populated})
	}

	e.publish(ctx, observability.RoutingDirectMessage, "messages.direct.created.v1", populated)
	return populated, nil
}

// SendGroupMessage stores a group message and pushes it to every online member
// except the sender. Group conversations keep no unread counters on send.
func (e *Engine) SendGroupMessage(ctx context.Context, origin presence.Handle, in GroupInput) (models.GroupMessageEvent, error) {
	ctx, span := e.tracer.Start(ctx, "delivery.send_group", trace.WithAttributes(
		attribute.Int("sender_id", in.SenderID),
		attribute.Int("group_id", in.GroupID),
	))
	defer span.End()

	if err := validateBody(in.Content, in.Attachments); err != nil {
		_, err = e.reject(span, kindGroup, err)
		return models.GroupMessageEvent{}, err
	}
	if in.GroupID == 0 {
		_, err := e.reject(span, kindGroup, fmt.Errorf("%w: group is required", ErrInvalidMessage))
		return models.GroupMessageEvent{}, err
	}

	group, err := e.store.Groups().Get(ctx, in.GroupID)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		_, err = e.reject(span, kindGroup, fmt.Errorf("%w: group %d", ErrUnknownTarget, in.GroupID))
		return models.GroupMessageEvent{}, err
	}
	if err != nil {
		_, err = e.fail(span, kindGroup, in.SenderID, err)
		return models.GroupMessageEvent{}, err
	}
	if !group.IsMember(in.SenderID) {
		_, err = e.reject(span, kindGroup, fmt.Errorf("%w: sender is not a member of group %d", ErrInvalidMessage, in.GroupID))
		return models.GroupMessageEvent{}, err
	}

	now := e.now()
	groupID := in.GroupID
	var saved models.Message
	err = e.store.WithTx(ctx, func(tx repositories.Store) error {
		var err error
		saved, err = tx.Messages().Create(ctx, models.Message{
			SenderID:      in.SenderID,
			GroupID:       &groupID,
			Content:       in.Content,
			AttachmentIDs: in.Attachments,
			CreatedAt:     now,
		})
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		_, err = tx.Conversations().UpsertGroup(ctx, groupID, &saved.ID, now)
		return err
	})
	if err != nil {
		_, err = e.fail(span, kindGroup, in.SenderID, err)
		return models.GroupMessageEvent{}, err
	}

	// membership may have changed while the message was being stored
	members, err := e.store.Groups().ListMembers(ctx, groupID)
	if err != nil {
		e.log.Warn("reload group members failed, using pre-send membership", "group_id", groupID, "err", err)
		members = group.MemberIDs
	}
	group.MemberIDs = members

	evt := models.GroupMessageEvent{Message: e.populate(ctx, saved), Group: group}
	for _, memberID := range members {
		if memberID == in.SenderID {
			continue
		}
		h, ok := e.registry.Lookup(memberID)
		if !ok {
			observability.IncMessage(kindGroup, observability.OutcomeOffline)
			continue
		}
		e.push(h, models.Event{Type: models.EventReceiveGroupMessage, Data: evt})
		observability.IncMessage(kindGroup, observability.OutcomeDelivered)
	}
	if origin != nil {
		e.push(origin, models.Event{Type: models.EventGroupMessageSent, Data: evt})
	}

	e.publish(ctx, observability.RoutingGroupMessage, "messages.group.created.v1", evt)
	return evt, nil
}

// MarkRead clears the actor's unread state for a direct conversation or a group.
func (e *Engine) MarkRead(ctx context.Context, actorID int, target ReadTarget) error {
	ctx, span := e.tracer.Start(ctx, "delivery.mark_read", trace.WithAttributes(
		attribute.Int("user_id", actorID),
		attribute.Int("conversation_id", target.ConversationID),
		attribute.Int("group_id", target.GroupID),
	))
	defer span.End()

	var err error
	switch {
	case target.ConversationID != 0 && target.GroupID != 0:
		err = fmt.Errorf("%w: both conversation and group given", ErrUnknownTarget)
	case target.ConversationID != 0:
		err = e.markConversationRead(ctx, actorID, target.ConversationID)
	case target.GroupID != 0:
		err = e.markGroupRead(ctx, actorID, target.GroupID)
	default:
		err = fmt.Errorf("%w: no conversation or group given", ErrUnknownTarget)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (e *Engine) markConversationRead(ctx context.Context, actorID, conversationID int) error {
	conv, err := e.store.Conversations().FindByID(ctx, conversationID)
	if errors.Is(err, repositories.ErrConversationNotFound) {
		return fmt.Errorf("%w: conversation %d", ErrUnknownTarget, conversationID)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if conv.GroupID != nil {
		return e.markGroupRead(ctx, actorID, *conv.GroupID)
	}
	other, ok := conv.OtherParticipant(actorID)
	if !ok {
		return fmt.Errorf("%w: user %d is not in conversation %d", ErrUnknownTarget, actorID, conversationID)
	}

	now := e.now()
	var updated int64
	err = e.store.WithTx(ctx, func(tx repositories.Store) error {
		if err := repositories.Apply(ctx, tx.Conversations(), conv.ID, conversation.OnRead(actorID)); err != nil {
			return fmt.Errorf("reset unread: %w", err)
		}
		n, err := tx.Messages().MarkDirectRead(ctx, other, actorID, now)
		updated = n
		return err
	})
	if err != nil {
		e.log.Error("mark conversation read failed", "user_id", actorID, "conversation_id", conversationID, "err", err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if h, ok := e.registry.Lookup(other); ok {
		e.push(h, models.Event{Type: models.EventMessagesRead, Data: models.ReadEvent{UserID: actorID}})
	}
	e.publish(ctx, observability.RoutingMessagesRead, "messages.read.v1", readRecord{
		UserID: actorID, ConversationID: conv.ID, Messages: updated, ReadAt: now,
	})
	return nil
}

func (e *Engine) markGroupRead(ctx context.Context, actorID, groupID int) error {
	group, err := e.store.Groups().Get(ctx, groupID)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		return fmt.Errorf("%w: group %d", ErrUnknownTarget, groupID)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if !group.IsMember(actorID) {
		return fmt.Errorf("%w: user %d is not in group %d", ErrUnknownTarget, actorID, groupID)
	}

	now := e.now()
	var (
		updated int64
		convID  int
	)
	err = e.store.WithTx(ctx, func(tx repositories.Store) error {
		n, err := tx.Messages().MarkGroupRead(ctx, groupID, actorID, now)
		if err != nil {
			return fmt.Errorf("mark group messages: %w", err)
		}
		updated = n
		conv, err := tx.Conversations().UpsertGroup(ctx, groupID, nil, now)
		if err != nil {
			return err
		}
		convID = conv.ID
		return repositories.Apply(ctx, tx.Conversations(), conv.ID, conversation.OnRead(actorID))
	})
	if err != nil {
		e.log.Error("mark group read failed", "user_id", actorID, "group_id", groupID, "err", err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	e.publish(ctx, observability.RoutingMessagesRead, "messages.read.v1", readRecord{
		UserID: actorID, ConversationID: convID, GroupID: groupID, Messages: updated, ReadAt: now,
	})
	return nil
}

// Typing relays a typing or stop-typing notification. Nothing is stored.
func (e *Engine) Typing(ctx context.Context, senderID int, sender presence.Handle, target TypingTarget, stop bool) error {
	switch {
	case target.RecipientID != 0 && target.GroupID != 0:
		return fmt.Errorf("%w: both recipient and group given", ErrUnknownTarget)
	case target.RecipientID != 0:
		h, ok := e.registry.Lookup(target.RecipientID)
		if !ok {
			return nil
		}
		evtType := models.EventUserTyping
		if stop {
			evtType = models.EventUserStopTyping
		}
		e.push(h, models.Event{Type: evtType, Data: models.TypingEvent{UserID: senderID}})
		return nil
	case target.GroupID != 0:
		evtType := models.EventUserTypingGroup
		if stop {
			evtType = models.EventUserStopTypingGroup
		}
		evt := models.Event{Type: evtType, Data: models.TypingEvent{UserID: senderID, GroupID: target.GroupID}}
		for _, h := range e.rooms.Members(target.GroupID) {
			if sender != nil && h.ID() == sender.ID() {
				continue
			}
			e.push(h, evt)
		}
		return nil
	}
	return fmt.Errorf("%w: no recipient or group given", ErrUnknownTarget)
}

// BroadcastStatus persists a presence change and pushes it to every connection.
// It is registered as a presence observer. A change already superseded in the
// registry is persisted (the stamp guard discards it) but not pushed.
func (e *Engine) BroadcastStatus(change models.StatusChange) {
	ctx := context.Background()
	changed, err := e.store.Users().UpdateStatus(ctx, change.UserID, change.Status, change.LastSeen, change.Stamp)
	switch {
	case err != nil:
		e.log.Error("persist user status failed", "user_id", change.UserID, "status", change.Status, "err", err)
	case !changed:
		e.log.Debug("user status not persisted, newer or unknown row", "user_id", change.UserID, "status", change.Status)
	}

	if current, ok := e.registry.Status(change.UserID); ok && current.Stamp > change.Stamp {
		e.log.Debug("status push skipped, superseded", "user_id", change.UserID, "stamp", change.Stamp, "current", current.Stamp)
		return
	}

	evt := models.Event{Type: models.EventUserStatusChange, Data: change}
	for _, h := range e.registry.Handles() {
		e.push(h, evt)
	}
	observability.SetOnlineUsers(len(e.registry.OnlineUserIDs()))
	e.publish(ctx, observability.RoutingPresence, "presence.changed.v1", change)
}

// OpenDirectConversation finds or creates the conversation between actor and
// other, marks it read for actor and returns it with the other user and the
// messages.
func (e *Engine) OpenDirectConversation(ctx context.Context, actorID, otherID int) (models.DirectConversation, error) {
	ctx, span := e.tracer.Start(ctx, "delivery.open_direct", trace.WithAttributes(
		attribute.Int("user_id", actorID),
		attribute.Int("other_id", otherID),
	))
	defer span.End()

	pair, err := conversation.PairKey(actorID, otherID)
	if err != nil {
		return models.DirectConversation{}, repositories.ErrSelfConversation
	}
	other, err := e.store.Users().GetUser(ctx, otherID)
	if err != nil {
		return models.DirectConversation{}, err
	}

	conv, err := e.store.Conversations().UpsertDirect(ctx, pair, nil, e.now())
	if err != nil {
		return models.DirectConversation{}, err
	}
	if err := e.MarkRead(ctx, actorID, ReadTarget{ConversationID: conv.ID}); err != nil {
		return models.DirectConversation{}, err
	}
	if conv, err = e.store.Conversations().FindByID(ctx, conv.ID); err != nil {
		return models.DirectConversation{}, err
	}

	msgs, err := e.store.Messages().ListDirect(ctx, actorID, otherID)
	if err != nil {
		return models.DirectConversation{}, err
	}
	populated, err := e.store.Messages().Populate(ctx, msgs)
	if err != nil {
		return models.DirectConversation{}, err
	}
	return models.DirectConversation{Conversation: conv, Other: other, Messages: populated}, nil
}

type readRecord struct {
	UserID         int       `json:"userId"`
	ConversationID int       `json:"conversationId"`
	GroupID        int       `json:"groupId,omitempty"`
	Messages       int64     `json:"messages"`
	ReadAt         time.Time `json:"readAt"`
}

func validateBody(content string, attachments []int) error {
	if content == "" && len(attachments) == 0 {
		return fmt.Errorf("%w: content or attachments required", ErrInvalidMessage)
	}
	return nil
}

// populate loads sender, recipient and files. The message is already committed,
// so a failure here degrades the payload instead of failing the send.
func (e *Engine) populate(ctx context.Context, msg models.Message) models.PopulatedMessage {
	populated, err := e.store.Messages().Populate(ctx, []models.Message{msg})
	if err != nil || len(populated) == 0 {
		e.log.Warn("populate message failed", "message_id", msg.ID, "err", err)
		return models.PopulatedMessage{Message: msg, Sender: models.UserSummary{ID: msg.SenderID}, Attachments: []models.File{}}
	}
	return populated[0]
}

func (e *Engine) push(h presence.Handle, evt models.Event) {
	if err := h.Send(evt); err != nil {
		e.log.Debug("push dropped", "conn_id", h.ID(), "event", evt.Type, "err", err)
	}
}

func (e *Engine) publish(ctx context.Context, routingKey, eventType string, data any) {
	if e.events == nil {
		return
	}
	correlationID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		correlationID = sc.TraceID().String()
	}
	env := observability.NewEnvelope(eventType, e.producer, correlationID, data)
	if err := e.events.Publish(ctx, routingKey, env); err != nil {
		e.log.Warn("publish event failed", "routing_key", routingKey, "err", err)
	}
}

func (e *Engine) reject(span trace.Span, kind string, err error) (models.PopulatedMessage, error) {
	observability.IncMessage(kind, observability.OutcomeRejected)
	span.SetStatus(codes.Error, err.Error())
	e.log.Info("message rejected", "kind", kind, "err", err)
	return models.PopulatedMessage{}, err
}

func (e *Engine) fail(span trace.Span, kind string, senderID int, err error) (models.PopulatedMessage, error) {
	observability.IncMessage(kind, observability.OutcomeFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.log.Error("message persistence failed", "kind", kind, "user_id", senderID, "err", err)
	return models.PopulatedMessage{}, fmt.Errorf("%w: %w", ErrPersistence, err)
}
