package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-realtime/internal/delivery"
	"chat-realtime/internal/models"
	"chat-realtime/internal/presence"
)

type EngineMock struct {
	mock.Mock
}

func (m *EngineMock) SendDirectMessage(ctx context.Context, origin presence.Handle, in delivery.DirectInput) (models.PopulatedMessage, error) {
	args := m.Called(ctx, origin, in)
	var msg models.PopulatedMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.PopulatedMessage)
	}
	return msg, args.Error(1)
}

func (m *EngineMock) SendGroupMessage(ctx context.Context, origin presence.Handle, in delivery.GroupInput) (models.GroupMessageEvent, error) {
	args := m.Called(ctx, origin, in)
	var evt models.GroupMessageEvent
	if val := args.Get(0); val != nil {
		evt = val.(models.GroupMessageEvent)
	}
	return evt, args.Error(1)
}

func (m *EngineMock) MarkRead(ctx context.Context, actorID int, target delivery.ReadTarget) error {
	args := m.Called(ctx, actorID, target)
	return args.Error(0)
}

func (m *EngineMock) Typing(ctx context.Context, senderID int, sender presence.Handle, target delivery.TypingTarget, stop bool) error {
	args := m.Called(ctx, senderID, sender, target, stop)
	return args.Error(0)
}

func (m *EngineMock) OpenDirectConversation(ctx context.Context, actorID, otherID int) (models.DirectConversation, error) {
	args := m.Called(ctx, actorID, otherID)
	var dc models.DirectConversation
	if val := args.Get(0); val != nil {
		dc = val.(models.DirectConversation)
	}
	return dc, args.Error(1)
}
