package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-realtime/internal/conversation"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
)

// StoreMock returns the repository mocks it holds. WithTx runs fn against the
// same mock unless an error is configured for it.
type StoreMock struct {
	mock.Mock
	UserRepo         *UserRepositoryMock
	MessageRepo      *MessageRepositoryMock
	ConversationRepo *ConversationRepositoryMock
	GroupRepo        *GroupRepositoryMock
}

// NewStoreMock creates a StoreMock with fresh repository mocks.
func NewStoreMock() *StoreMock {
	return &StoreMock{
		UserRepo:         new(UserRepositoryMock),
		MessageRepo:      new(MessageRepositoryMock),
		ConversationRepo: new(ConversationRepositoryMock),
		GroupRepo:        new(GroupRepositoryMock),
	}
}

func (m *StoreMock) Users() repositories.UserRepository                 { return m.UserRepo }
func (m *StoreMock) Messages() repositories.MessageRepository           { return m.MessageRepo }
func (m *StoreMock) Conversations() repositories.ConversationRepository { return m.ConversationRepo }
func (m *StoreMock) Groups() repositories.GroupRepository               { return m.GroupRepo }

func (m *StoreMock) WithTx(ctx context.Context, fn func(tx repositories.Store) error) error {
	args := m.Called(ctx, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetSummaries(ctx context.Context, userIDs []int) (map[int]models.UserSummary, error) {
	args := m.Called(ctx, userIDs)
	var users map[int]models.UserSummary
	if val := args.Get(0); val != nil {
		users = val.(map[int]models.UserSummary)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) UpdateStatus(ctx context.Context, userID int, status string, lastSeen *time.Time, stamp int64) (bool, error) {
	args := m.Called(ctx, userID, status, lastSeen, stamp)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepositoryMock) Search(ctx context.Context, term string, excludeID int, limit int) ([]models.User, error) {
	args := m.Called(ctx, term, excludeID, limit)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var saved models.Message
	if val := args.Get(0); val != nil {
		saved = val.(models.Message)
	}
	return saved, args.Error(1)
}

func (m *MessageRepositoryMock) FindByID(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) FindPopulated(ctx context.Context, messageID int) (models.PopulatedMessage, error) {
	args := m.Called(ctx, messageID)
	var msg models.PopulatedMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.PopulatedMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Populate(ctx context.Context, msgs []models.Message) ([]models.PopulatedMessage, error) {
	args := m.Called(ctx, msgs)
	var populated []models.PopulatedMessage
	if val := args.Get(0); val != nil {
		populated = val.([]models.PopulatedMessage)
	}
	return populated, args.Error(1)
}

func (m *MessageRepositoryMock) ListDirect(ctx context.Context, userA, userB int) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListGroup(ctx context.Context, groupID int) ([]models.Message, error) {
	args := m.Called(ctx, groupID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkDirectRead(ctx context.Context, senderID, recipientID int, at time.Time) (int64, error) {
	args := m.Called(ctx, senderID, recipientID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) MarkGroupRead(ctx context.Context, groupID, userID int, at time.Time) (int64, error) {
	args := m.Called(ctx, groupID, userID, at)
	return args.Get(0).(int64), args.Error(1)
}

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) UpsertDirect(ctx context.Context, pair conversation.Pair, lastMessageID *int, at time.Time) (models.Conversation, error) {
	args := m.Called(ctx, pair, lastMessageID, at)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) UpsertGroup(ctx context.Context, groupID int, lastMessageID *int, at time.Time) (models.Conversation, error) {
	args := m.Called(ctx, groupID, lastMessageID, at)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) FindByID(ctx context.Context, conversationID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) FindByPair(ctx context.Context, pair conversation.Pair) (models.Conversation, error) {
	args := m.Called(ctx, pair)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) FindByGroup(ctx context.Context, groupID int) (models.Conversation, error) {
	args := m.Called(ctx, groupID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var convs []models.Conversation
	if val := args.Get(0); val != nil {
		convs = val.([]models.Conversation)
	}
	return convs, args.Error(1)
}

func (m *ConversationRepositoryMock) IncrementUnread(ctx context.Context, conversationID, userID int) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) ResetUnread(ctx context.Context, conversationID, userID int) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) Create(ctx context.Context, creatorID int, name, description string, memberIDs []int, at time.Time) (models.Group, error) {
	args := m.Called(ctx, creatorID, name, description, memberIDs, at)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) Get(ctx context.Context, groupID int) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) ListMembers(ctx context.Context, groupID int) ([]int, error) {
	args := m.Called(ctx, groupID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.Group, error) {
	args := m.Called(ctx, userID)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) AddMembers(ctx context.Context, groupID int, userIDs []int, at time.Time) ([]int, error) {
	args := m.Called(ctx, groupID, userIDs, at)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *GroupRepositoryMock) RemoveMember(ctx context.Context, groupID int, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

var _ repositories.Store = (*StoreMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.GroupRepository = (*GroupRepositoryMock)(nil)
