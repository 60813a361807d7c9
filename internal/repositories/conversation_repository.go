package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"chat-realtime/internal/conversation"
	"chat-realtime/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSelfConversation     = errors.New("cannot open a conversation with yourself")
)

// ConversationRepository abstracts conversation rows and their unread counters.
type ConversationRepository interface {
	// UpsertDirect finds or creates the conversation of pair. A non-nil lastMessageID
	// moves the conversation's last message and updated_at forward.
	UpsertDirect(ctx context.Context, pair conversation.Pair, lastMessageID *int, at time.Time) (models.Conversation, error)
	UpsertGroup(ctx context.Context, groupID int, lastMessageID *int, at time.Time) (models.Conversation, error)
	FindByID(ctx context.Context, conversationID int) (models.Conversation, error)
	FindByPair(ctx context.Context, pair conversation.Pair) (models.Conversation, error)
	FindByGroup(ctx context.Context, groupID int) (models.Conversation, error)
	ListForUser(ctx context.Context, userID int) ([]models.Conversation, error)
	IncrementUnread(ctx context.Context, conversationID, userID int) error
	ResetUnread(ctx context.Context, conversationID, userID int) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db sqlx.ExtContext
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db sqlx.ExtContext) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, user1_id, user2_id, group_id, last_message_id, updated_at, created_at`

// The conflict branch always updates so RETURNING yields the row on both paths.
const upsertTail = ` DO UPDATE SET
        last_message_id = COALESCE(EXCLUDED.last_message_id, conversations.last_message_id),
        updated_at = CASE WHEN EXCLUDED.last_message_id IS NULL THEN conversations.updated_at ELSE EXCLUDED.updated_at END
        RETURNING ` + conversationColumns

// UpsertDirect implements ConversationRepository.
func (r *ConversationRepo) UpsertDirect(ctx context.Context, pair conversation.Pair, lastMessageID *int, at time.Time) (models.Conversation, error) {
	if pair.Low == pair.High {
		return models.Conversation{}, ErrSelfConversation
	}
	var conv models.Conversation
	err := sqlx.GetContext(ctx, r.db, &conv, r.db.Rebind(`INSERT INTO conversations (user1_id, user2_id, last_message_id, updated_at, created_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (user1_id, user2_id)`+upsertTail), pair.Low, pair.High, lastMessageID, at, at)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("upsert direct conversation: %w", err)
	}
	return r.withUnread(ctx, conv)
}

// UpsertGroup implements ConversationRepository.
func (r *ConversationRepo) UpsertGroup(ctx context.Context, groupID int, lastMessageID *int, at time.Time) (models.Conversation, error) {
	var conv models.Conversation
	err := sqlx.GetContext(ctx, r.db, &conv, r.db.Rebind(`INSERT INTO conversations (group_id, last_message_id, updated_at, created_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (group_id)`+upsertTail), groupID, lastMessageID, at, at)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("upsert group conversation: %w", err)
	}
	return r.withUnread(ctx, conv)
}

// FindByID fetches a conversation with its unread counters.
func (r *ConversationRepo) FindByID(ctx context.Context, conversationID int) (models.Conversation, error) {
	return r.findOne(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id=?`, conversationID)
}

// FindByPair fetches the direct conversation of pair.
func (r *ConversationRepo) FindByPair(ctx context.Context, pair conversation.Pair) (models.Conversation, error) {
	return r.findOne(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE user1_id=? AND user2_id=?`, pair.Low, pair.High)
}

// FindByGroup fetches the conversation that belongs to groupID.
func (r *ConversationRepo) FindByGroup(ctx context.Context, groupID int) (models.Conversation, error) {
	return r.findOne(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE group_id=?`, groupID)
}

// ListForUser returns the direct conversations of userID and those of its groups, newest first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := sqlx.SelectContext(ctx, r.db, &convs, r.db.Rebind(`SELECT `+conversationColumns+` FROM conversations
        WHERE user1_id=? OR user2_id=?
           OR group_id IN (SELECT group_id FROM group_members WHERE user_id=?)
        ORDER BY updated_at DESC, id DESC`), userID, userID, userID)
	if err != nil {
		return nil, err
	}
	if err := r.attachUnread(ctx, convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// IncrementUnread adds one to the counter of userID without reading it first.
func (r *ConversationRepo) IncrementUnread(ctx context.Context, conversationID, userID int) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO conversation_unread (conversation_id, user_id, unread_count)
        VALUES (?, ?, 1)
        ON CONFLICT (conversation_id, user_id) DO UPDATE SET unread_count = conversation_unread.unread_count + 1`), conversationID, userID)
	return err
}

// ResetUnread sets the counter of userID to zero.
func (r *ConversationRepo) ResetUnread(ctx context.Context, conversationID, userID int) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO conversation_unread (conversation_id, user_id, unread_count)
        VALUES (?, ?, 0)
        ON CONFLICT (conversation_id, user_id) DO UPDATE SET unread_count = 0`), conversationID, userID)
	return err
}

// Apply dispatches a counter transition to the matching statement.
func Apply(ctx context.Context, repo ConversationRepository, conversationID int, u conversation.Update) error {
	switch u.Transition {
	case conversation.Increment:
		return repo.IncrementUnread(ctx, conversationID, u.UserID)
	case conversation.Reset:
		return repo.ResetUnread(ctx, conversationID, u.UserID)
	}
	return fmt.Errorf("unsupported unread transition %s", u.Transition)
}

func (r *ConversationRepo) findOne(ctx context.Context, query string, args ...any) (models.Conversation, error) {
	var conv models.Conversation
	err := sqlx.GetContext(ctx, r.db, &conv, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return r.withUnread(ctx, conv)
}

func (r *ConversationRepo) withUnread(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	convs := []models.Conversation{conv}
	if err := r.attachUnread(ctx, convs); err != nil {
		return models.Conversation{}, err
	}
	return convs[0], nil
}

type unreadRow struct {
	ConversationID int `db:"conversation_id"`
	UserID         int `db:"user_id"`
	Count          int `db:"unread_count"`
}

func (r *ConversationRepo) attachUnread(ctx context.Context, convs []models.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	ids := lo.Map(convs, func(c models.Conversation, _ int) int { return c.ID })
	query, args, err := in(r.db, `SELECT conversation_id, user_id, unread_count FROM conversation_unread WHERE conversation_id IN (?)`, ids)
	if err != nil {
		return err
	}
	var rows []unreadRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return err
	}
	byConv := lo.GroupBy(rows, func(row unreadRow) int { return row.ConversationID })
	for i := range convs {
		counts := make(map[int]int)
		for _, p := range convs[i].Participants() {
			counts[p] = 0
		}
		for _, row := range byConv[convs[i].ID] {
			counts[row.UserID] = row.Count
		}
		convs[i].UnreadCount = counts
	}
	return nil
}
