package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"chat-realtime/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for direct and group messages.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	FindByID(ctx context.Context, messageID int) (models.Message, error)
	FindPopulated(ctx context.Context, messageID int) (models.PopulatedMessage, error)
	Populate(ctx context.Context, msgs []models.Message) ([]models.PopulatedMessage, error)
	ListDirect(ctx context.Context, userA, userB int) ([]models.Message, error)
	ListGroup(ctx context.Context, groupID int) ([]models.Message, error)
	// MarkDirectRead flags every unread sender->recipient message as read at at.
	MarkDirectRead(ctx context.Context, senderID, recipientID int, at time.Time) (int64, error)
	// MarkGroupRead adds userID to the readers of every group message it has not read yet.
	MarkGroupRead(ctx context.Context, groupID, userID int, at time.Time) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db sqlx.ExtContext
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db sqlx.ExtContext) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, sender_id, recipient_id, group_id, content, is_read, read_at, created_at`

// Create stores a message and its ordered attachment references.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	var saved models.Message
	err := sqlx.GetContext(ctx, r.db, &saved, r.db.Rebind(`INSERT INTO messages (sender_id, recipient_id, group_id, content, is_read, created_at)
        VALUES (?, ?, ?, ?, ?, ?) RETURNING `+messageColumns),
		msg.SenderID, msg.RecipientID, msg.GroupID, msg.Content, false, msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}

	for i, fileID := range msg.AttachmentIDs {
		if _, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO message_attachments (message_id, file_id, ordinal) VALUES (?, ?, ?)`), saved.ID, fileID, i); err != nil {
			return models.Message{}, err
		}
	}
	saved.AttachmentIDs = msg.AttachmentIDs
	return saved, nil
}

// FindByID retrieves a single message with attachment ids and readers.
func (r *MessageRepo) FindByID(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := sqlx.GetContext(ctx, r.db, &msg, r.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id=?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	msgs := []models.Message{msg}
	if err := r.attachIDs(ctx, msgs); err != nil {
		return models.Message{}, err
	}
	if err := r.attachReaders(ctx, msgs); err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// FindPopulated retrieves a message with sender, recipient and attachments resolved.
func (r *MessageRepo) FindPopulated(ctx context.Context, messageID int) (models.PopulatedMessage, error) {
	msg, err := r.FindByID(ctx, messageID)
	if err != nil {
		return models.PopulatedMessage{}, err
	}
	populated, err := r.Populate(ctx, []models.Message{msg})
	if err != nil {
		return models.PopulatedMessage{}, err
	}
	return populated[0], nil
}

// Populate resolves user summaries and file metadata for msgs, keeping their order.
func (r *MessageRepo) Populate(ctx context.Context, msgs []models.Message) ([]models.PopulatedMessage, error) {
	if len(msgs) == 0 {
		return []models.PopulatedMessage{}, nil
	}

	userIDs := make([]int, 0, len(msgs)*2)
	fileIDs := make([]int, 0)
	for _, m := range msgs {
		userIDs = append(userIDs, m.SenderID)
		if m.RecipientID != nil {
			userIDs = append(userIDs, *m.RecipientID)
		}
		fileIDs = append(fileIDs, m.AttachmentIDs...)
	}

	users, err := NewUserRepo(r.db).GetSummaries(ctx, lo.Uniq(userIDs))
	if err != nil {
		return nil, err
	}
	files, err := r.files(ctx, lo.Uniq(fileIDs))
	if err != nil {
		return nil, err
	}

	result := make([]models.PopulatedMessage, 0, len(msgs))
	for _, m := range msgs {
		p := models.PopulatedMessage{
			Message:     m,
			Sender:      users[m.SenderID],
			Attachments: make([]models.File, 0, len(m.AttachmentIDs)),
		}
		if p.Sender.ID == 0 {
			p.Sender.ID = m.SenderID
		}
		if m.RecipientID != nil {
			recipient, ok := users[*m.RecipientID]
			if !ok {
				recipient = models.UserSummary{ID: *m.RecipientID}
			}
			p.Recipient = &recipient
		}
		for _, id := range m.AttachmentIDs {
			if f, ok := files[id]; ok {
				p.Attachments = append(p.Attachments, f)
			}
		}
		result = append(result, p)
	}
	return result, nil
}

// ListDirect returns both directions of a direct conversation ordered by creation.
func (r *MessageRepo) ListDirect(ctx context.Context, userA, userB int) ([]models.Message, error) {
	var msgs []models.Message
	err := sqlx.SelectContext(ctx, r.db, &msgs, r.db.Rebind(`SELECT `+messageColumns+` FROM messages
        WHERE (sender_id=? AND recipient_id=?) OR (sender_id=? AND recipient_id=?)
        ORDER BY created_at ASC, id ASC`), userA, userB, userB, userA)
	if err != nil {
		return nil, err
	}
	if err := r.attachIDs(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListGroup returns group messages ordered by creation, with readers loaded.
func (r *MessageRepo) ListGroup(ctx context.Context, groupID int) ([]models.Message, error) {
	var msgs []models.Message
	err := sqlx.SelectContext(ctx, r.db, &msgs, r.db.Rebind(`SELECT `+messageColumns+` FROM messages
        WHERE group_id=? ORDER BY created_at ASC, id ASC`), groupID)
	if err != nil {
		return nil, err
	}
	if err := r.attachIDs(ctx, msgs); err != nil {
		return nil, err
	}
	if err := r.attachReaders(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkDirectRead implements MessageRepository.
func (r *MessageRepo) MarkDirectRead(ctx context.Context, senderID, recipientID int, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE messages SET is_read=?, read_at=?
        WHERE sender_id=? AND recipient_id=? AND is_read=?`), true, at, senderID, recipientID, false)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkGroupRead implements MessageRepository. Already-read messages are left untouched.
func (r *MessageRepo) MarkGroupRead(ctx context.Context, groupID, userID int, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO message_reads (message_id, user_id, read_at)
        SELECT id, ?, ? FROM messages WHERE group_id=?
        ON CONFLICT (message_id, user_id) DO NOTHING`), userID, at, groupID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type attachmentRow struct {
	MessageID int `db:"message_id"`
	FileID    int `db:"file_id"`
}

func (r *MessageRepo) attachIDs(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := lo.Map(msgs, func(m models.Message, _ int) int { return m.ID })
	query, args, err := in(r.db, `SELECT message_id, file_id FROM message_attachments WHERE message_id IN (?) ORDER BY message_id, ordinal`, ids)
	if err != nil {
		return err
	}
	var rows []attachmentRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return err
	}
	byMessage := lo.GroupBy(rows, func(row attachmentRow) int { return row.MessageID })
	for i := range msgs {
		for _, row := range byMessage[msgs[i].ID] {
			msgs[i].AttachmentIDs = append(msgs[i].AttachmentIDs, row.FileID)
		}
	}
	return nil
}

func (r *MessageRepo) attachReaders(ctx context.Context, msgs []models.Message) error {
	groupMsgs := lo.Filter(msgs, func(m models.Message, _ int) bool { return m.IsGroup() })
	if len(groupMsgs) == 0 {
		return nil
	}
	ids := lo.Map(groupMsgs, func(m models.Message, _ int) int { return m.ID })
	query, args, err := in(r.db, `SELECT message_id, user_id, read_at FROM message_reads WHERE message_id IN (?) ORDER BY read_at, user_id`, ids)
	if err != nil {
		return err
	}
	var receipts []models.ReadReceipt
	if err := sqlx.SelectContext(ctx, r.db, &receipts, query, args...); err != nil {
		return err
	}
	byMessage := lo.GroupBy(receipts, func(rr models.ReadReceipt) int { return rr.MessageID })
	for i := range msgs {
		if !msgs[i].IsGroup() {
			continue
		}
		msgs[i].ReadBy = byMessage[msgs[i].ID]
	}
	return nil
}

func (r *MessageRepo) files(ctx context.Context, fileIDs []int) (map[int]models.File, error) {
	result := make(map[int]models.File, len(fileIDs))
	if len(fileIDs) == 0 {
		return result, nil
	}
	query, args, err := in(r.db, `SELECT id, owner_id, file_name, mime_type, size, url, created_at FROM files WHERE id IN (?)`, fileIDs)
	if err != nil {
		return nil, err
	}
	var files []models.File
	if err := sqlx.SelectContext(ctx, r.db, &files, query, args...); err != nil {
		return nil, err
	}
	for _, f := range files {
		result[f.ID] = f
	}
	return result, nil
}
