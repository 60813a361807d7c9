package models

import "time"

// Message is a direct or group message. Exactly one of RecipientID and GroupID is set.
type Message struct {
	ID            int           `db:"id" json:"id"`
	SenderID      int           `db:"sender_id" json:"sender_id"`
	RecipientID   *int          `db:"recipient_id" json:"recipient_id,omitempty"`
	GroupID       *int          `db:"group_id" json:"group_id,omitempty"`
	Content       string        `db:"content" json:"content"`
	AttachmentIDs []int         `db:"-" json:"attachment_ids,omitempty"`
	IsRead        bool          `db:"is_read" json:"is_read"`
	ReadAt        *time.Time    `db:"read_at" json:"read_at,omitempty"`
	ReadBy        []ReadReceipt `db:"-" json:"read_by,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// IsGroup reports whether the message targets a group.
func (m Message) IsGroup() bool {
	return m.GroupID != nil
}

// ReadReceipt records that a group member has seen a message.
type ReadReceipt struct {
	MessageID int       `db:"message_id" json:"-"`
	UserID    int       `db:"user_id" json:"user_id"`
	ReadAt    time.Time `db:"read_at" json:"read_at"`
}

// File is attachment metadata. Upload handling lives outside this service.
type File struct {
	ID        int       `db:"id" json:"id"`
	OwnerID   int       `db:"owner_id" json:"owner_id"`
	FileName  string    `db:"file_name" json:"file_name"`
	MimeType  string    `db:"mime_type" json:"mime_type"`
	Size      int64     `db:"size" json:"size"`
	URL       string    `db:"url" json:"url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PopulatedMessage is a message with sender, recipient and attachment metadata resolved.
type PopulatedMessage struct {
	Message
	Sender      UserSummary  `json:"sender"`
	Recipient   *UserSummary `json:"recipient,omitempty"`
	Attachments []File       `json:"attachments"`
}
