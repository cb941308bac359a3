package chat

import (
	"context"

	"gorm.io/gorm"
)

// Repo is the durable side of the conversation store.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateConversation(ctx context.Context, c *Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) SaveConversation(ctx context.Context, c *Conversation) error {
	return r.db.WithContext(ctx).Save(c).Error
}

// ListConversations returns all conversations, newest first.
func (r *Repo) ListConversations(ctx context.Context) ([]Conversation, error) {
	var convs []Conversation
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}

func (r *Repo) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteConversation removes a conversation and cascades to its messages in
// one transaction.
func (r *Repo) DeleteConversation(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Message{}, "conversation_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&Conversation{}, "id = ?", id).Error
	})
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repo) SaveMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Save(m).Error
}

// ListMessages returns a conversation's messages in (timestamp, id) ASC
// order, which is total thanks to monotonic message IDs.
func (r *Repo) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}

// DeleteMessagesAfter removes every message of the conversation ordered
// strictly after the anchor.
func (r *Repo) DeleteMessagesAfter(ctx context.Context, conversationID string, anchor Message) error {
	return r.db.WithContext(ctx).
		Where("conversation_id = ? AND (timestamp > ? OR (timestamp = ? AND id > ?))",
			conversationID, anchor.Timestamp, anchor.Timestamp, anchor.ID).
		Delete(&Message{}).Error
}
