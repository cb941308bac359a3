package chat

import "time"

// DefaultTitle is the placeholder a conversation carries until its first
// user message derives a real one.
const DefaultTitle = "New Chat"

type Conversation struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title        string    `gorm:"type:varchar(128);not null" json:"title"`
	MessageCount int       `gorm:"not null;default:0" json:"messageCount"`
	Preview      string    `gorm:"type:varchar(128)" json:"preview"`
	CreatedAt    time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

type Message struct {
	ID             string     `gorm:"primaryKey;type:varchar(26)" json:"id"` // ULID
	ConversationID string     `gorm:"type:varchar(36);index;not null" json:"conversationId"`
	Role           string     `gorm:"type:varchar(16);not null" json:"role"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	IsError        bool       `gorm:"not null;default:false" json:"isError,omitempty"`
	Timestamp      time.Time  `gorm:"index;not null" json:"timestamp"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
}

func (Message) TableName() string { return "messages" }
