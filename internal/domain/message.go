package domain

import (
	"time"
)

// Message is a durable direct-message record. Created once on send, never
// mutated. At least one of Text/File is present.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Text      string    `json:"text,omitempty"`
	File      string    `json:"file,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Sender    string    `gorm:"type:varchar(36);index:idx_messages_pair;not null"`
	Recipient string    `gorm:"type:varchar(36);index:idx_messages_pair;not null"`
	Text      string    `gorm:"type:text"`
	File      string    `gorm:"type:varchar(255)"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:        m.ID,
		Sender:    m.Sender,
		Recipient: m.Recipient,
		Text:      m.Text,
		File:      m.File,
		CreatedAt: m.CreatedAt,
	}
}

// MessageToModel converts a domain Message to MessageModel.
func MessageToModel(m *Message) *MessageModel {
	return &MessageModel{
		ID:        m.ID,
		Sender:    m.Sender,
		Recipient: m.Recipient,
		Text:      m.Text,
		File:      m.File,
		CreatedAt: m.CreatedAt,
	}
}
