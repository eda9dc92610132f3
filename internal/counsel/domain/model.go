package domain

import (
	"time"

	"gorm.io/gorm"
)

// SessionModel is the GORM model for sessions table.
type SessionModel struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	RequesterID  string    `gorm:"type:varchar(36);index;not null"`
	CounsellorID string    `gorm:"type:varchar(36);index"`
	Topic        string    `gorm:"type:varchar(200);not null"`
	Status       string    `gorm:"type:varchar(20);index;not null;default:'pending'"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	ClaimedAt    *time.Time
	ClosedAt     *time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

// TableName specifies the table name for SessionModel.
func (SessionModel) TableName() string {
	return "sessions"
}

// ToDomain converts SessionModel to domain Session.
func (m *SessionModel) ToDomain() *Session {
	return &Session{
		ID:           m.ID,
		RequesterID:  m.RequesterID,
		CounsellorID: m.CounsellorID,
		Topic:        m.Topic,
		Status:       SessionStatus(m.Status),
		CreatedAt:    m.CreatedAt,
		ClaimedAt:    m.ClaimedAt,
		ClosedAt:     m.ClosedAt,
	}
}

// SessionToModel converts domain Session to SessionModel.
func SessionToModel(s *Session) *SessionModel {
	return &SessionModel{
		ID:           s.ID,
		RequesterID:  s.RequesterID,
		CounsellorID: s.CounsellorID,
		Topic:        s.Topic,
		Status:       string(s.Status),
		CreatedAt:    s.CreatedAt,
		ClaimedAt:    s.ClaimedAt,
		ClosedAt:     s.ClosedAt,
	}
}

// MessageModel is the GORM model for messages table.
type MessageModel struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	SessionID string    `gorm:"type:varchar(36);index:idx_session_order,priority:1;not null"`
	SenderID  string    `gorm:"type:varchar(36);index;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_session_order,priority:2"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:        m.ID,
		SessionID: m.SessionID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// MessageToModel converts domain Message to MessageModel.
func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}
