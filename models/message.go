package models

import (
	"time"
)

// Roles a conversation message may carry.
const (
	RoleInterviewer = "interviewer"
	RoleCandidate   = "candidate"
)

// Message is one turn of a session's conversation. Rows are append-only;
// the read order is the turn order, and timestamps are non-decreasing
// along it.
type Message struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID string    `json:"session_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_messages_session_turn"`
	Role      string    `json:"role" gorm:"type:varchar(20);not null;check:role IN ('interviewer', 'candidate')"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Turn      int       `json:"turn" gorm:"not null;uniqueIndex:idx_messages_session_turn"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`

	// Relationships
	Session *Session `json:"session,omitempty" gorm:"foreignKey:SessionID;references:ID"`
}

// TableName returns the table name for the Message model
func (Message) TableName() string {
	return "messages"
}
