package models

import (
	"time"
)

// AuditLog is one append-only record of a lifecycle operation. Entries
// are written best-effort; they never fail the operation they describe.
type AuditLog struct {
	ID        string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SessionID string    `gorm:"type:uuid;index" json:"session_id,omitempty"`
	UserID    string    `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Action    string    `gorm:"type:varchar(100);not null" json:"action"`
	Detail    string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}
