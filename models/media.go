package models

import (
	"time"
)

// Media artifact kinds. Sequences are assigned per (session, kind).
const (
	MediaKindWhiteboard  = "whiteboard"
	MediaKindScreenShare = "screen_share"
)

// MediaFile records one stored media artifact. Sequence values for a
// given (session, kind) form a gap-free run starting at 1; the unique
// index is the cross-writer guard.
type MediaFile struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID string    `json:"session_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_media_files_session_kind_seq"`
	Kind      string    `json:"kind" gorm:"type:varchar(30);not null;uniqueIndex:idx_media_files_session_kind_seq;check:kind IN ('whiteboard', 'screen_share')"`
	FilePath  string    `json:"file_path" gorm:"type:varchar(512);not null"`
	Sequence  int       `json:"sequence" gorm:"not null;uniqueIndex:idx_media_files_session_kind_seq"`
	SizeBytes int64     `json:"size_bytes" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`

	// Relationships
	Session *Session `json:"session,omitempty" gorm:"foreignKey:SessionID;references:ID"`
}

// TableName returns the table name for the MediaFile model
func (MediaFile) TableName() string {
	return "media_files"
}
