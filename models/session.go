package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"
)

// Session lifecycle statuses. Transitions are monotonic: created, active
// and completed are passed through in order, active and paused may
// alternate any number of times, completed is terminal.
const (
	StatusCreated   = "created"
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// Communication modes a session may be configured with.
const (
	ModeText        = "text"
	ModeAudio       = "audio"
	ModeVideo       = "video"
	ModeWhiteboard  = "whiteboard"
	ModeScreenShare = "screen_share"
)

// KnownModes lists every communication mode the system understands.
var KnownModes = []string{ModeText, ModeAudio, ModeVideo, ModeWhiteboard, ModeScreenShare}

// ResumeData is the optional candidate profile attached to a session
// config. When present it selects the problem domain and difficulty of
// the interview.
type ResumeData struct {
	Identifier      string     `json:"identifier"`
	YearsExperience int        `json:"years_experience"`
	Domains         StringList `json:"domains"`
	Summary         string     `json:"summary,omitempty"`
}

func (r ResumeData) IsZero() bool {
	return r.Identifier == "" && r.YearsExperience == 0 && len(r.Domains) == 0 && r.Summary == ""
}

func (r ResumeData) Value() (driver.Value, error) {
	if r.IsZero() {
		return nil, nil
	}
	return jsonbValue(r)
}

func (r *ResumeData) Scan(src any) error {
	return jsonbScan(r, src)
}

// SessionConfig is fixed at session creation and never mutated afterwards.
type SessionConfig struct {
	EnabledModes StringList `json:"enabled_modes" gorm:"type:jsonb;not null"`
	AIProvider   string     `json:"ai_provider" gorm:"type:varchar(50);not null"`
	AIModel      string     `json:"ai_model" gorm:"type:varchar(100);not null"`
	ResumeData   ResumeData `json:"resume_data,omitzero" gorm:"type:jsonb"`
}

// HasResume reports whether the config carries candidate resume data.
func (c SessionConfig) HasResume() bool {
	return !c.ResumeData.IsZero()
}

// Session represents one mock interview attempt. It is owned by the
// session manager and mutated only through lifecycle operations.
type Session struct {
	ID             string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID         string         `json:"user_id" gorm:"type:uuid;not null;index"`
	Config         SessionConfig  `json:"config" gorm:"embedded"`
	ActiveModes    StringList     `json:"active_modes" gorm:"type:jsonb;not null"`
	Status         string         `json:"status" gorm:"type:varchar(20);not null;default:'created';check:status IN ('created', 'active', 'paused', 'completed')"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null;default:now()"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	LastActivityAt time.Time      `json:"last_activity_at" gorm:"not null;default:now()"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID;references:ID"`
}

// TableName returns the table name for the Session model
func (Session) TableName() string {
	return "sessions"
}

// IsTerminal reports whether the session has reached its final status.
func (s *Session) IsTerminal() bool {
	return s.Status == StatusCompleted
}
