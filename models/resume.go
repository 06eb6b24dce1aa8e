package models

import (
	"time"

	"gorm.io/gorm"
)

// Resume is a stored candidate profile. A session config may reference
// one by id instead of carrying inline resume data.
type Resume struct {
	ID              string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID          string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Identifier      string         `gorm:"size:255;not null" json:"identifier"`
	YearsExperience int            `gorm:"not null;default:0" json:"years_experience"`
	Domains         StringList     `gorm:"type:jsonb;not null" json:"domains"`
	Summary         string         `gorm:"type:text" json:"summary,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName returns the table name for the Resume model
func (Resume) TableName() string {
	return "resumes"
}

// Data converts the stored resume into the value object embedded in a
// session config.
func (r *Resume) Data() ResumeData {
	return ResumeData{
		Identifier:      r.Identifier,
		YearsExperience: r.YearsExperience,
		Domains:         r.Domains,
		Summary:         r.Summary,
	}
}
