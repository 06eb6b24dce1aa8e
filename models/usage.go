package models

import (
	"time"
)

// TokenUsageRecord is one append-only accounting entry for a provider
// call. Provider and model are snapshotted from the session config at
// record time so cost stays auditable if the pricing table changes.
type TokenUsageRecord struct {
	ID             string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID      string    `json:"session_id" gorm:"type:uuid;not null;index"`
	Operation      string    `json:"operation" gorm:"type:varchar(100);not null"`
	Provider       string    `json:"provider" gorm:"type:varchar(50);not null"`
	Model          string    `json:"model" gorm:"type:varchar(100);not null"`
	InputTokens    int64     `json:"input_tokens" gorm:"not null"`
	OutputTokens   int64     `json:"output_tokens" gorm:"not null"`
	TotalTokens    int64     `json:"total_tokens" gorm:"not null"`
	CostMilliCents int64     `json:"cost_milli_cents" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"not null;default:now()"`

	// Relationships
	Session *Session `json:"session,omitempty" gorm:"foreignKey:SessionID;references:ID"`
}

// TableName returns the table name for the TokenUsageRecord model
func (TokenUsageRecord) TableName() string {
	return "token_usage_records"
}

// SessionUsage aggregates every usage record of one session.
type SessionUsage struct {
	SessionID      string  `json:"session_id"`
	InputTokens    int64   `json:"input_tokens"`
	OutputTokens   int64   `json:"output_tokens"`
	TotalTokens    int64   `json:"total_tokens"`
	CostMilliCents int64   `json:"cost_milli_cents"`
	CostUSD        float64 `json:"cost_usd"`
}

// OperationUsage aggregates usage per operation label. Summing the rows
// of a breakdown reproduces the session totals exactly.
type OperationUsage struct {
	Operation      string `json:"operation"`
	Calls          int64  `json:"calls"`
	InputTokens    int64  `json:"input_tokens"`
	OutputTokens   int64  `json:"output_tokens"`
	TotalTokens    int64  `json:"total_tokens"`
	CostMilliCents int64  `json:"cost_milli_cents"`
}

// USDFromMilliCents converts integer milli-cents into dollars for
// display. Accounting always runs on the integer form.
func USDFromMilliCents(mc int64) float64 {
	return float64(mc) / 100000.0
}
