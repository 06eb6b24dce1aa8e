package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// All models are automatically exported from their respective files:
// - User, RefreshToken from user.go
// - Session, SessionConfig, ResumeData from session.go
// - Message from message.go
// - MediaFile from media.go
// - TokenUsageRecord, SessionUsage, OperationUsage from usage.go
// - EvaluationReport and its sub-documents from evaluation.go
// - Resume from resume.go
// - AuditLog from audit.go

// Database schema overview:
// 1. users - Managed by cookie-based authentication
// 2. sessions - One row per mock interview, owning config and lifecycle status
// 3. messages - The ordered, turn-by-turn text of each conversation
// 4. media_files - Whiteboard snapshots and screen captures with per-kind sequences
// 5. token_usage_records - Append-only provider usage and cost accounting
// 6. evaluation_reports - The final structured analysis, one per completed session
// 7. resumes - Stored resume profiles reusable across sessions
// 8. audit_logs - Append-only trail of lifecycle operations

// All returns every model registered for schema migration, in dependency
// order.
func All() []any {
	return []any{
		&User{},
		&RefreshToken{},
		&Resume{},
		&Session{},
		&Message{},
		&MediaFile{},
		&TokenUsageRecord{},
		&EvaluationReport{},
		&AuditLog{},
	}
}
