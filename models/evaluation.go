package models

import (
	"database/sql/driver"
	"time"
)

// Confidence levels attached to competency scores.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// CompetencyAssessment is one scored skill dimension with the verbatim
// transcript excerpts that support the score.
type CompetencyAssessment struct {
	Score      float64  `json:"score"`
	Confidence string   `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

// CompetencyScores maps competency name to its assessment.
type CompetencyScores map[string]CompetencyAssessment

func (c CompetencyScores) Value() (driver.Value, error) {
	if c == nil {
		c = CompetencyScores{}
	}
	return jsonbValue(c)
}

func (c *CompetencyScores) Scan(src any) error {
	return jsonbScan(c, src)
}

// FeedbackItem is one classified observation with a verbatim evidence
// excerpt from the transcript.
type FeedbackItem struct {
	Description string `json:"description"`
	Evidence    string `json:"evidence"`
}

type FeedbackItems []FeedbackItem

func (f FeedbackItems) Value() (driver.Value, error) {
	if f == nil {
		f = FeedbackItems{}
	}
	return jsonbValue(f)
}

func (f *FeedbackItems) Scan(src any) error {
	return jsonbScan(f, src)
}

// ModeAnalysis holds the per-mode communication assessments (only for
// modes the session had enabled) and the overall communication rating.
type ModeAnalysis struct {
	Modes                map[string]string `json:"modes"`
	OverallCommunication string            `json:"overall_communication"`
}

func (m ModeAnalysis) Value() (driver.Value, error) {
	return jsonbValue(m)
}

func (m *ModeAnalysis) Scan(src any) error {
	return jsonbScan(m, src)
}

// ActionItem is one numbered step of the improvement plan.
type ActionItem struct {
	StepNumber  int      `json:"step_number"`
	Description string   `json:"description"`
	Resources   []string `json:"resources"`
}

// ImprovementPlan is the prioritized set of follow-up actions produced
// from the evaluation.
type ImprovementPlan struct {
	PriorityAreas []string     `json:"priority_areas"`
	ConcreteSteps []ActionItem `json:"concrete_steps"`
	Resources     []string     `json:"resources"`
}

func (p ImprovementPlan) Value() (driver.Value, error) {
	return jsonbValue(p)
}

func (p *ImprovementPlan) Scan(src any) error {
	return jsonbScan(p, src)
}

// EvaluationReport is the final structured analysis of a completed
// session. Exactly one row may exist per session, created only after the
// session reaches completed status, immutable thereafter.
type EvaluationReport struct {
	ID               string           `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID        string           `json:"session_id" gorm:"type:uuid;not null;uniqueIndex"`
	OverallScore     float64          `json:"overall_score" gorm:"not null"`
	CompetencyScores CompetencyScores `json:"competency_scores" gorm:"type:jsonb;not null"`
	WentWell         FeedbackItems    `json:"went_well" gorm:"type:jsonb;not null"`
	WentOkay         FeedbackItems    `json:"went_okay" gorm:"type:jsonb;not null"`
	NeedsImprovement FeedbackItems    `json:"needs_improvement" gorm:"type:jsonb;not null"`
	ModeAnalysis     ModeAnalysis     `json:"communication_mode_analysis" gorm:"type:jsonb;not null"`
	ImprovementPlan  ImprovementPlan  `json:"improvement_plan" gorm:"type:jsonb;not null"`
	CreatedAt        time.Time        `json:"created_at" gorm:"not null;default:now()"`

	// Relationships
	Session *Session `json:"session,omitempty" gorm:"foreignKey:SessionID;references:ID"`
}

// TableName returns the table name for the EvaluationReport model
func (EvaluationReport) TableName() string {
	return "evaluation_reports"
}
