package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Review case statuses.
const (
	ReviewPending   = "pending"
	ReviewReviewed  = "reviewed"
	ReviewActioned  = "actioned"
	ReviewDismissed = "dismissed"
)

// ReviewCase queues an assessment for a trained human reviewer.
type ReviewCase struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AppID        string         `gorm:"size:50;not null;index" json:"-"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	AssessmentID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"assessment_id"`
	RiskLevel    string         `gorm:"size:10;not null;index" json:"risk_level"`
	OverallScore int            `json:"overall_score"`
	Categories   datatypes.JSON `gorm:"type:jsonb;default:'[]'" json:"categories"`
	Status       string         `gorm:"not null;default:'pending';size:20;index" json:"status"`
	ReviewerNote string         `gorm:"size:1000" json:"reviewer_note,omitempty"`
	ReviewedBy   string         `gorm:"size:100" json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (ReviewCase) TableName() string {
	return "review_cases"
}

// ValidReviewStatus reports whether s is a status an admin may set.
func ValidReviewStatus(s string) bool {
	switch s {
	case ReviewReviewed, ReviewActioned, ReviewDismissed:
		return true
	}
	return false
}
