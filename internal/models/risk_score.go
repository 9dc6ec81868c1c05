package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RiskScore is one persisted assessment. Raw message text is never stored,
// only a keyed content hash.
type RiskScore struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AppID                string         `gorm:"size:50;not null;index:idx_risk_scores_app_user,priority:1" json:"-"`
	UserID               uuid.UUID      `gorm:"type:uuid;not null;index:idx_risk_scores_app_user,priority:2" json:"user_id"`
	CoupleID             *uuid.UUID     `gorm:"type:uuid;index" json:"couple_id,omitempty"`
	MessageType          string         `gorm:"size:50" json:"message_type"`
	ContentHash          string         `gorm:"size:64;index" json:"-"`
	Toxicity             int            `json:"toxicity"`
	Crisis               int            `json:"crisis"`
	DVRisk               int            `gorm:"column:dv_risk" json:"dv_risk"`
	EmotionalDistress    int            `json:"emotional_distress"`
	OverallScore         int            `gorm:"not null" json:"overall_score"`
	RiskLevel            string         `gorm:"size:10;not null;index" json:"risk_level"`
	Confidence           float64        `json:"confidence"`
	Indicators           datatypes.JSON `gorm:"type:jsonb;default:'[]'" json:"indicators"`
	RequiresIntervention bool           `json:"requires_intervention"`
	RequiresHumanReview  bool           `json:"requires_human_review"`
	Failsafe             bool           `json:"failsafe"`
	HistoryFactor        float64        `json:"history_factor"`
	PolicyVersion        string         `gorm:"size:50" json:"policy_version"`
	PatternVersion       string         `gorm:"size:50" json:"pattern_version"`
	CreatedAt            time.Time      `gorm:"not null;index" json:"created_at"`
}

func (RiskScore) TableName() string {
	return "risk_scores"
}
