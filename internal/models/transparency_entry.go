package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TransparencyEntry is the append-only, user-visible record of what was
// analyzed and why. Only the acknowledgment columns are ever updated.
type TransparencyEntry struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AppID             string         `gorm:"size:50;not null;index:idx_transparency_app_user,priority:1" json:"-"`
	UserID            uuid.UUID      `gorm:"type:uuid;not null;index:idx_transparency_app_user,priority:2" json:"user_id"`
	EventType         string         `gorm:"size:30;not null;index" json:"event_type"`
	Description       string         `gorm:"type:text;not null" json:"description"`
	DataCategories    datatypes.JSON `gorm:"type:jsonb;default:'[]'" json:"data_categories"`
	ProcessingPurpose string         `gorm:"size:255" json:"processing_purpose"`
	AssessmentID      *uuid.UUID     `gorm:"type:uuid;index" json:"assessment_id,omitempty"`
	RetentionDays     int            `gorm:"not null" json:"retention_days"`
	RetainUntil       time.Time      `gorm:"not null;index" json:"retain_until"`
	VisibleToUser     bool           `gorm:"not null" json:"visible_to_user"`
	Acknowledged      bool           `gorm:"not null" json:"acknowledged"`
	AcknowledgedAt    *time.Time     `json:"acknowledged_at,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;index" json:"created_at"`
}

func (TransparencyEntry) TableName() string {
	return "transparency_entries"
}
