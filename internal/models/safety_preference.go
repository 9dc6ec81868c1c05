package models

import (
	"time"

	"github.com/google/uuid"
)

// SafetyPreference stores a user's consent tier and detector toggles per app.
type SafetyPreference struct {
	ID                 uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"-"`
	AppID              string    `gorm:"size:50;not null;uniqueIndex:idx_safety_pref_app_user,priority:1" json:"-"`
	UserID             uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_safety_pref_app_user,priority:2" json:"user_id"`
	ConsentLevel       string    `gorm:"size:20;not null;default:'full_safety'" json:"consent_level"`
	Toxicity           bool      `gorm:"not null" json:"toxicity"`
	EmotionalDistress  bool      `gorm:"not null" json:"emotional_distress"`
	RelationshipCrisis bool      `gorm:"not null" json:"relationship_crisis"`
	Behavioral         bool      `gorm:"not null" json:"behavioral"`
	RetentionDays      int       `gorm:"not null;default:90" json:"retention_days"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (SafetyPreference) TableName() string {
	return "safety_preferences"
}
