package dto

import (
	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/models"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/resources"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/response"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/safety"
)

// AnalyzeRequest is shared by the analyze, message check and validate
// endpoints. Preferences override the stored ones when present.
type AnalyzeRequest struct {
	CoupleID            *uuid.UUID                `json:"couple_id,omitempty"`
	MessageType         string                    `json:"message_type"`
	Text                string                    `json:"text"`
	ConversationHistory []safety.HistoryEntry     `json:"conversation_history,omitempty"`
	Behavior            *safety.BehavioralContext `json:"behavior,omitempty"`
	Preferences         *safety.Preferences       `json:"preferences,omitempty"`
	Location            *resources.Location       `json:"location,omitempty"`
}

type CheckMessageResponse struct {
	Blocked    bool                     `json:"blocked"`
	Skipped    bool                     `json:"skipped"`
	Assessment *safety.Assessment       `json:"assessment,omitempty"`
	Response   *response.SafetyResponse `json:"response,omitempty"`
}

type ResourcesResponse struct {
	Resources []resources.RankedResource `json:"resources"`
	Fallback  bool                       `json:"fallback"`
}

type TransparencyResponse struct {
	Entries []models.TransparencyEntry `json:"entries"`
}

type ActionReviewRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}
