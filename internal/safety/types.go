// Package safety implements the detection core of the risk pipeline: the
// pattern library, the signal extractors, risk fusion, the escalation policy
// and the failsafe path used when scoring itself goes wrong.
//
// Everything in this package is synchronous and free of I/O so that the
// decision logic can be exercised without a database.
package safety

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Indicator is a single detected textual or behavioral signal.
// Indicators are values; once produced they are never modified.
type Indicator struct {
	Kind        IndicatorKind `json:"kind"`
	Category    Category      `json:"category"`
	Severity    Severity      `json:"severity"`
	Confidence  float64       `json:"confidence"`
	Description string        `json:"description"`
	TriggeredBy string        `json:"triggered_by"`
}

// ComponentScores are the per-concern scores, each 0-100.
type ComponentScores struct {
	Toxicity          int `json:"toxicity"`
	Crisis            int `json:"crisis"`
	DVRisk            int `json:"dv_risk"`
	EmotionalDistress int `json:"emotional_distress"`
}

// Assessment is the fused result for one analyzed text unit.
type Assessment struct {
	ID                   uuid.UUID       `json:"id"`
	Scores               ComponentScores `json:"scores"`
	OverallScore         int             `json:"overall_score"`
	RiskLevel            RiskLevel       `json:"risk_level"`
	Confidence           float64         `json:"confidence"`
	Indicators           []Indicator     `json:"indicators"`
	RequiresIntervention bool            `json:"requires_intervention"`
	RequiresHumanReview  bool            `json:"requires_human_review"`
	HistoryFactor        float64         `json:"history_factor"`
	Failsafe             bool            `json:"failsafe"`
	DegradedExtractors   []string        `json:"degraded_extractors,omitempty"`
	PolicyVersion        string          `json:"policy_version"`
	PatternVersion       string          `json:"pattern_version"`
	AssessedAt           time.Time       `json:"assessed_at"`
}

// HasCritical reports whether any indicator is itself critical.
func (a Assessment) HasCritical() bool {
	for _, ind := range a.Indicators {
		if ind.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// HasLifeSafetySignal reports whether a crisis or DV indicator of high
// severity or above fired, whatever the fused score.
func (a Assessment) HasLifeSafetySignal() bool {
	for _, ind := range a.Indicators {
		if LifeSafety(ind.Category) && ind.Severity.AtLeast(SeverityHigh) {
			return true
		}
	}
	return false
}

// HasCategory reports whether any indicator belongs to c.
func (a Assessment) HasCategory(c Category) bool {
	for _, ind := range a.Indicators {
		if ind.Category == c {
			return true
		}
	}
	return false
}

// Categories returns the distinct indicator categories in first-seen order.
func (a Assessment) Categories() []Category {
	seen := make(map[Category]bool)
	var out []Category
	for _, ind := range a.Indicators {
		if !seen[ind.Category] {
			seen[ind.Category] = true
			out = append(out, ind.Category)
		}
	}
	return out
}

// DetectorFlags toggles the optional detectors. Crisis and domestic
// violence detection cannot be switched off while automatic analysis runs.
type DetectorFlags struct {
	Crisis             bool `json:"crisis" yaml:"crisis"`
	DomesticViolence   bool `json:"domestic_violence" yaml:"domestic_violence"`
	Toxicity           bool `json:"toxicity" yaml:"toxicity"`
	EmotionalDistress  bool `json:"emotional_distress" yaml:"emotional_distress"`
	RelationshipCrisis bool `json:"relationship_crisis" yaml:"relationship_crisis"`
	Behavioral         bool `json:"behavioral" yaml:"behavioral"`
}

// Preferences is the user-owned consent configuration read by every stage.
type Preferences struct {
	ConsentLevel  ConsentLevel  `json:"consent_level"`
	Detectors     DetectorFlags `json:"detectors"`
	RetentionDays int           `json:"retention_days"`
}

const defaultRetentionDays = 90

// DefaultPreferences is full safety with every detector on.
func DefaultPreferences() Preferences {
	return Preferences{
		ConsentLevel: ConsentFullSafety,
		Detectors: DetectorFlags{
			Crisis:             true,
			DomesticViolence:   true,
			Toxicity:           true,
			EmotionalDistress:  true,
			RelationshipCrisis: true,
			Behavioral:         true,
		},
		RetentionDays: defaultRetentionDays,
	}
}

// Normalize fills in defaults for an unset consent level or retention window.
func (p Preferences) Normalize() Preferences {
	if p.ConsentLevel == "" {
		return DefaultPreferences()
	}
	if p.RetentionDays <= 0 {
		p.RetentionDays = defaultRetentionDays
	}
	return p
}

// AutomaticAnalysis reports whether the pipeline may analyze at all.
// manual_mode and privacy_mode suppress automatic analysis entirely.
func (p Preferences) AutomaticAnalysis() bool {
	switch p.Normalize().ConsentLevel {
	case ConsentFullSafety, ConsentBasicSafety:
		return true
	}
	return false
}

// DetectorEnabled reports whether the detector for c runs.
func (p Preferences) DetectorEnabled(c Category) bool {
	p = p.Normalize()
	if !p.AutomaticAnalysis() {
		return false
	}
	switch c {
	case CategoryCrisis, CategoryDomesticViolence:
		return true
	case CategoryToxicity:
		return p.Detectors.Toxicity
	case CategoryEmotionalDistress:
		return p.Detectors.EmotionalDistress
	case CategoryRelationshipCrisis:
		return p.Detectors.RelationshipCrisis
	case CategoryBehavioral:
		return p.Detectors.Behavioral
	}
	return false
}

// PermitsHumanReview reports whether the consent tier allows a person to
// review flagged content below the critical level.
func (p Preferences) PermitsHumanReview() bool {
	return p.Normalize().ConsentLevel == ConsentFullSafety
}

// Validate checks user-supplied preferences at the boundary.
func (p Preferences) Validate() error {
	if p.ConsentLevel != "" && !p.ConsentLevel.Valid() {
		return fmt.Errorf("invalid consent level %q", p.ConsentLevel)
	}
	if p.RetentionDays < 0 || p.RetentionDays > 3650 {
		return errors.New("retention_days must be between 0 and 3650")
	}
	return nil
}

// HistoryEntry is one prior message in the conversation.
type HistoryEntry struct {
	Content   string    `json:"content"`
	RiskScore int       `json:"risk_score"`
	Timestamp time.Time `json:"timestamp"`
}

// BehavioralContextVersion is the schema version of BehavioralContext.
const BehavioralContextVersion = 1

// BehavioralContext carries the non-text signals consumed by the
// behavioral extractor. All fields are optional.
type BehavioralContext struct {
	Version int `json:"version"`
	// Self-reported wellbeing scores on a 1-10 scale, most recent first.
	RecentSelfReportScores []int `json:"recent_self_report_scores,omitempty"`
	// Negative to positive interaction ratio for the current and the
	// previous period.
	NegativePositiveRatio         float64 `json:"negative_positive_ratio,omitempty"`
	PreviousNegativePositiveRatio float64 `json:"previous_negative_positive_ratio,omitempty"`
	// Elevated-risk assessments for the user in the last seven days.
	RecentHighRiskCount int `json:"recent_high_risk_count,omitempty"`
}

var ErrInvalidBehavioralContext = errors.New("invalid behavioral context")

// Validate rejects malformed context values.
func (b *BehavioralContext) Validate() error {
	if b == nil {
		return nil
	}
	if b.Version != 0 && b.Version != BehavioralContextVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidBehavioralContext, b.Version)
	}
	for _, s := range b.RecentSelfReportScores {
		if s < 1 || s > 10 {
			return fmt.Errorf("%w: self report score %d outside 1-10", ErrInvalidBehavioralContext, s)
		}
	}
	if b.NegativePositiveRatio < 0 || b.PreviousNegativePositiveRatio < 0 {
		return fmt.Errorf("%w: negative interaction ratio", ErrInvalidBehavioralContext)
	}
	if b.RecentHighRiskCount < 0 {
		return fmt.Errorf("%w: negative high risk count", ErrInvalidBehavioralContext)
	}
	return nil
}

// Input is a single request to the pipeline.
type Input struct {
	AppID               string             `json:"app_id"`
	UserID              uuid.UUID          `json:"user_id"`
	CoupleID            *uuid.UUID         `json:"couple_id,omitempty"`
	MessageType         string             `json:"message_type"`
	Text                string             `json:"text"`
	ConversationHistory []HistoryEntry     `json:"conversation_history,omitempty"`
	Behavior            *BehavioralContext `json:"behavior,omitempty"`
	Preferences         Preferences        `json:"preferences"`
}
