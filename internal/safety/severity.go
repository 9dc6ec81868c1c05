package safety

import (
	"fmt"
	"strings"
)

// Severity is the ordered severity of a single indicator.
// The zero value is SeverityLow; comparisons use the integer order.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityLow || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// AtLeast reports whether s is the same as or more severe than other.
func (s Severity) AtLeast(other Severity) bool { return s >= other }

func (s Severity) MarshalText() ([]byte, error) {
	if s < SeverityLow || s > SeverityCritical {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(severityNames[s]), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSeverity parses a case-insensitive severity name.
func ParseSeverity(name string) (Severity, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range severityNames {
		if s == n {
			return Severity(i), nil
		}
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", name)
}

// RiskLevel is the discretized bucket derived from an overall score.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskLevelNames = [...]string{"safe", "low", "medium", "high", "critical"}

func (l RiskLevel) String() string {
	if l < RiskSafe || l > RiskCritical {
		return fmt.Sprintf("risk(%d)", int(l))
	}
	return riskLevelNames[l]
}

func (l RiskLevel) AtLeast(other RiskLevel) bool { return l >= other }

func (l RiskLevel) MarshalText() ([]byte, error) {
	if l < RiskSafe || l > RiskCritical {
		return nil, fmt.Errorf("invalid risk level %d", int(l))
	}
	return []byte(riskLevelNames[l]), nil
}

func (l *RiskLevel) UnmarshalText(b []byte) error {
	v, err := ParseRiskLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ParseRiskLevel parses a case-insensitive risk level name.
func ParseRiskLevel(name string) (RiskLevel, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range riskLevelNames {
		if s == n {
			return RiskLevel(i), nil
		}
	}
	return RiskSafe, fmt.Errorf("unknown risk level %q", name)
}

// IndicatorKind says how an indicator was produced.
type IndicatorKind string

const (
	KindKeyword    IndicatorKind = "keyword"
	KindPattern    IndicatorKind = "pattern"
	KindBehavioral IndicatorKind = "behavioral"
	KindScore      IndicatorKind = "score"
)

// Category groups patterns and indicators by concern.
type Category string

const (
	CategoryCrisis             Category = "crisis"
	CategoryRelationshipCrisis Category = "relationship_crisis"
	CategoryToxicity           Category = "toxicity"
	CategoryDomesticViolence   Category = "domestic_violence"
	CategoryEmotionalDistress  Category = "emotional_distress"
	CategoryBehavioral         Category = "behavioral"
)

// Categories lists every known category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryCrisis,
		CategoryRelationshipCrisis,
		CategoryToxicity,
		CategoryDomesticViolence,
		CategoryEmotionalDistress,
		CategoryBehavioral,
	}
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// ConsentLevel is the user's chosen monitoring tier.
type ConsentLevel string

const (
	ConsentFullSafety  ConsentLevel = "full_safety"
	ConsentBasicSafety ConsentLevel = "basic_safety"
	ConsentManualMode  ConsentLevel = "manual_mode"
	ConsentPrivacyMode ConsentLevel = "privacy_mode"
)

func (c ConsentLevel) Valid() bool {
	switch c {
	case ConsentFullSafety, ConsentBasicSafety, ConsentManualMode, ConsentPrivacyMode:
		return true
	}
	return false
}
