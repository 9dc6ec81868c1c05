package safety

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidPolicy = errors.New("invalid safety policy")

// ComponentWeights weight each component score in the overall score.
type ComponentWeights struct {
	Crisis            float64 `yaml:"crisis" json:"crisis"`
	DVRisk            float64 `yaml:"dv_risk" json:"dv_risk"`
	Toxicity          float64 `yaml:"toxicity" json:"toxicity"`
	EmotionalDistress float64 `yaml:"emotional_distress" json:"emotional_distress"`
}

// LevelThresholds are the inclusive lower bounds of each risk level.
type LevelThresholds struct {
	Critical float64 `yaml:"critical" json:"critical"`
	High     float64 `yaml:"high" json:"high"`
	Medium   float64 `yaml:"medium" json:"medium"`
	Low      float64 `yaml:"low" json:"low"`
}

// SeverityWeights are the base contribution of one indicator per severity.
type SeverityWeights struct {
	Low      float64 `yaml:"low" json:"low"`
	Medium   float64 `yaml:"medium" json:"medium"`
	High     float64 `yaml:"high" json:"high"`
	Critical float64 `yaml:"critical" json:"critical"`
}

func (w SeverityWeights) For(s Severity) float64 {
	switch s {
	case SeverityCritical:
		return w.Critical
	case SeverityHigh:
		return w.High
	case SeverityMedium:
		return w.Medium
	default:
		return w.Low
	}
}

// HistoryPolicy maps a user's trailing average risk to a multiplier.
type HistoryPolicy struct {
	WindowDays      int     `yaml:"window_days" json:"window_days"`
	HighAverage     float64 `yaml:"high_average" json:"high_average"`
	HighFactor      float64 `yaml:"high_factor" json:"high_factor"`
	ElevatedAverage float64 `yaml:"elevated_average" json:"elevated_average"`
	ElevatedFactor  float64 `yaml:"elevated_factor" json:"elevated_factor"`
}

// Policy holds every tunable constant of fusion and escalation. It is
// loaded once and passed by value; call sites never hard-code these.
type Policy struct {
	Version             string               `yaml:"version" json:"version"`
	Weights             ComponentWeights     `yaml:"weights" json:"weights"`
	Thresholds          LevelThresholds      `yaml:"thresholds" json:"thresholds"`
	SeverityWeights     SeverityWeights      `yaml:"severity_weights" json:"severity_weights"`
	CategoryMultipliers map[Category]float64 `yaml:"category_multipliers" json:"category_multipliers"`
	History             HistoryPolicy        `yaml:"history" json:"history"`
	// Minimum overall score when any indicator is critical.
	CriticalFloor float64 `yaml:"critical_floor" json:"critical_floor"`
	// Toxicity component score at which a message may be held back.
	BlockToxicityScore int `yaml:"block_toxicity_score" json:"block_toxicity_score"`
	// Confidence assigned to failsafe indicators.
	FailsafeConfidence float64 `yaml:"failsafe_confidence" json:"failsafe_confidence"`
}

// DefaultPolicy returns the reviewed default constants.
func DefaultPolicy() Policy {
	return Policy{
		Version: "2026.10.1",
		Weights: ComponentWeights{
			Crisis:            0.4,
			DVRisk:            0.3,
			Toxicity:          0.2,
			EmotionalDistress: 0.1,
		},
		Thresholds: LevelThresholds{Critical: 90, High: 70, Medium: 40, Low: 15},
		SeverityWeights: SeverityWeights{
			Low:      10,
			Medium:   25,
			High:     50,
			Critical: 100,
		},
		CategoryMultipliers: map[Category]float64{
			CategoryCrisis:             1.0,
			CategoryRelationshipCrisis: 0.5,
			CategoryToxicity:           1.0,
			CategoryDomesticViolence:   1.0,
			CategoryEmotionalDistress:  1.0,
			CategoryBehavioral:         0.8,
		},
		History: HistoryPolicy{
			WindowDays:      7,
			HighAverage:     70,
			HighFactor:      1.3,
			ElevatedAverage: 40,
			ElevatedFactor:  1.1,
		},
		CriticalFloor:      90,
		BlockToxicityScore: 70,
		FailsafeConfidence: 0.6,
	}
}

// LoadPolicy overlays a YAML file onto DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read safety policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy overlays YAML onto DefaultPolicy and validates the result.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse safety policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks ranges and ordering.
func (p Policy) Validate() error {
	for name, w := range map[string]float64{
		"crisis": p.Weights.Crisis, "dv_risk": p.Weights.DVRisk,
		"toxicity": p.Weights.Toxicity, "emotional_distress": p.Weights.EmotionalDistress,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: weight %s=%.2f outside [0,1]", ErrInvalidPolicy, name, w)
		}
	}
	t := p.Thresholds
	if !(t.Critical > t.High && t.High > t.Medium && t.Medium > t.Low && t.Low > 0 && t.Critical <= 100) {
		return fmt.Errorf("%w: thresholds must satisfy 0 < low < medium < high < critical <= 100", ErrInvalidPolicy)
	}
	if p.History.HighFactor < 1 || p.History.ElevatedFactor < 1 {
		return fmt.Errorf("%w: history factors must be >= 1", ErrInvalidPolicy)
	}
	if p.History.WindowDays <= 0 {
		return fmt.Errorf("%w: history window must be positive", ErrInvalidPolicy)
	}
	if p.CriticalFloor < 0 || p.CriticalFloor > 100 {
		return fmt.Errorf("%w: critical floor outside [0,100]", ErrInvalidPolicy)
	}
	for c, m := range p.CategoryMultipliers {
		if !c.Valid() || m < 0 {
			return fmt.Errorf("%w: category multiplier %s=%.2f", ErrInvalidPolicy, c, m)
		}
	}
	if p.FailsafeConfidence <= 0 || p.FailsafeConfidence > 1 {
		return fmt.Errorf("%w: failsafe confidence outside (0,1]", ErrInvalidPolicy)
	}
	return nil
}

// Level maps an overall score to its risk level.
func (p Policy) Level(score int) RiskLevel {
	s := float64(score)
	t := p.Thresholds
	switch {
	case s >= t.Critical:
		return RiskCritical
	case s >= t.High:
		return RiskHigh
	case s >= t.Medium:
		return RiskMedium
	case s >= t.Low:
		return RiskLow
	default:
		return RiskSafe
	}
}

// HistoryFactor returns the multiplier for a trailing average risk score.
func (p Policy) HistoryFactor(trailingAverage float64) float64 {
	switch {
	case trailingAverage > p.History.HighAverage:
		return p.History.HighFactor
	case trailingAverage > p.History.ElevatedAverage:
		return p.History.ElevatedFactor
	default:
		return 1.0
	}
}

func (p Policy) multiplier(c Category) float64 {
	if m, ok := p.CategoryMultipliers[c]; ok {
		return m
	}
	return 1.0
}
