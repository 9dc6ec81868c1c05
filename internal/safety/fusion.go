package safety

import (
	"math"
	"sort"
)

const (
	maxComponentScore = 100.0
	// Confidence of a clean assessment with no indicators.
	baselineConfidence = 0.8
	// Confidence of an assessment with nothing meaningful to analyze.
	lowConfidence = 0.3
	// Share of confidence lost when every extractor failed.
	degradedPenalty = 0.5
)

type component int

const (
	componentCrisis component = iota
	componentDV
	componentToxicity
	componentDistress
	componentCount
)

func componentOf(c Category) component {
	switch c {
	case CategoryCrisis, CategoryRelationshipCrisis:
		return componentCrisis
	case CategoryDomesticViolence:
		return componentDV
	case CategoryToxicity:
		return componentToxicity
	default:
		return componentDistress
	}
}

// Fuse combines extractor outputs into one assessment. It is a pure
// function of its arguments: identical inputs yield identical results.
// ID and AssessedAt are left for the caller to stamp.
func Fuse(outputs []ExtractorOutput, historyFactor float64, policy Policy) Assessment {
	if math.IsNaN(historyFactor) || historyFactor < 1 {
		historyFactor = 1
	}

	var (
		scores     [componentCount]float64
		indicators []Indicator
		degraded   []string
		critical   bool
	)
	seen := make(map[Category]map[string]bool)
	for _, out := range outputs {
		if out.Failed {
			degraded = append(degraded, out.Extractor)
			continue
		}
		for _, ind := range out.Indicators {
			if seen[ind.Category] == nil {
				seen[ind.Category] = make(map[string]bool)
			}
			if seen[ind.Category][ind.TriggeredBy] {
				continue
			}
			seen[ind.Category][ind.TriggeredBy] = true

			conf := clamp01(ind.Confidence)
			contrib := policy.SeverityWeights.For(ind.Severity) * conf * policy.multiplier(ind.Category)
			comp := componentOf(ind.Category)
			scores[comp] = math.Min(maxComponentScore, scores[comp]+contrib)
			if ind.Severity == SeverityCritical {
				critical = true
			}
			indicators = append(indicators, ind)
		}
	}

	w := policy.Weights
	overall := w.Crisis*scores[componentCrisis] +
		w.DVRisk*scores[componentDV] +
		w.Toxicity*scores[componentToxicity] +
		w.EmotionalDistress*scores[componentDistress]
	if critical {
		overall = math.Max(overall, policy.CriticalFloor)
	}
	overall = math.Min(maxComponentScore, overall*historyFactor)
	score := int(math.Round(overall))

	sortIndicators(indicators)

	return Assessment{
		Scores: ComponentScores{
			Crisis:            roundScore(scores[componentCrisis]),
			DVRisk:            roundScore(scores[componentDV]),
			Toxicity:          roundScore(scores[componentToxicity]),
			EmotionalDistress: roundScore(scores[componentDistress]),
		},
		OverallScore:       score,
		RiskLevel:          policy.Level(score),
		Confidence:         fusedConfidence(indicators, len(outputs), len(degraded)),
		Indicators:         indicators,
		HistoryFactor:      historyFactor,
		DegradedExtractors: degraded,
		PolicyVersion:      policy.Version,
	}
}

func fusedConfidence(indicators []Indicator, total, failed int) float64 {
	if total == 0 || failed == total {
		return lowConfidence
	}
	conf := baselineConfidence
	if len(indicators) > 0 {
		sum := 0.0
		for _, ind := range indicators {
			sum += clamp01(ind.Confidence)
		}
		conf = sum / float64(len(indicators))
	}
	conf *= 1 - degradedPenalty*float64(failed)/float64(total)
	return math.Round(conf*100) / 100
}

// sortIndicators orders by severity, then confidence, then category and
// phrase so output order never depends on extractor scheduling.
func sortIndicators(inds []Indicator) {
	sort.SliceStable(inds, func(i, j int) bool {
		a, b := inds[i], inds[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.TriggeredBy < b.TriggeredBy
	})
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func roundScore(v float64) int {
	return int(math.Round(math.Min(maxComponentScore, math.Max(0, v))))
}
