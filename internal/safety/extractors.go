package safety

import (
	"fmt"
)

// Extractor is an independent detector. Extract must be pure and must not
// panic for any input; malformed input yields no indicators.
type Extractor interface {
	Name() string
	Category() Category
	Extract(text string, bctx *BehavioralContext) []Indicator
}

// keywordExtractor matches one Pattern Library category against text.
type keywordExtractor struct {
	name     string
	category Category
	tiers    []PatternTier
}

// NewKeywordExtractor builds the extractor for one library category.
func NewKeywordExtractor(name string, lib *PatternLibrary, category Category) Extractor {
	return &keywordExtractor{name: name, category: category, tiers: lib.Tiers(category)}
}

func (e *keywordExtractor) Name() string       { return e.name }
func (e *keywordExtractor) Category() Category { return e.category }

func (e *keywordExtractor) Extract(text string, _ *BehavioralContext) []Indicator {
	norm := normalizeText(text)
	if norm == "" {
		return nil
	}
	var out []Indicator
	seen := make(map[string]bool)
	for _, tier := range e.tiers {
		for _, phrase := range matchTier(norm, tier) {
			if seen[phrase] {
				continue
			}
			seen[phrase] = true
			out = append(out, Indicator{
				Kind:        tier.Kind,
				Category:    e.category,
				Severity:    tier.Severity,
				Confidence:  tier.Confidence,
				Description: tier.Description,
				TriggeredBy: phrase,
			})
		}
	}
	return out
}

// Thresholds used by the behavioral extractor.
const (
	lowSelfReportAverage   = 3.0
	selfReportWindow       = 3
	risingRatioFactor      = 1.25
	repeatedHighRiskCount  = 2
	behavioralConfidence   = 0.6
	repeatedRiskConfidence = 0.7
)

// behavioralExtractor folds contextual signals into medium indicators.
// It is the only extractor that ignores the text.
type behavioralExtractor struct{}

// NewBehavioralExtractor returns the context-driven extractor.
func NewBehavioralExtractor() Extractor { return behavioralExtractor{} }

func (behavioralExtractor) Name() string       { return "behavioral" }
func (behavioralExtractor) Category() Category { return CategoryBehavioral }

func (behavioralExtractor) Extract(_ string, bctx *BehavioralContext) []Indicator {
	if bctx == nil || bctx.Validate() != nil {
		return nil
	}
	var out []Indicator

	if n := len(bctx.RecentSelfReportScores); n > 0 {
		if n > selfReportWindow {
			n = selfReportWindow
		}
		sum := 0
		for _, s := range bctx.RecentSelfReportScores[:n] {
			sum += s
		}
		avg := float64(sum) / float64(n)
		if avg <= lowSelfReportAverage {
			out = append(out, Indicator{
				Kind:        KindBehavioral,
				Category:    CategoryBehavioral,
				Severity:    SeverityMedium,
				Confidence:  behavioralConfidence,
				Description: "Recent self-reported wellbeing is low",
				TriggeredBy: fmt.Sprintf("self_report_average=%.1f", avg),
			})
		}
	}

	cur, prev := bctx.NegativePositiveRatio, bctx.PreviousNegativePositiveRatio
	if cur > 1 && cur >= prev*risingRatioFactor {
		out = append(out, Indicator{
			Kind:        KindBehavioral,
			Category:    CategoryBehavioral,
			Severity:    SeverityMedium,
			Confidence:  behavioralConfidence,
			Description: "Negative interactions are rising relative to positive ones",
			TriggeredBy: fmt.Sprintf("negative_positive_ratio=%.2f previous=%.2f", cur, prev),
		})
	}

	if bctx.RecentHighRiskCount >= repeatedHighRiskCount {
		out = append(out, Indicator{
			Kind:        KindBehavioral,
			Category:    CategoryBehavioral,
			Severity:    SeverityMedium,
			Confidence:  repeatedRiskConfidence,
			Description: "Repeated elevated-risk messages in the last week",
			TriggeredBy: fmt.Sprintf("recent_high_risk_count=%d", bctx.RecentHighRiskCount),
		})
	}
	return out
}

// DefaultExtractors returns one extractor per concern.
func DefaultExtractors(lib *PatternLibrary) []Extractor {
	return []Extractor{
		NewKeywordExtractor("crisis_keywords", lib, CategoryCrisis),
		NewKeywordExtractor("relationship_patterns", lib, CategoryRelationshipCrisis),
		NewKeywordExtractor("toxicity", lib, CategoryToxicity),
		NewKeywordExtractor("domestic_violence", lib, CategoryDomesticViolence),
		NewKeywordExtractor("emotional_distress", lib, CategoryEmotionalDistress),
		NewBehavioralExtractor(),
	}
}

// ExtractorOutput is the result of running one extractor.
type ExtractorOutput struct {
	Extractor  string      `json:"extractor"`
	Category   Category    `json:"category"`
	Indicators []Indicator `json:"indicators"`
	Failed     bool        `json:"failed"`
}

// SafeExtract runs e and converts a panic into a failed output.
func SafeExtract(e Extractor, text string, bctx *BehavioralContext) (out ExtractorOutput, err error) {
	out = ExtractorOutput{Extractor: e.Name(), Category: e.Category()}
	defer func() {
		if r := recover(); r != nil {
			out.Indicators = nil
			out.Failed = true
			err = fmt.Errorf("extractor %s panicked: %v", e.Name(), r)
		}
	}()
	out.Indicators = e.Extract(text, bctx)
	return out, nil
}
