package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func output(cat Category, inds ...Indicator) ExtractorOutput {
	return ExtractorOutput{Extractor: string(cat), Category: cat, Indicators: inds}
}

func ind(cat Category, sev Severity, conf float64, phrase string) Indicator {
	return Indicator{Kind: KindKeyword, Category: cat, Severity: sev, Confidence: conf, TriggeredBy: phrase}
}

func TestPolicyLevel_Thresholds(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		score int
		want  RiskLevel
	}{
		{100, RiskCritical}, {90, RiskCritical}, {89, RiskHigh}, {70, RiskHigh},
		{69, RiskMedium}, {40, RiskMedium}, {39, RiskLow}, {15, RiskLow},
		{14, RiskSafe}, {0, RiskSafe},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Level(tt.score), "score %d", tt.score)
	}
}

func TestPolicyHistoryFactor(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 1.3, p.HistoryFactor(71))
	assert.Equal(t, 1.1, p.HistoryFactor(70))
	assert.Equal(t, 1.1, p.HistoryFactor(41))
	assert.Equal(t, 1.0, p.HistoryFactor(40))
	assert.Equal(t, 1.0, p.HistoryFactor(0))
}

func TestFuse_WeightedOverall(t *testing.T) {
	p := DefaultPolicy()
	a := Fuse([]ExtractorOutput{
		output(CategoryCrisis, ind(CategoryCrisis, SeverityHigh, 1.0, "no way out")),
		output(CategoryToxicity, ind(CategoryToxicity, SeverityHigh, 1.0, "youre pathetic")),
	}, 1.0, p)

	assert.Equal(t, 50, a.Scores.Crisis)
	assert.Equal(t, 50, a.Scores.Toxicity)
	// 0.4*50 + 0.2*50
	assert.Equal(t, 30, a.OverallScore)
	assert.Equal(t, RiskLow, a.RiskLevel)
}

func TestFuse_ComponentCappedAt100(t *testing.T) {
	p := DefaultPolicy()
	a := Fuse([]ExtractorOutput{output(CategoryDomesticViolence,
		ind(CategoryDomesticViolence, SeverityHigh, 1, "a"),
		ind(CategoryDomesticViolence, SeverityHigh, 1, "b"),
		ind(CategoryDomesticViolence, SeverityHigh, 1, "c"),
	)}, 1, p)
	assert.Equal(t, 100, a.Scores.DVRisk)
	assert.Equal(t, 30, a.OverallScore)
}

func TestFuse_HistoryFactorAndCap(t *testing.T) {
	p := DefaultPolicy()
	outs := []ExtractorOutput{output(CategoryCrisis, ind(CategoryCrisis, SeverityHigh, 1.0, "no way out"))}

	assert.Equal(t, 20, Fuse(outs, 1.0, p).OverallScore)
	assert.Equal(t, 26, Fuse(outs, 1.3, p).OverallScore)
	// Factors below one are treated as one.
	assert.Equal(t, 20, Fuse(outs, 0.5, p).OverallScore)

	critical := []ExtractorOutput{output(CategoryCrisis, ind(CategoryCrisis, SeverityCritical, 0.95, "kill myself"))}
	a := Fuse(critical, 1.3, p)
	assert.Equal(t, 100, a.OverallScore)
	assert.Equal(t, RiskCritical, a.RiskLevel)
}

func TestFuse_DuplicatePhraseDoesNotDoubleCount(t *testing.T) {
	p := DefaultPolicy()
	once := Fuse([]ExtractorOutput{output(CategoryToxicity, ind(CategoryToxicity, SeverityMedium, 0.7, "idiot"))}, 1, p)
	twice := Fuse([]ExtractorOutput{output(CategoryToxicity,
		ind(CategoryToxicity, SeverityMedium, 0.7, "idiot"),
		ind(CategoryToxicity, SeverityMedium, 0.7, "idiot"),
	)}, 1, p)
	assert.Equal(t, once.OverallScore, twice.OverallScore)
	assert.Len(t, twice.Indicators, 1)
}

func TestFuse_Idempotent(t *testing.T) {
	p := DefaultPolicy()
	outs := []ExtractorOutput{
		output(CategoryEmotionalDistress, ind(CategoryEmotionalDistress, SeverityMedium, 0.6, "overwhelmed")),
		output(CategoryCrisis, ind(CategoryCrisis, SeverityMedium, 0.6, "hopeless")),
		output(CategoryToxicity, ind(CategoryToxicity, SeverityLow, 0.5, "shit")),
	}
	first := Fuse(outs, 1.1, p)
	second := Fuse(outs, 1.1, p)
	assert.Equal(t, first, second)
}

func TestFuse_MonotoneInCriticalPhrases(t *testing.T) {
	p := DefaultPolicy()
	base := []Indicator{
		ind(CategoryCrisis, SeverityMedium, 0.6, "hopeless"),
		ind(CategoryToxicity, SeverityHigh, 0.8, "youre pathetic"),
	}
	criticals := []string{"kill myself", "end my life", "suicide", "want to die", "overdose"}

	for _, factor := range []float64{1.0, 1.1, 1.3} {
		prev := Fuse([]ExtractorOutput{output(CategoryCrisis, base...)}, factor, p).OverallScore
		inds := append([]Indicator(nil), base...)
		for _, phrase := range criticals {
			inds = append(inds, ind(CategoryCrisis, SeverityCritical, 0.95, phrase))
			score := Fuse([]ExtractorOutput{output(CategoryCrisis, inds...)}, factor, p).OverallScore
			assert.GreaterOrEqual(t, score, prev, "adding %q at factor %.1f", phrase, factor)
			prev = score
		}
	}
}

func TestFuse_IndicatorOrderIsDeterministic(t *testing.T) {
	p := DefaultPolicy()
	a := Fuse([]ExtractorOutput{
		output(CategoryToxicity, ind(CategoryToxicity, SeverityLow, 0.5, "shit")),
		output(CategoryCrisis, ind(CategoryCrisis, SeverityCritical, 0.95, "suicide")),
		output(CategoryDomesticViolence, ind(CategoryDomesticViolence, SeverityCritical, 0.9, "hits me")),
	}, 1, p)
	require.Len(t, a.Indicators, 3)
	assert.Equal(t, "suicide", a.Indicators[0].TriggeredBy)
	assert.Equal(t, "hits me", a.Indicators[1].TriggeredBy)
	assert.Equal(t, "shit", a.Indicators[2].TriggeredBy)
}

func TestFuse_DegradedConfidence(t *testing.T) {
	p := DefaultPolicy()
	healthy := Fuse([]ExtractorOutput{output(CategoryCrisis), output(CategoryToxicity)}, 1, p)
	degraded := Fuse([]ExtractorOutput{output(CategoryCrisis), {Extractor: "toxicity", Category: CategoryToxicity, Failed: true}}, 1, p)

	assert.Equal(t, RiskSafe, degraded.RiskLevel)
	assert.Less(t, degraded.Confidence, healthy.Confidence)
	assert.Equal(t, []string{"toxicity"}, degraded.DegradedExtractors)

	none := Fuse(nil, 1, p)
	assert.Equal(t, RiskSafe, none.RiskLevel)
	assert.Equal(t, lowConfidence, none.Confidence)
}
