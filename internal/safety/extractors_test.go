package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractorFor(t *testing.T, c Category) Extractor {
	t.Helper()
	for _, e := range DefaultExtractors(DefaultPatternLibrary()) {
		if e.Category() == c {
			return e
		}
	}
	t.Fatalf("no extractor for %s", c)
	return nil
}

func TestCrisisExtractor_Tiers(t *testing.T) {
	e := extractorFor(t, CategoryCrisis)

	inds := e.Extract("I want to kill myself tonight, I have a plan", nil)
	require.Len(t, inds, 2)
	assert.Equal(t, SeverityCritical, inds[0].Severity)
	assert.Equal(t, 0.95, inds[0].Confidence)
	assert.Equal(t, "kill myself", inds[0].TriggeredBy)
	assert.Equal(t, SeverityHigh, inds[1].Severity)

	inds = e.Extract("I feel so hopeless", nil)
	require.Len(t, inds, 1)
	assert.Equal(t, SeverityMedium, inds[0].Severity)
	assert.Equal(t, 0.6, inds[0].Confidence)
}

func TestKeywordExtractor_RepeatedPhraseCountsOnce(t *testing.T) {
	e := extractorFor(t, CategoryCrisis)
	inds := e.Extract("hopeless. hopeless. HOPELESS.", nil)
	assert.Len(t, inds, 1)
}

func TestDVExtractor_LowerConfidenceThanSelfHarm(t *testing.T) {
	lib := DefaultPatternLibrary()
	crisisCritical := 0.0
	for _, tier := range lib.Tiers(CategoryCrisis) {
		if tier.Severity == SeverityCritical {
			crisisCritical = tier.Confidence
		}
	}
	for _, tier := range lib.Tiers(CategoryDomesticViolence) {
		assert.GreaterOrEqual(t, tier.Confidence, 0.75, tier.Name)
		assert.LessOrEqual(t, tier.Confidence, 0.9, tier.Name)
		assert.Less(t, tier.Confidence, crisisCritical, tier.Name)
	}
}

func TestDVExtractor_FalseFriends(t *testing.T) {
	e := extractorFor(t, CategoryDomesticViolence)
	assert.Empty(t, e.Extract("hit me up when you get home", nil))
	assert.Empty(t, e.Extract("it hit me how much I love you", nil))
	assert.Empty(t, e.Extract("you beat me to it again", nil))
	assert.Empty(t, e.Extract("she hit me with the news over dinner", nil))
	assert.NotEmpty(t, e.Extract("he hit me last night", nil))
}

func TestDVExtractor_LiteralReportsNotExcluded(t *testing.T) {
	e := extractorFor(t, CategoryDomesticViolence)
	for _, text := range []string{
		"My husband hit me with a belt last night",
		"He beat me at home again",
		"He threw a plate and it hit me",
		"she beat me at the kitchen table",
	} {
		inds := e.Extract(text, nil)
		require.NotEmpty(t, inds, text)
		assert.Equal(t, SeverityCritical, inds[0].Severity, text)
	}
}

func TestKeywordExtractor_EmptyAndGarbage(t *testing.T) {
	for _, e := range DefaultExtractors(DefaultPatternLibrary()) {
		assert.NotPanics(t, func() {
			assert.Empty(t, e.Extract("", nil))
			assert.Empty(t, e.Extract(string([]byte{0xff, 0xfe, 0x00}), nil))
		}, e.Name())
	}
}

func TestBehavioralExtractor(t *testing.T) {
	e := NewBehavioralExtractor()

	assert.Empty(t, e.Extract("ignored", nil))

	inds := e.Extract("", &BehavioralContext{
		Version:                       BehavioralContextVersion,
		RecentSelfReportScores:        []int{2, 3, 2, 9},
		NegativePositiveRatio:         1.8,
		PreviousNegativePositiveRatio: 1.2,
		RecentHighRiskCount:           3,
	})
	require.Len(t, inds, 3)
	for _, ind := range inds {
		assert.Equal(t, KindBehavioral, ind.Kind)
		assert.Equal(t, SeverityMedium, ind.Severity)
	}

	assert.Empty(t, e.Extract("", &BehavioralContext{
		RecentSelfReportScores:        []int{8, 7},
		NegativePositiveRatio:         0.4,
		PreviousNegativePositiveRatio: 0.5,
	}))
}

func TestBehavioralExtractor_InvalidContextYieldsNothing(t *testing.T) {
	e := NewBehavioralExtractor()
	assert.Empty(t, e.Extract("", &BehavioralContext{RecentSelfReportScores: []int{0, 42}}))
	assert.Empty(t, e.Extract("", &BehavioralContext{Version: 7, RecentHighRiskCount: 5}))
}

type panickingExtractor struct{}

func (panickingExtractor) Name() string                                { return "boom" }
func (panickingExtractor) Category() Category                          { return CategoryToxicity }
func (panickingExtractor) Extract(string, *BehavioralContext) []Indicator { panic("boom") }

func TestSafeExtract_RecoversPanic(t *testing.T) {
	out, err := SafeExtract(panickingExtractor{}, "text", nil)
	require.Error(t, err)
	assert.True(t, out.Failed)
	assert.Empty(t, out.Indicators)
	assert.Equal(t, "boom", out.Extractor)
}
