package safety

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalyzer(opts ...Option) *Analyzer {
	return NewAnalyzer(DefaultPatternLibrary(), DefaultPolicy(), opts...)
}

func assess(t *testing.T, a *Analyzer, text string) Assessment {
	t.Helper()
	out, err := a.Assess(context.Background(), text, nil, DefaultPreferences(), 1.0)
	require.NoError(t, err)
	return out
}

func TestAnalyzer_ScenarioA_SuicidalPlan(t *testing.T) {
	a := assess(t, newTestAnalyzer(), "I want to kill myself tonight, I have a plan")

	assert.Equal(t, RiskCritical, a.RiskLevel)
	assert.True(t, a.HasCritical())
	assert.True(t, Decide(a, DefaultPreferences()).RequiresIntervention)
	assert.Equal(t, DefaultPatternLibrary().Version, a.PatternVersion)
}

func TestAnalyzer_ScenarioB_PartnerViolence(t *testing.T) {
	a := assess(t, newTestAnalyzer(), "My partner hits me and won't let me leave")

	require.True(t, a.HasCategory(CategoryDomesticViolence))
	dv := a.Indicators[0]
	assert.Equal(t, CategoryDomesticViolence, dv.Category)
	assert.True(t, dv.Severity.AtLeast(SeverityHigh))
	assert.True(t, a.RiskLevel.AtLeast(RiskHigh))
}

func TestAnalyzer_ScenarioC_ResolvedDisagreement(t *testing.T) {
	a := assess(t, newTestAnalyzer(), "We disagreed about finances but talked it through")

	assert.Equal(t, RiskSafe, a.RiskLevel)
	assert.Empty(t, a.Indicators)
	assert.False(t, Decide(a, DefaultPreferences()).RequiresIntervention)
}

func TestAnalyzer_ScenarioD_FigurativeDying(t *testing.T) {
	a := assess(t, newTestAnalyzer(), "I'm dying to see the new movie with my partner")

	assert.Equal(t, RiskSafe, a.RiskLevel)
	assert.False(t, a.HasCategory(CategoryCrisis))
}

func TestAnalyzer_NoThrowInputs(t *testing.T) {
	an := newTestAnalyzer()
	inputs := map[string]string{
		"empty":      "",
		"whitespace": " \n\t ",
		"binary":     string([]byte{0x00, 0xff, 0xfe, 0x01, 0x02, 0x80, 0x81}),
		"long":       strings.Repeat("we had a lovely walk today ", 5000),
	}
	for name, text := range inputs {
		t.Run(name, func(t *testing.T) {
			var a Assessment
			assert.NotPanics(t, func() { a = assess(t, an, text) })
			assert.Equal(t, RiskSafe, a.RiskLevel)
		})
	}

	binary := assess(t, an, inputs["binary"])
	assert.LessOrEqual(t, binary.Confidence, lowConfidence)
}

func TestAnalyzer_LongInputStillDetectsCrisis(t *testing.T) {
	text := strings.Repeat("just an ordinary day ", 6000) + "and I want to end my life"
	require.Greater(t, len(text), 100_000)
	a := assess(t, newTestAnalyzer(), text)
	assert.Equal(t, RiskCritical, a.RiskLevel)
}

func TestAnalyzer_PanickingExtractorDegrades(t *testing.T) {
	var failures atomic.Int32
	lib := DefaultPatternLibrary()
	an := NewAnalyzer(lib, DefaultPolicy(),
		WithExtractors(append(DefaultExtractors(lib), panickingExtractor{})...),
		WithFailureHook(func(stage string, err error) {
			assert.Equal(t, "extract", stage)
			failures.Add(1)
		}),
	)

	a := assess(t, an, "I want to kill myself")
	assert.Equal(t, RiskCritical, a.RiskLevel)
	assert.Equal(t, []string{"boom"}, a.DegradedExtractors)
	assert.Equal(t, int32(1), failures.Load())
}

// brokenExtractor panics in place of a real detector of the given category.
type brokenExtractor struct {
	name     string
	category Category
}

func (b brokenExtractor) Name() string                                { return b.name }
func (b brokenExtractor) Category() Category                          { return b.category }
func (b brokenExtractor) Extract(string, *BehavioralContext) []Indicator { panic("index out of range") }

func withBroken(lib *PatternLibrary, c Category) []Extractor {
	var out []Extractor
	for _, e := range DefaultExtractors(lib) {
		if e.Category() == c {
			out = append(out, brokenExtractor{name: e.Name(), category: c})
			continue
		}
		out = append(out, e)
	}
	return out
}

func TestAnalyzer_BrokenLifeSafetyExtractorFallsBackToLiterals(t *testing.T) {
	lib := DefaultPatternLibrary()
	tests := []struct {
		category Category
		text     string
		want     RiskLevel
	}{
		{CategoryCrisis, "I want to kill myself tonight", RiskCritical},
		{CategoryDomesticViolence, "My husband hit me with a belt last night", RiskCritical},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			an := NewAnalyzer(lib, DefaultPolicy(), WithExtractors(withBroken(lib, tt.category)...))
			a := assess(t, an, tt.text)
			assert.Equal(t, tt.want, a.RiskLevel)
			assert.True(t, a.Failsafe)
			assert.True(t, a.HasCategory(tt.category))
			assert.Len(t, a.DegradedExtractors, 1)

			d := Decide(a, DefaultPreferences())
			assert.True(t, d.RequiresIntervention)
		})
	}

	an := NewAnalyzer(lib, DefaultPolicy(), WithExtractors(withBroken(lib, CategoryCrisis)...))
	a := assess(t, an, "We disagreed about finances but talked it through")
	assert.Equal(t, RiskSafe, a.RiskLevel)
	assert.True(t, a.Failsafe)
}

func TestAnalyzer_FusionPanicUsesFailsafe(t *testing.T) {
	an := newTestAnalyzer()
	an.fuse = func([]ExtractorOutput, float64, Policy) Assessment { panic("bad weights") }

	a := assess(t, an, "I feel hopeless and want to die")
	assert.True(t, a.Failsafe)
	assert.Equal(t, RiskCritical, a.RiskLevel)
	assert.Equal(t, 0.6, a.Confidence)

	a = assess(t, an, "lovely day at the park")
	assert.True(t, a.Failsafe)
	assert.NotEqual(t, RiskSafe, a.RiskLevel)
}

func TestAnalyzer_InvalidPolicyUsesFailsafe(t *testing.T) {
	p := DefaultPolicy()
	p.Thresholds.High = 10
	an := NewAnalyzer(DefaultPatternLibrary(), p)
	a := assess(t, an, "he beats me")
	assert.True(t, a.Failsafe)
	assert.Equal(t, RiskCritical, a.RiskLevel)
}

func TestAnalyzer_ConsentGating(t *testing.T) {
	an := newTestAnalyzer()
	ctx := context.Background()

	for _, level := range []ConsentLevel{ConsentManualMode, ConsentPrivacyMode} {
		_, err := an.Assess(ctx, "I want to kill myself", nil, Preferences{ConsentLevel: level}, 1)
		assert.ErrorIs(t, err, ErrAnalysisDisabled)
	}

	// Crisis and DV detection stay on even when the user disabled detectors.
	prefs := Preferences{ConsentLevel: ConsentBasicSafety}
	a, err := an.Assess(ctx, "you idiot, he hits me", nil, prefs, 1)
	require.NoError(t, err)
	assert.True(t, a.HasCategory(CategoryDomesticViolence))
	assert.False(t, a.HasCategory(CategoryToxicity))
}

func TestAnalyzer_BehavioralContext(t *testing.T) {
	an := newTestAnalyzer()
	bctx := &BehavioralContext{RecentSelfReportScores: []int{1, 2, 2}, RecentHighRiskCount: 4}
	a, err := an.Assess(context.Background(), "", bctx, DefaultPreferences(), 1)
	require.NoError(t, err)
	assert.True(t, a.HasCategory(CategoryBehavioral))
}

func TestAnalyzer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestAnalyzer().Assess(ctx, "hello", nil, DefaultPreferences(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

// cancellingExtractor cancels the request after it has produced output.
type cancellingExtractor struct {
	Extractor
	cancel context.CancelFunc
}

func (c cancellingExtractor) Extract(text string, bctx *BehavioralContext) []Indicator {
	out := c.Extractor.Extract(text, bctx)
	c.cancel()
	return out
}

func TestAnalyzer_CancelAfterExtractionKeepsResult(t *testing.T) {
	lib := DefaultPatternLibrary()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	crisis := NewKeywordExtractor("crisis_keywords", lib, CategoryCrisis)
	an := NewAnalyzer(lib, DefaultPolicy(), WithExtractors(cancellingExtractor{Extractor: crisis, cancel: cancel}))

	a, err := an.Assess(ctx, "I want to kill myself tonight", nil, DefaultPreferences(), 1)
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.Equal(t, RiskCritical, a.RiskLevel)
}
