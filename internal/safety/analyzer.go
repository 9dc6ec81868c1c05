package safety

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

var ErrAnalysisDisabled = errors.New("automatic analysis disabled by consent level")

// maxNonTextRatio is the share of invalid or control runes above which
// input is treated as binary rather than text.
const maxNonTextRatio = 0.3

// FailureHook is told about every recovered extractor or fusion fault.
type FailureHook func(stage string, err error)

// Analyzer runs the extractors and fuses their output.
type Analyzer struct {
	library    *PatternLibrary
	policy     Policy
	extractors []Extractor
	logger     *slog.Logger
	onFailure  FailureHook
	fuse       func([]ExtractorOutput, float64, Policy) Assessment
}

type Option func(*Analyzer)

func WithLogger(l *slog.Logger) Option { return func(a *Analyzer) { a.logger = l } }

func WithExtractors(ex ...Extractor) Option { return func(a *Analyzer) { a.extractors = ex } }

func WithFailureHook(h FailureHook) Option { return func(a *Analyzer) { a.onFailure = h } }

// NewAnalyzer builds an analyzer over an immutable library and policy.
func NewAnalyzer(lib *PatternLibrary, policy Policy, opts ...Option) *Analyzer {
	if lib == nil {
		lib = DefaultPatternLibrary()
	}
	a := &Analyzer{
		library: lib,
		policy:  policy,
		logger:  slog.Default(),
		fuse:    Fuse,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.extractors == nil {
		a.extractors = DefaultExtractors(lib)
	}
	return a
}

func (a *Analyzer) Policy() Policy                  { return a.policy }
func (a *Analyzer) PatternLibrary() *PatternLibrary { return a.library }

// Assess runs every enabled extractor concurrently and fuses the result.
// It returns an error only when consent forbids analysis or ctx ended
// before every extractor ran; every internal fault degrades instead.
func (a *Analyzer) Assess(ctx context.Context, text string, bctx *BehavioralContext, prefs Preferences, historyFactor float64) (Assessment, error) {
	prefs = prefs.Normalize()
	if !prefs.AutomaticAnalysis() {
		return Assessment{}, ErrAnalysisDisabled
	}
	analyzable := looksLikeText(text)

	var active []Extractor
	for _, e := range a.extractors {
		if !prefs.DetectorEnabled(e.Category()) {
			continue
		}
		if e.Category() != CategoryBehavioral && !analyzable {
			continue
		}
		active = append(active, e)
	}

	outputs := make([]ExtractorOutput, len(active))
	abandoned := make([]bool, len(active))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range active {
		i, e := i, e
		g.Go(func() error {
			if gctx.Err() != nil {
				outputs[i] = ExtractorOutput{Extractor: e.Name(), Category: e.Category(), Failed: true}
				abandoned[i] = true
				return nil
			}
			out, err := SafeExtract(e, text, bctx)
			if err != nil {
				a.logger.Warn("extractor failed", "extractor", e.Name(), "error", err)
				a.reportFailure("extract", err)
			}
			outputs[i] = out
			return nil
		})
	}
	_ = g.Wait()
	for _, skipped := range abandoned {
		if skipped {
			return Assessment{}, fmt.Errorf("extraction abandoned: %w", context.Cause(ctx))
		}
	}

	outputs, rescued := a.rescue(text, outputs)
	assessment := a.safeFuse(text, outputs, historyFactor)
	assessment.PatternVersion = a.library.Version
	if rescued {
		assessment.Failsafe = true
	}
	if !analyzable && assessment.Confidence > lowConfidence {
		assessment.Confidence = lowConfidence
	}
	return assessment, nil
}

// rescue adds a literal re-scan for every failed life-safety extractor so a
// crashed crisis or DV detector cannot clear the message.
func (a *Analyzer) rescue(text string, outputs []ExtractorOutput) ([]ExtractorOutput, bool) {
	rescued := false
	for _, out := range outputs {
		if !out.Failed || !LifeSafety(out.Category) {
			continue
		}
		rescued = true
		outputs = append(outputs, ExtractorOutput{
			Extractor:  out.Extractor + "_failsafe",
			Category:   out.Category,
			Indicators: FailsafeIndicators(text, out.Category, a.policy),
		})
		a.logger.Warn("life-safety extractor failed, using literal re-scan",
			"extractor", out.Extractor,
			"category", string(out.Category),
		)
	}
	return outputs, rescued
}

func (a *Analyzer) safeFuse(text string, outputs []ExtractorOutput, historyFactor float64) (out Assessment) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("fusion panicked: %v", r)
			a.logger.Error("risk fusion failed, using failsafe assessment", "error", err)
			a.reportFailure("fusion", err)
			out = FailsafeAssessment(text, a.policy)
		}
	}()
	if err := a.policy.Validate(); err != nil {
		a.logger.Error("invalid policy, using failsafe assessment", "error", err)
		a.reportFailure("policy", err)
		return FailsafeAssessment(text, a.policy)
	}
	return a.fuse(outputs, historyFactor, a.policy)
}

func (a *Analyzer) reportFailure(stage string, err error) {
	if a.onFailure != nil {
		a.onFailure(stage, err)
	}
}

// looksLikeText rejects empty, whitespace-only and binary input.
func looksLikeText(s string) bool {
	total, bad, printable := 0, 0, 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		total++
		switch {
		case r == utf8.RuneError && size == 1:
			bad++
		case unicode.IsControl(r) && !unicode.IsSpace(r):
			bad++
		case !unicode.IsSpace(r):
			printable++
		}
	}
	if total == 0 || printable == 0 {
		return false
	}
	return float64(bad)/float64(total) <= maxNonTextRatio
}
