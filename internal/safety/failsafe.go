package safety

import "math"

// Literal phrases re-scanned when scoring or a life-safety extractor fails.
// They are compiled in so the re-scan works even if the pattern library is
// the thing that broke.
var (
	failsafeCritical = map[Category][]string{
		CategoryCrisis: {
			"kill myself", "end my life", "suicide", "suicidal", "want to die",
			"better off dead", "hurt myself", "overdose",
		},
		CategoryDomesticViolence: {
			"hits me", "hit me", "beats me", "beat me", "choked me", "threatened to kill me",
		},
	}
	failsafeHigh = map[Category][]string{
		CategoryCrisis:           {"die", "dead", "hurt", "hopeless", "kill"},
		CategoryDomesticViolence: {"hit", "abuse", "afraid", "scared"},
	}
	failsafeCategories = []Category{CategoryCrisis, CategoryDomesticViolence}
)

// LifeSafety reports whether c is a category whose detector may never be
// silently lost.
func LifeSafety(c Category) bool {
	return c == CategoryCrisis || c == CategoryDomesticViolence
}

// FailsafeIndicators re-scans text for the compiled-in literals of one
// life-safety category. Severe literals win; weaker ones are reported only
// when no severe literal matched.
func FailsafeIndicators(text string, c Category, policy Policy) []Indicator {
	conf := failsafeConfidence(policy)
	norm := normalizeText(text)

	inds := scanLiterals(norm, c, failsafeCritical[c], SeverityCritical, conf,
		"Severe phrase found during failsafe re-scan")
	if len(inds) == 0 {
		inds = scanLiterals(norm, c, failsafeHigh[c], SeverityHigh, conf,
			"Possible risk phrase found during failsafe re-scan")
	}
	return inds
}

// FailsafeAssessment is returned when fusion or policy evaluation fails.
// It never reports safe: a literal severe phrase yields critical, a
// weaker match yields high, and no match yields low so the result is
// still reviewed rather than silently cleared.
func FailsafeAssessment(text string, policy Policy) Assessment {
	var inds []Indicator
	for _, c := range failsafeCategories {
		inds = append(inds, FailsafeIndicators(text, c, policy)...)
	}

	level, score := RiskLow, int(math.Ceil(policy.Thresholds.Low))
	switch {
	case hasSeverity(inds, SeverityCritical):
		level, score = RiskCritical, int(math.Ceil(policy.Thresholds.Critical))
		inds = withSeverity(inds, SeverityCritical)
	case len(inds) > 0:
		level, score = RiskHigh, int(math.Ceil(policy.Thresholds.High))
	}
	if score > 100 {
		score = 100
	}
	sortIndicators(inds)
	return Assessment{
		OverallScore:  score,
		RiskLevel:     level,
		Confidence:    failsafeConfidence(policy),
		Indicators:    inds,
		HistoryFactor: 1,
		Failsafe:      true,
		PolicyVersion: policy.Version,
	}
}

func failsafeConfidence(policy Policy) float64 {
	conf := policy.FailsafeConfidence
	if conf <= 0 || conf > 1 {
		conf = 0.6
	}
	return conf
}

func scanLiterals(norm string, c Category, phrases []string, sev Severity, conf float64, desc string) []Indicator {
	var inds []Indicator
	for _, p := range phrases {
		if len(phraseOccurrences(norm, p)) > 0 {
			inds = append(inds, Indicator{
				Kind:        KindKeyword,
				Category:    c,
				Severity:    sev,
				Confidence:  conf,
				Description: desc,
				TriggeredBy: p,
			})
		}
	}
	return inds
}

func hasSeverity(inds []Indicator, sev Severity) bool {
	for _, ind := range inds {
		if ind.Severity == sev {
			return true
		}
	}
	return false
}

func withSeverity(inds []Indicator, sev Severity) []Indicator {
	out := inds[:0]
	for _, ind := range inds {
		if ind.Severity == sev {
			out = append(out, ind)
		}
	}
	return out
}
