package safety

// EmergencyContact is a generic contact suggestion in a safety plan.
// The plan never names or contacts anyone on the user's behalf.
type EmergencyContact struct {
	Label  string `json:"label"`
	Detail string `json:"detail"`
}

// SafetyPlan is generated for high and critical assessments.
type SafetyPlan struct {
	EmergencyContacts []EmergencyContact `json:"emergency_contacts"`
	CopingStrategies  []string           `json:"coping_strategies"`
	WarningSigns      []string           `json:"warning_signs"`
	DVGuidance        []string           `json:"dv_guidance,omitempty"`
}

// Decision is the escalation outcome for one assessment.
type Decision struct {
	RequiresIntervention bool        `json:"requires_intervention"`
	RequiresHumanReview  bool        `json:"requires_human_review"`
	SafetyPlan           *SafetyPlan `json:"safety_plan,omitempty"`
}

// ImmediateIntervention reports whether the decision must short-circuit
// every other validator.
func (d Decision) ImmediateIntervention(level RiskLevel) bool {
	return d.RequiresIntervention && level == RiskCritical
}

// Decide turns an assessment and the user's consent into required actions.
// A single critical indicator always requires intervention, whatever the
// aggregate score.
func Decide(a Assessment, prefs Preferences) Decision {
	d := Decision{
		RequiresIntervention: a.RiskLevel.AtLeast(RiskHigh) || a.HasCritical(),
	}
	d.RequiresHumanReview = a.RiskLevel == RiskCritical ||
		(d.RequiresIntervention && prefs.PermitsHumanReview())
	if a.RiskLevel.AtLeast(RiskHigh) {
		d.SafetyPlan = buildSafetyPlan(a)
	}
	return d
}

// Apply copies the decision flags onto the assessment.
func (d Decision) Apply(a Assessment) Assessment {
	a.RequiresIntervention = d.RequiresIntervention
	a.RequiresHumanReview = d.RequiresHumanReview
	return a
}

func buildSafetyPlan(a Assessment) *SafetyPlan {
	plan := &SafetyPlan{
		EmergencyContacts: []EmergencyContact{
			{Label: "Emergency services", Detail: "Call your local emergency number if you are in immediate danger"},
			{Label: "Crisis line", Detail: "Call or text a 24/7 crisis line listed below"},
			{Label: "Someone you trust", Detail: "A friend, family member or counselor you feel safe with"},
		},
		CopingStrategies: []string{
			"Move to a place where you feel physically safe",
			"Slow your breathing: in for four counts, out for six",
			"Remove or distance yourself from anything you could use to hurt yourself",
			"Stay with or call someone until the urge passes",
		},
		WarningSigns: warningSigns(a),
	}
	if a.HasCategory(CategoryDomesticViolence) {
		plan.DVGuidance = []string{
			"Keep important documents, keys and some money somewhere you can reach quickly",
			"Identify a safe place you could go at any time of day",
			"Agree on a code word with someone you trust that means you need help",
			"Use a device the other person cannot access when looking for help",
			"Clear your browsing history if it may be checked",
		}
	}
	return plan
}

func warningSigns(a Assessment) []string {
	signs := []string{
		"Thoughts of hurting yourself or not wanting to be alive",
		"Feeling trapped, hopeless or like a burden",
	}
	seen := make(map[string]bool)
	for _, ind := range a.Indicators {
		if ind.Severity < SeverityHigh || seen[ind.Description] {
			continue
		}
		seen[ind.Description] = true
		signs = append(signs, ind.Description)
	}
	return signs
}
