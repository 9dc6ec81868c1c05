// Package response turns an assessment and its escalation decision into the
// graduated message shown to the user.
package response

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/resources"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/safety"
)

type Severity string

const (
	SeverityCaution  Severity = "caution"
	SeverityConcern  Severity = "concern"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type ActionKind string

const (
	ActionEmergencyCall   ActionKind = "emergency_call"
	ActionContactResource ActionKind = "contact_resource"
	ActionSafetyPlan      ActionKind = "safety_plan"
	ActionGrounding       ActionKind = "grounding_exercise"
	ActionTakeBreak       ActionKind = "take_a_break"
	ActionViewResources   ActionKind = "view_resources"
	ActionCounselor       ActionKind = "talk_to_counselor"
	ActionCheckIn         ActionKind = "self_check_in"
)

type SuggestedAction struct {
	Kind  ActionKind `json:"kind"`
	Label string     `json:"label"`
}

type SafetyResponse struct {
	Severity           Severity                   `json:"severity"`
	Title              string                     `json:"title"`
	Message            string                     `json:"message"`
	SuggestedActions   []SuggestedAction          `json:"suggested_actions"`
	Resources          []resources.RankedResource `json:"resources"`
	SafetyPlan         *safety.SafetyPlan         `json:"safety_plan,omitempty"`
	FollowUpNeeded     bool                       `json:"follow_up_needed"`
	FollowUpAfterHours int                        `json:"follow_up_after_hours,omitempty"`
	UserCanDisable     bool                       `json:"user_can_disable"`
	PrivacyImpact      string                     `json:"privacy_impact"`
	TransparencyNote   string                     `json:"transparency_note"`
}

const (
	interventionResources = 3
	concernResources      = 5
)

// Generate builds the response for an assessment. It returns nil when the
// assessment is safe and no intervention was decided.
func Generate(a safety.Assessment, d safety.Decision, ranked []resources.RankedResource, prefs safety.Preferences) *SafetyResponse {
	sev, ok := severityFor(a, d)
	if !ok {
		return nil
	}
	prefs = prefs.Normalize()
	dv := a.HasCategory(safety.CategoryDomesticViolence)
	if dv {
		ranked = discreetFirst(ranked)
	}

	r := &SafetyResponse{
		Severity:         sev,
		UserCanDisable:   !d.RequiresHumanReview,
		PrivacyImpact:    privacyImpact(d),
		TransparencyNote: transparencyNote(a, d, prefs),
	}

	switch sev {
	case SeverityCaution:
		r.Title = "Checking in"
		r.Message = "It sounds like things might be a bit tense. Taking a short pause before replying can help."
		r.SuggestedActions = []SuggestedAction{
			{ActionTakeBreak, "Take a short break"},
			{ActionCheckIn, "Check in with how you are feeling"},
		}
	case SeverityConcern:
		r.Title = "Support is available"
		r.Message = "What you shared sounds hard. You do not have to work through it alone."
		r.Resources = top(ranked, concernResources)
		r.SuggestedActions = []SuggestedAction{
			{ActionViewResources, "See support options"},
			{ActionGrounding, "Try a short grounding exercise"},
			{ActionCounselor, "Talk with a counselor"},
		}
		if dv {
			r.Title = "Your safety matters"
			r.Message = "Feeling afraid or controlled at home is serious. Confidential support is available whenever you are ready."
			r.SuggestedActions = []SuggestedAction{
				{ActionContactResource, "Contact a confidential helpline"},
				{ActionSafetyPlan, "Learn about private safety planning"},
			}
		}
		r.FollowUpNeeded = true
		r.FollowUpAfterHours = 7 * 24
	default:
		r.Resources = top(ranked, interventionResources)
		r.SafetyPlan = d.SafetyPlan
		r.FollowUpNeeded = true
		r.FollowUpAfterHours = 48
		if sev == SeverityCritical {
			r.FollowUpAfterHours = 24
		}
		if dv {
			r.Title = "Your safety matters"
			r.Message = "What you described is not okay and it is not your fault. Confidential help is available, and you can reach out in a way that feels safe for you."
			r.SuggestedActions = []SuggestedAction{
				{ActionContactResource, "Contact a confidential helpline"},
				{ActionSafetyPlan, "Make a private safety plan"},
				{ActionEmergencyCall, "Call emergency services if you are in danger"},
			}
		} else {
			r.Title = "You are not alone"
			r.Message = "It sounds like you are going through something really painful. Please reach out to someone who can help right now."
			r.SuggestedActions = []SuggestedAction{
				{ActionContactResource, "Call or text a crisis line now"},
				{ActionSafetyPlan, "Open your safety plan"},
				{ActionEmergencyCall, "Call emergency services if you are in danger"},
			}
		}
	}
	return r
}

// severityFor maps the assessment to a response tier. A decision that
// requires intervention is never shown below the high tier, and a high
// severity crisis or DV signal never below concern.
func severityFor(a safety.Assessment, d safety.Decision) (Severity, bool) {
	switch {
	case a.RiskLevel == safety.RiskCritical:
		return SeverityCritical, true
	case a.RiskLevel == safety.RiskHigh, d.RequiresIntervention:
		return SeverityHigh, true
	case a.RiskLevel == safety.RiskMedium, a.HasLifeSafetySignal():
		return SeverityConcern, true
	case a.RiskLevel == safety.RiskLow:
		return SeverityCaution, true
	}
	return "", false
}

func top(ranked []resources.RankedResource, n int) []resources.RankedResource {
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return append([]resources.RankedResource(nil), ranked...)
}

func discreetFirst(ranked []resources.RankedResource) []resources.RankedResource {
	out := append([]resources.RankedResource(nil), ranked...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Resource.Discreet && !out[j].Resource.Discreet
	})
	return out
}

func privacyImpact(d safety.Decision) string {
	if d.RequiresHumanReview {
		return "A trained safety reviewer may read this message. Nobody else is contacted."
	}
	return "This analysis is visible only to you. Nobody else is contacted."
}

var categoryLabels = map[safety.Category]string{
	safety.CategoryCrisis:             "thoughts of self-harm or crisis",
	safety.CategoryRelationshipCrisis: "serious relationship strain",
	safety.CategoryToxicity:           "hurtful or hostile language",
	safety.CategoryDomesticViolence:   "possible abuse or control",
	safety.CategoryEmotionalDistress:  "emotional distress",
	safety.CategoryBehavioral:         "recent changes in your check-ins",
}

func transparencyNote(a safety.Assessment, d safety.Decision, prefs safety.Preferences) string {
	var b strings.Builder
	cats := a.Categories()
	if len(cats) == 0 {
		fmt.Fprintf(&b, "This message was analyzed automatically and scored %d out of 100.", a.OverallScore)
	} else {
		labels := make([]string, 0, len(cats))
		for _, c := range cats {
			labels = append(labels, categoryLabels[c])
		}
		fmt.Fprintf(&b, "We noticed %s in this message (%d signal", joinLabels(labels), len(a.Indicators))
		if len(a.Indicators) != 1 {
			b.WriteString("s")
		}
		fmt.Fprintf(&b, ", risk %s, confidence %d%%).", a.RiskLevel, int(a.Confidence*100+0.5))
	}
	fmt.Fprintf(&b, " Detection ran automatically under your %s setting.", strings.ReplaceAll(string(prefs.ConsentLevel), "_", " "))
	if a.Failsafe {
		b.WriteString(" Our checks could not finish normally, so we chose the cautious reading.")
	}
	if d.RequiresHumanReview {
		b.WriteString(" Because this may involve your safety, a trained reviewer will look at it and this review cannot be turned off.")
	}
	fmt.Fprintf(&b, " The record of this analysis is kept for %d days and you can see it in your transparency log.", prefs.RetentionDays)
	return b.String()
}

func joinLabels(labels []string) string {
	switch len(labels) {
	case 1:
		return labels[0]
	case 2:
		return labels[0] + " and " + labels[1]
	}
	return strings.Join(labels[:len(labels)-1], ", ") + " and " + labels[len(labels)-1]
}
