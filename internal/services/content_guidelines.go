package services

import (
	"context"
	"regexp"
	"sync"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/orchestrator"
)

// BannedWords is the profanity list enforced by the content guidelines.
// Distress vocabulary is left to the safety pipeline.
var BannedWords = []string{
	"fuck", "fucking", "fucker", "shit", "shitty", "bullshit",
	"asshole", "bastard", "bitch", "cunt",
	"nigger", "nigga", "chink", "spic", "kike", "faggot", "fag",
	"retard", "retarded", "tranny",
	"porn", "porno", "nude", "nudes",
	"scam", "scammer", "phishing", "malware",
}

const defaultMaxMessageRunes = 5000

// ContentGuidelines is the community guideline validator. It runs after
// the safety gate and never sees content the gate has already taken over.
type ContentGuidelines struct {
	maxRunes            int
	bannedWordRegexps   []*regexp.Regexp
	urlPattern          *regexp.Regexp
	emailPattern        *regexp.Regexp
	phonePattern        *regexp.Regexp
	repeatedCharPattern *regexp.Regexp
	allCapsPattern      *regexp.Regexp
	compiled            bool
	mu                  sync.RWMutex
}

func NewContentGuidelines(maxRunes int) *ContentGuidelines {
	if maxRunes <= 0 {
		maxRunes = defaultMaxMessageRunes
	}
	cg := &ContentGuidelines{maxRunes: maxRunes}
	cg.compilePatterns()
	return cg
}

func (cg *ContentGuidelines) compilePatterns() {
	cg.mu.Lock()
	defer cg.mu.Unlock()
	if cg.compiled {
		return
	}

	cg.bannedWordRegexps = make([]*regexp.Regexp, 0, len(BannedWords))
	for _, word := range BannedWords {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
		if err == nil {
			cg.bannedWordRegexps = append(cg.bannedWordRegexps, re)
		}
	}

	cg.urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+\.\S+)`)
	cg.emailPattern = regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)
	cg.phonePattern = regexp.MustCompile(`\d{3}[-.\s]?\d{3}[-.\s]?\d{4}|\(\d{3}\)\s*\d{3}[-.\s]?\d{4}`)
	cg.repeatedCharPattern = regexp.MustCompile(`(?i)(a{5,}|b{5,}|c{5,}|d{5,}|e{5,}|f{5,}|g{5,}|h{5,}|i{5,}|j{5,}|k{5,}|l{5,}|m{5,}|n{5,}|o{5,}|p{5,}|q{5,}|r{5,}|s{5,}|t{5,}|u{5,}|v{5,}|w{5,}|x{5,}|y{5,}|z{5,}|!{5,}|\?{5,}|\.{5,})`)
	cg.allCapsPattern = regexp.MustCompile(`[A-Z]{5,}`)
	cg.compiled = true
}

// FilterContent returns whether text passes and, if not, a reason code.
func (cg *ContentGuidelines) FilterContent(text string) (bool, string) {
	cg.mu.RLock()
	defer cg.mu.RUnlock()
	if text == "" {
		return true, ""
	}
	if utf8.RuneCountInString(text) > cg.maxRunes {
		return false, "message_too_long"
	}
	for _, re := range cg.bannedWordRegexps {
		if re.MatchString(text) {
			return false, "inappropriate_language"
		}
	}
	if cg.urlPattern.MatchString(text) {
		return false, "url_not_allowed"
	}
	if cg.emailPattern.MatchString(text) || cg.phonePattern.MatchString(text) {
		return false, "contact_info_not_allowed"
	}
	if cg.repeatedCharPattern.MatchString(text) {
		return false, "spam_detected"
	}
	if len(cg.allCapsPattern.FindAllString(text, -1)) > 2 {
		return false, "excessive_caps"
	}
	return true, ""
}

func (cg *ContentGuidelines) GetRejectionMessage(reason string) string {
	messages := map[string]string{
		"message_too_long":         "Your message is too long.",
		"inappropriate_language":   "Your message contains inappropriate language.",
		"url_not_allowed":          "URLs and web links are not allowed.",
		"contact_info_not_allowed": "Contact information is not allowed.",
		"spam_detected":            "Your message appears to be spam.",
		"excessive_caps":           "Please avoid using excessive capital letters.",
	}
	if msg, ok := messages[reason]; ok {
		return msg
	}
	return "Your message does not meet our content guidelines."
}

func (cg *ContentGuidelines) Name() string { return "content_guidelines" }

// Validate implements orchestrator.Validator.
func (cg *ContentGuidelines) Validate(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	if err := ctx.Err(); err != nil {
		return orchestrator.Result{}, err
	}
	ok, reason := cg.FilterContent(req.Text)
	if ok {
		return orchestrator.Result{Passed: true, Confidence: 0.9}, nil
	}
	return orchestrator.Result{
		Passed:     false,
		Confidence: 0.8,
		Reason:     reason,
		Message:    cg.GetRejectionMessage(reason),
	}, nil
}
