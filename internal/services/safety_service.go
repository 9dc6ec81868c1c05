package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/models"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/orchestrator"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/resources"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/response"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/safety"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/transparency"
)

var ErrInvalidInput = errors.New("invalid input")

// SafetyDeps are the collaborators of SafetyService. Cache, Recorder and
// Metrics are optional; without a Recorder no transparency entries are kept.
type SafetyDeps struct {
	Analyzer *safety.Analyzer
	Finder   *resources.Finder
	Store    SafetyStore
	Cache    HistoryCache
	Recorder *transparency.Recorder
	Apps     *tenant.Registry
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type SafetyConfig struct {
	// StoreTimeout bounds each persistence call made on behalf of a request.
	StoreTimeout   time.Duration
	ContentHashKey string
}

// AnalysisResult is what one message analysis returns to the caller.
type AnalysisResult struct {
	Assessment        *safety.Assessment       `json:"assessment,omitempty"`
	Decision          safety.Decision          `json:"decision"`
	Response          *response.SafetyResponse `json:"response,omitempty"`
	ResourcesFallback bool                     `json:"resources_fallback,omitempty"`
	Skipped           bool                     `json:"skipped"`
	Blocked           bool                     `json:"blocked"`
}

type SafetyService struct {
	analyzer *safety.Analyzer
	finder   *resources.Finder
	store    SafetyStore
	cache    HistoryCache
	recorder *transparency.Recorder
	apps     *tenant.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
	hasher   ContentHasher
	timeout  time.Duration
	now      func() time.Time

	// wg tracks post-response side effects so shutdown can drain them.
	wg sync.WaitGroup
}

func NewSafetyService(deps SafetyDeps, cfg SafetyConfig) *SafetyService {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 3 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	apps := deps.Apps
	if apps == nil {
		apps = tenant.NewRegistry()
	}
	return &SafetyService{
		analyzer: deps.Analyzer,
		finder:   deps.Finder,
		store:    deps.Store,
		cache:    deps.Cache,
		recorder: deps.Recorder,
		apps:     apps,
		metrics:  deps.Metrics,
		logger:   logger,
		hasher:   NewContentHasher([]byte(cfg.ContentHashKey)),
		timeout:  cfg.StoreTimeout,
		now:      time.Now,
	}
}

// Wait blocks until every in-flight side effect has finished.
func (s *SafetyService) Wait() {
	s.wg.Wait()
}

func (s *SafetyService) Policy() safety.Policy {
	return s.analyzer.Policy()
}

// Analyze runs the full pipeline for one message. Once an assessment calls
// for intervention, resource lookup and persistence run to completion even
// if ctx is cancelled.
func (s *SafetyService) Analyze(ctx context.Context, in safety.Input, loc *resources.Location) (*AnalysisResult, error) {
	start := time.Now()
	defer s.metrics.ObserveDuration("analyze", start)

	if in.AppID == "" || in.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: app_id and user_id are required", ErrInvalidInput)
	}
	if err := in.Behavior.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := in.Preferences.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	prefs := s.resolvePreferences(ctx, in)
	if !prefs.AutomaticAnalysis() {
		if prefs.ConsentLevel == safety.ConsentManualMode {
			s.record(ctx, transparency.Event{
				AppID:       in.AppID,
				UserID:      in.UserID,
				Type:        transparency.EventAnalysisSkipped,
				Description: "Automatic safety analysis was skipped because you chose manual mode.",
			})
		}
		return &AnalysisResult{Skipped: true}, nil
	}

	scores := s.trailingScores(ctx, in)
	factor := s.Policy().HistoryFactor(average(scores))
	bctx := s.behaviorWithHistory(in.Behavior, scores)

	a, err := s.analyzer.Assess(ctx, in.Text, bctx, prefs, factor)
	if err != nil {
		return nil, err
	}
	a.ID = uuid.New()
	a.AssessedAt = s.now()

	d := safety.Decide(a, prefs)
	a = d.Apply(a)

	workCtx := ctx
	if d.RequiresIntervention {
		workCtx = context.WithoutCancel(ctx)
	}

	var ranked []resources.RankedResource
	var fellBack bool
	if a.RiskLevel.AtLeast(safety.RiskLow) || d.RequiresIntervention || a.HasLifeSafetySignal() {
		ranked, fellBack = s.finder.Find(workCtx, a.Categories(), s.location(in.AppID, loc), resources.MatchOptions{
			PrioritizeCrisis: a.HasCategory(safety.CategoryCrisis) || a.RiskLevel.AtLeast(safety.RiskHigh),
			PreferDiscreet:   a.HasCategory(safety.CategoryDomesticViolence),
		})
	}

	resp := response.Generate(a, d, ranked, prefs)
	blocked := s.shouldBlock(in.AppID, a)
	s.observe(in.AppID, a, d, blocked)

	if a.Failsafe {
		s.reportFailsafe(in.AppID, a)
	}
	s.persist(workCtx, in, a, d, resp, prefs)

	return &AnalysisResult{
		Assessment:        &a,
		Decision:          d,
		Response:          resp,
		ResourcesFallback: fellBack,
		Blocked:           blocked,
	}, nil
}

// CheckMessage is Analyze for messages about to be delivered to another
// user. The result's Blocked flag says whether delivery should be withheld.
func (s *SafetyService) CheckMessage(ctx context.Context, in safety.Input, loc *resources.Location) (*AnalysisResult, error) {
	res, err := s.Analyze(ctx, in, loc)
	if err != nil {
		return nil, err
	}
	if res.Blocked {
		s.metrics.Blocked()
		s.logger.Info("message withheld",
			"app_id", in.AppID,
			"assessment_id", res.Assessment.ID.String(),
		)
	}
	return res, nil
}

// Evaluate lets the orchestrator use the service as its safety gate.
func (s *SafetyService) Evaluate(ctx context.Context, req orchestrator.Request) (orchestrator.SafetyOutcome, error) {
	res, err := s.Analyze(ctx, safety.Input{
		AppID:               req.AppID,
		UserID:              req.UserID,
		CoupleID:            req.CoupleID,
		MessageType:         req.MessageType,
		Text:                req.Text,
		ConversationHistory: req.History,
		Behavior:            req.Behavior,
		Preferences:         req.Preferences,
	}, nil)
	if err != nil {
		return orchestrator.SafetyOutcome{}, err
	}
	out := orchestrator.SafetyOutcome{
		Decision: res.Decision,
		Block:    res.Blocked,
		Skipped:  res.Skipped,
		Response: res.Response,
	}
	if res.Assessment != nil {
		out.Assessment = *res.Assessment
	}
	return out, nil
}

// FindResources serves an explicit resource request from the user.
func (s *SafetyService) FindResources(ctx context.Context, appID string, userID uuid.UUID, categories []safety.Category, loc *resources.Location, opts resources.MatchOptions) ([]resources.RankedResource, bool) {
	ranked, fellBack := s.finder.Find(ctx, categories, s.location(appID, loc), opts)

	labels := make([]string, 0, len(categories))
	for _, c := range categories {
		labels = append(labels, string(c))
	}
	s.record(ctx, transparency.Event{
		AppID:          appID,
		UserID:         userID,
		Type:           transparency.EventResourceAccess,
		Description:    fmt.Sprintf("You looked up %d support resources.", len(ranked)),
		DataCategories: labels,
	})
	return ranked, fellBack
}

// GetResource looks up one resource by id.
func (s *SafetyService) GetResource(ctx context.Context, id string) (resources.CrisisResource, bool) {
	return s.finder.Get(ctx, id)
}

// GetPreferences returns the stored preferences, or the defaults when the
// user never saved any.
func (s *SafetyService) GetPreferences(ctx context.Context, appID string, userID uuid.UUID) (safety.Preferences, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.store.GetPreferences(ctx, appID, userID)
	if errors.Is(err, ErrPreferencesNotFound) {
		return safety.DefaultPreferences(), nil
	}
	if err != nil {
		return safety.Preferences{}, err
	}
	return preferencesFromModel(p), nil
}

// UpdatePreferences validates and stores prefs and records the change in
// the user's transparency log.
func (s *SafetyService) UpdatePreferences(ctx context.Context, appID string, userID uuid.UUID, prefs safety.Preferences) (safety.Preferences, error) {
	if err := prefs.Validate(); err != nil {
		return safety.Preferences{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	prefs = prefs.Normalize()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	m := &models.SafetyPreference{
		AppID:              appID,
		UserID:             userID,
		ConsentLevel:       string(prefs.ConsentLevel),
		Toxicity:           prefs.Detectors.Toxicity,
		EmotionalDistress:  prefs.Detectors.EmotionalDistress,
		RelationshipCrisis: prefs.Detectors.RelationshipCrisis,
		Behavioral:         prefs.Detectors.Behavioral,
		RetentionDays:      prefs.RetentionDays,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.SavePreferences(ctx, m); err != nil {
		s.metrics.PersistenceError("preferences")
		return safety.Preferences{}, fmt.Errorf("failed to save preferences: %w", err)
	}

	s.record(ctx, transparency.Event{
		AppID:          appID,
		UserID:         userID,
		Type:           transparency.EventPreferenceChange,
		Description:    fmt.Sprintf("You changed your safety monitoring to %s.", prefs.ConsentLevel),
		DataCategories: []string{"safety_preferences"},
	})
	return preferencesFromModel(m), nil
}

func (s *SafetyService) ListTransparency(ctx context.Context, appID string, userID uuid.UUID, limit int) ([]models.TransparencyEntry, error) {
	return s.recorder.List(ctx, appID, userID, limit)
}

func (s *SafetyService) AcknowledgeTransparency(ctx context.Context, appID string, userID, id uuid.UUID) error {
	return s.recorder.Acknowledge(ctx, appID, userID, id)
}

// resolvePreferences uses the caller-supplied preferences when present and
// otherwise the stored ones. A store failure falls back to full safety.
func (s *SafetyService) resolvePreferences(ctx context.Context, in safety.Input) safety.Preferences {
	if in.Preferences.ConsentLevel != "" {
		return in.Preferences.Normalize()
	}
	prefs, err := s.GetPreferences(ctx, in.AppID, in.UserID)
	if err != nil {
		s.logger.Warn("preference lookup failed, using defaults",
			"app_id", in.AppID,
			"error", err,
		)
		return safety.DefaultPreferences()
	}
	return prefs.Normalize()
}

// trailingScores returns the user's overall scores within the history
// window. The cache is consulted first, then the store, then the
// conversation history supplied with the request.
func (s *SafetyService) trailingScores(ctx context.Context, in safety.Input) []int {
	since := s.now().AddDate(0, 0, -s.Policy().History.WindowDays)

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.cache != nil {
		scores, err := s.cache.Scores(lookupCtx, in.AppID, in.UserID, since)
		if err == nil && len(scores) > 0 {
			return scores
		}
		if err != nil {
			s.logger.Warn("history cache unavailable", "app_id", in.AppID, "error", err)
		}
	}
	if s.store != nil {
		scores, err := s.store.RecentRiskScores(lookupCtx, in.AppID, in.UserID, since)
		if err == nil && len(scores) > 0 {
			return scores
		}
		if err != nil {
			s.logger.Warn("risk history unavailable", "app_id", in.AppID, "error", err)
		}
	}

	var scores []int
	for _, h := range in.ConversationHistory {
		if !h.Timestamp.IsZero() && h.Timestamp.Before(since) {
			continue
		}
		scores = append(scores, h.RiskScore)
	}
	return scores
}

// behaviorWithHistory fills the high-risk count from the trailing scores
// when the caller did not supply one.
func (s *SafetyService) behaviorWithHistory(b *safety.BehavioralContext, scores []int) *safety.BehavioralContext {
	high := 0
	threshold := s.Policy().Thresholds.High
	for _, sc := range scores {
		if float64(sc) >= threshold {
			high++
		}
	}
	if high == 0 {
		return b
	}
	var out safety.BehavioralContext
	if b != nil {
		out = *b
	}
	if out.RecentHighRiskCount == 0 {
		out.RecentHighRiskCount = high
	}
	return &out
}

func (s *SafetyService) location(appID string, loc *resources.Location) *resources.Location {
	if loc != nil && loc.CountryCode != "" {
		return loc
	}
	if country := s.apps.DefaultCountry(appID); country != "" {
		return &resources.Location{CountryCode: country, Confidence: 1}
	}
	return loc
}

// shouldBlock withholds hostile messages for apps that opted in. Crisis and
// abuse disclosures are never withheld.
func (s *SafetyService) shouldBlock(appID string, a safety.Assessment) bool {
	if !s.apps.HasFeature(appID, tenant.FeatureMessageBlocking) {
		return false
	}
	if a.HasCategory(safety.CategoryCrisis) || a.HasCategory(safety.CategoryDomesticViolence) {
		return false
	}
	return a.Scores.Toxicity >= s.Policy().BlockToxicityScore
}

func (s *SafetyService) observe(appID string, a safety.Assessment, d safety.Decision, blocked bool) {
	s.metrics.ObserveAssessment(appID, a.RiskLevel.String(), a.Failsafe)
	for _, ind := range a.Indicators {
		s.metrics.ObserveIndicator(string(ind.Category), ind.Severity.String())
	}
	if d.RequiresIntervention {
		s.metrics.Intervention(a.RiskLevel.String(), d.RequiresHumanReview)
	}

	attrs := []any{
		"app_id", appID,
		"assessment_id", a.ID.String(),
		"risk_level", a.RiskLevel.String(),
		"overall_score", a.OverallScore,
		"indicators", len(a.Indicators),
		"blocked", blocked,
	}
	if d.RequiresIntervention {
		s.logger.Warn("safety intervention required", attrs...)
		return
	}
	s.logger.Debug("assessment completed", attrs...)
}

func (s *SafetyService) reportFailsafe(appID string, a safety.Assessment) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("app_id", appID)
		scope.SetTag("risk_level", a.RiskLevel.String())
		scope.SetLevel(sentry.LevelError)
		sentry.CaptureMessage("safety assessment fell back to failsafe")
	})
}

// persist writes the risk score, transparency entries and review case after
// the response has been built. Failures are logged and counted, never
// surfaced to the caller.
func (s *SafetyService) persist(ctx context.Context, in safety.Input, a safety.Assessment, d safety.Decision, resp *response.SafetyResponse, prefs safety.Preferences) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("persisting assessment panicked",
					"app_id", in.AppID,
					"assessment_id", a.ID.String(),
					"panic", fmt.Sprint(p),
				)
				s.metrics.PersistenceError("panic")
			}
		}()

		s.saveRiskScore(ctx, in, a)
		if s.cache != nil {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			if err := s.cache.Add(cctx, in.AppID, in.UserID, a.ID, a.OverallScore, a.AssessedAt); err != nil {
				s.logger.Warn("history cache write failed", "app_id", in.AppID, "error", err)
			}
			cancel()
		}

		id := a.ID
		s.recorder.Record(ctx, transparency.Event{
			AppID:          in.AppID,
			UserID:         in.UserID,
			Type:           transparency.EventAnalysis,
			Description:    analysisDescription(a),
			DataCategories: analyzedData(in, prefs),
			AssessmentID:   &id,
		})

		if d.RequiresIntervention {
			s.recorder.Record(ctx, transparency.Event{
				AppID:          in.AppID,
				UserID:         in.UserID,
				Type:           transparency.EventIntervention,
				Description:    fmt.Sprintf("We showed you safety support because this message was assessed as %s risk.", a.RiskLevel),
				DataCategories: categoryLabels(a),
				AssessmentID:   &id,
			})
		}
		if resp != nil && len(resp.Resources) > 0 {
			s.recorder.Record(ctx, transparency.Event{
				AppID:          in.AppID,
				UserID:         in.UserID,
				Type:           transparency.EventResourceAccess,
				Description:    fmt.Sprintf("We offered you %d support resources.", len(resp.Resources)),
				DataCategories: categoryLabels(a),
				AssessmentID:   &id,
			})
		}
		if d.RequiresHumanReview {
			s.openReviewCase(ctx, in, a)
		}
	}()
}

func (s *SafetyService) saveRiskScore(ctx context.Context, in safety.Input, a safety.Assessment) {
	if s.store == nil {
		return
	}
	indicators, err := json.Marshal(a.Indicators)
	if err != nil {
		indicators = []byte("[]")
	}
	row := &models.RiskScore{
		ID:                   a.ID,
		AppID:                in.AppID,
		UserID:               in.UserID,
		CoupleID:             in.CoupleID,
		MessageType:          in.MessageType,
		ContentHash:          s.hasher.Hash(in.Text),
		Toxicity:             a.Scores.Toxicity,
		Crisis:               a.Scores.Crisis,
		DVRisk:               a.Scores.DVRisk,
		EmotionalDistress:    a.Scores.EmotionalDistress,
		OverallScore:         a.OverallScore,
		RiskLevel:            a.RiskLevel.String(),
		Confidence:           a.Confidence,
		Indicators:           datatypes.JSON(indicators),
		RequiresIntervention: a.RequiresIntervention,
		RequiresHumanReview:  a.RequiresHumanReview,
		Failsafe:             a.Failsafe,
		HistoryFactor:        a.HistoryFactor,
		PolicyVersion:        a.PolicyVersion,
		PatternVersion:       a.PatternVersion,
		CreatedAt:            a.AssessedAt,
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	err = backoff.Retry(func() error {
		wctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.store.InsertRiskScore(wctx, row)
	}, b)
	if err != nil {
		s.metrics.PersistenceError("risk_score")
		s.logger.Error("risk score write failed",
			"app_id", in.AppID,
			"user_id", in.UserID.String(),
			"assessment_id", a.ID.String(),
			"action", "persist_risk_score",
			"error", err,
		)
	}
}

func (s *SafetyService) openReviewCase(ctx context.Context, in safety.Input, a safety.Assessment) {
	if s.store == nil {
		return
	}
	cats, _ := json.Marshal(categoryLabels(a))
	rc := &models.ReviewCase{
		ID:           uuid.New(),
		AppID:        in.AppID,
		UserID:       in.UserID,
		AssessmentID: a.ID,
		RiskLevel:    a.RiskLevel.String(),
		OverallScore: a.OverallScore,
		Categories:   datatypes.JSON(cats),
		Status:       models.ReviewPending,
	}
	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.CreateReviewCase(wctx, rc); err != nil {
		s.metrics.PersistenceError("review_case")
		s.logger.Error("review case write failed",
			"app_id", in.AppID,
			"assessment_id", a.ID.String(),
			"action", "open_review_case",
			"error", err,
		)
		return
	}

	id := a.ID
	s.recorder.Record(ctx, transparency.Event{
		AppID:          in.AppID,
		UserID:         in.UserID,
		Type:           transparency.EventHumanReview,
		Description:    "A trained safety reviewer will look at this assessment. They see the risk scores and categories, not your message.",
		DataCategories: categoryLabels(a),
		AssessmentID:   &id,
	})
}

func (s *SafetyService) record(ctx context.Context, ev transparency.Event) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.recorder.Record(ctx, ev)
	}()
}

func analysisDescription(a safety.Assessment) string {
	if a.Failsafe {
		return "Your message was checked for safety risks using a simplified check because the full analysis was unavailable."
	}
	if len(a.Indicators) == 0 {
		return "Your message was checked for safety risks. Nothing concerning was found."
	}
	return fmt.Sprintf("Your message was checked for safety risks and assessed as %s risk based on %d signals.", a.RiskLevel, len(a.Indicators))
}

// analyzedData lists the kinds of data that went into the assessment.
func analyzedData(in safety.Input, prefs safety.Preferences) []string {
	data := []string{"message_text"}
	if len(in.ConversationHistory) > 0 {
		data = append(data, "conversation_history")
	}
	if in.Behavior != nil && prefs.DetectorEnabled(safety.CategoryBehavioral) {
		data = append(data, "behavioral_signals")
	}
	return data
}

func categoryLabels(a safety.Assessment) []string {
	cats := a.Categories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

func average(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return float64(sum) / float64(len(scores))
}

func preferencesFromModel(p *models.SafetyPreference) safety.Preferences {
	return safety.Preferences{
		ConsentLevel: safety.ConsentLevel(p.ConsentLevel),
		Detectors: safety.DetectorFlags{
			Crisis:             true,
			DomesticViolence:   true,
			Toxicity:           p.Toxicity,
			EmotionalDistress:  p.EmotionalDistress,
			RelationshipCrisis: p.RelationshipCrisis,
			Behavioral:         p.Behavioral,
		},
		RetentionDays: p.RetentionDays,
	}.Normalize()
}
