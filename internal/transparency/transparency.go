// Package transparency keeps the user-visible log of every safety analysis
// and the actions taken because of it.
package transparency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/models"
)

type EventType string

const (
	EventAnalysis         EventType = "analysis"
	EventAnalysisSkipped  EventType = "analysis_skipped"
	EventIntervention     EventType = "intervention"
	EventResourceAccess   EventType = "resource_access"
	EventHumanReview      EventType = "human_review"
	EventPreferenceChange EventType = "preference_change"
)

// Retention windows in days. These differ by event type on purpose and are
// not collapsed into one value.
var retentionDays = map[EventType]int{
	EventAnalysis:         90,
	EventAnalysisSkipped:  90,
	EventIntervention:     365,
	EventResourceAccess:   730,
	EventHumanReview:      365,
	EventPreferenceChange: 365,
}

// RetentionDays returns how long entries of type t are kept.
func RetentionDays(t EventType) int {
	if d, ok := retentionDays[t]; ok {
		return d
	}
	return retentionDays[EventAnalysis]
}

var purposes = map[EventType]string{
	EventAnalysis:         "Detecting risk to your safety and wellbeing",
	EventAnalysisSkipped:  "Respecting your monitoring preferences",
	EventIntervention:     "Providing crisis support and safety resources",
	EventResourceAccess:   "Recording which support resources were offered",
	EventHumanReview:      "Human review of a possible safety risk",
	EventPreferenceChange: "Recording changes to your safety settings",
}

var (
	ErrNotFound    = errors.New("transparency entry not found")
	ErrUnavailable = errors.New("transparency log unavailable")
)

// Event is what callers report; the recorder turns it into an entry.
type Event struct {
	AppID          string
	UserID         uuid.UUID
	Type           EventType
	Description    string
	DataCategories []string
	AssessmentID   *uuid.UUID
}

// Store persists entries. Implementations must treat entries as append-only
// apart from the acknowledgment fields.
type Store interface {
	InsertTransparencyEntry(ctx context.Context, e *models.TransparencyEntry) error
	ListTransparencyEntries(ctx context.Context, appID string, userID uuid.UUID, limit int) ([]models.TransparencyEntry, error)
	AcknowledgeTransparencyEntry(ctx context.Context, appID string, userID, id uuid.UUID, at time.Time) error
}

type Config struct {
	// Timeout bounds one Record call including retries.
	Timeout      time.Duration
	MaxRetries   uint64
	InitialDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	return c
}

type Recorder struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	// OnFailure observes writes that were finally dropped.
	OnFailure func(EventType, error)
}

func NewRecorder(store Store, cfg Config, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, cfg: cfg.withDefaults(), logger: logger, now: time.Now}
}

// NewEntry builds the persisted form of ev as of now.
func NewEntry(ev Event, now time.Time) *models.TransparencyEntry {
	days := RetentionDays(ev.Type)
	cats := ev.DataCategories
	if cats == nil {
		cats = []string{}
	}
	raw, _ := json.Marshal(cats)
	return &models.TransparencyEntry{
		ID:                uuid.New(),
		AppID:             ev.AppID,
		UserID:            ev.UserID,
		EventType:         string(ev.Type),
		Description:       ev.Description,
		DataCategories:    datatypes.JSON(raw),
		ProcessingPurpose: purposes[ev.Type],
		AssessmentID:      ev.AssessmentID,
		RetentionDays:     days,
		RetainUntil:       now.AddDate(0, 0, days),
		VisibleToUser:     true,
		CreatedAt:         now,
	}
}

// Record writes ev with bounded retries. It never returns an error and never
// panics; a dropped write is logged as a warning. A nil Recorder records
// nothing.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if r == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.fail(ev, fmt.Errorf("panic: %v", p))
		}
	}()
	if r.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	entry := NewEntry(ev, r.now())
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.InitialDelay
	eb.MaxElapsedTime = r.cfg.Timeout
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, r.cfg.MaxRetries), ctx)

	err := backoff.Retry(func() error {
		return r.store.InsertTransparencyEntry(ctx, entry)
	}, policy)
	if err != nil {
		r.fail(ev, err)
	}
}

func (r *Recorder) fail(ev Event, err error) {
	r.logger.Warn("transparency write dropped",
		"event_type", ev.Type,
		"app_id", ev.AppID,
		"user_id", ev.UserID.String(),
		"error", err,
	)
	if r.OnFailure != nil {
		r.OnFailure(ev.Type, err)
	}
}

// List returns the user's visible entries, newest first.
func (r *Recorder) List(ctx context.Context, appID string, userID uuid.UUID, limit int) ([]models.TransparencyEntry, error) {
	if r == nil || r.store == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := r.store.ListTransparencyEntries(ctx, appID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transparency entries: %w", err)
	}
	visible := entries[:0]
	for _, e := range entries {
		if e.VisibleToUser {
			visible = append(visible, e)
		}
	}
	return visible, nil
}

// Acknowledge marks one of the user's entries as seen.
func (r *Recorder) Acknowledge(ctx context.Context, appID string, userID, id uuid.UUID) error {
	if r == nil || r.store == nil {
		return ErrUnavailable
	}
	if err := r.store.AcknowledgeTransparencyEntry(ctx, appID, userID, id, r.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("acknowledge transparency entry: %w", err)
	}
	return nil
}
