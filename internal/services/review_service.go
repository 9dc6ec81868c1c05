package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/models"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/transparency"
)

var ErrInvalidReviewStatus = errors.New("invalid status: must be reviewed, actioned, or dismissed")

// ReviewService is the admin side of the human review queue.
type ReviewService struct {
	store    SafetyStore
	recorder *transparency.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewReviewService(store SafetyStore, recorder *transparency.Recorder, logger *slog.Logger) *ReviewService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewService{store: store, recorder: recorder, logger: logger, now: time.Now}
}

func (s *ReviewService) ListReviewCases(ctx context.Context, appID, status string, limit, offset int) ([]models.ReviewCase, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if status != "" && status != models.ReviewPending && !models.ValidReviewStatus(status) {
		return nil, 0, ErrInvalidReviewStatus
	}
	return s.store.ListReviewCases(ctx, appID, status, limit, offset)
}

// ActionReviewCase closes a case. The user is told a person reviewed the
// assessment; the note itself stays internal.
func (s *ReviewService) ActionReviewCase(ctx context.Context, appID string, id uuid.UUID, status, note, reviewer string) error {
	if !models.ValidReviewStatus(status) {
		return ErrInvalidReviewStatus
	}
	rc, err := s.store.GetReviewCase(ctx, appID, id)
	if err != nil {
		return err
	}

	err = s.store.UpdateReviewCase(ctx, appID, id, ReviewUpdate{
		Status:     status,
		Note:       strings.TrimSpace(note),
		ReviewedBy: reviewer,
		ReviewedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to update review case: %w", err)
	}

	s.logger.Info("review case actioned",
		"app_id", appID,
		"review_case_id", id.String(),
		"status", status,
	)

	assessmentID := rc.AssessmentID
	s.recorder.Record(ctx, transparency.Event{
		AppID:          appID,
		UserID:         rc.UserID,
		Type:           transparency.EventHumanReview,
		Description:    "A trained safety reviewer looked at a flagged assessment.",
		DataCategories: []string{"risk_scores"},
		AssessmentID:   &assessmentID,
	})
	return nil
}
