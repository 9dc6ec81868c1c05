package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/models"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/transparency"
)

func seedCase(store *fakeStore, appID string) models.ReviewCase {
	rc := models.ReviewCase{
		ID:           uuid.New(),
		AppID:        appID,
		UserID:       uuid.New(),
		AssessmentID: uuid.New(),
		RiskLevel:    "critical",
		Status:       models.ReviewPending,
	}
	store.cases = append(store.cases, rc)
	return rc
}

func newTestReviewService(store *fakeStore) *ReviewService {
	return NewReviewService(store, transparency.NewRecorder(store, transparency.Config{InitialDelay: time.Millisecond}, nil), nil)
}

func TestReviewService_List(t *testing.T) {
	store := newFakeStore()
	seedCase(store, testApp)
	seedCase(store, testApp)
	seedCase(store, "other")
	svc := newTestReviewService(store)

	cases, total, err := svc.ListReviewCases(context.Background(), testApp, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, cases, 2)

	cases, _, err = svc.ListReviewCases(context.Background(), testApp, models.ReviewPending, 1, 0)
	require.NoError(t, err)
	assert.Len(t, cases, 1)

	_, _, err = svc.ListReviewCases(context.Background(), testApp, "bogus", 10, 0)
	assert.ErrorIs(t, err, ErrInvalidReviewStatus)
}

func TestReviewService_Action(t *testing.T) {
	store := newFakeStore()
	rc := seedCase(store, testApp)
	svc := newTestReviewService(store)
	ctx := context.Background()

	err := svc.ActionReviewCase(ctx, testApp, rc.ID, models.ReviewActioned, "  reached out with resources ", "admin")
	require.NoError(t, err)

	got, err := store.GetReviewCase(ctx, testApp, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewActioned, got.Status)
	assert.Equal(t, "reached out with resources", got.ReviewerNote)
	assert.Equal(t, "admin", got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)

	entries, err := store.ListTransparencyEntries(ctx, testApp, rc.UserID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(transparency.EventHumanReview), entries[0].EventType)
	assert.NotContains(t, entries[0].Description, "reached out")
}

func TestReviewService_ActionErrors(t *testing.T) {
	store := newFakeStore()
	rc := seedCase(store, testApp)
	svc := newTestReviewService(store)
	ctx := context.Background()

	assert.ErrorIs(t, svc.ActionReviewCase(ctx, testApp, rc.ID, models.ReviewPending, "", "admin"), ErrInvalidReviewStatus)
	assert.ErrorIs(t, svc.ActionReviewCase(ctx, testApp, uuid.New(), models.ReviewDismissed, "", "admin"), ErrReviewNotFound)
	assert.ErrorIs(t, svc.ActionReviewCase(ctx, "other", rc.ID, models.ReviewDismissed, "", "admin"), ErrReviewNotFound)
}
