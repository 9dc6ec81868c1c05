package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/models"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/transparency"
)

type fakeStore struct {
	mu            sync.Mutex
	scores        []models.RiskScore
	entries       []models.TransparencyEntry
	cases         []models.ReviewCase
	prefs         map[string]models.SafetyPreference
	recent        []int
	failRiskScore int
	riskAttempts  int
	failPrefs     bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{prefs: make(map[string]models.SafetyPreference)}
}

func (s *fakeStore) InsertRiskScore(_ context.Context, rs *models.RiskScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.riskAttempts++
	if s.failRiskScore > 0 {
		s.failRiskScore--
		return errors.New("connection reset")
	}
	s.scores = append(s.scores, *rs)
	return nil
}

func (s *fakeStore) RecentRiskScores(context.Context, string, uuid.UUID, time.Time) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.recent...), nil
}

func (s *fakeStore) InsertTransparencyEntry(_ context.Context, e *models.TransparencyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *fakeStore) ListTransparencyEntries(_ context.Context, appID string, userID uuid.UUID, limit int) ([]models.TransparencyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TransparencyEntry
	for _, e := range s.entries {
		if e.AppID == appID && e.UserID == userID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) AcknowledgeTransparencyEntry(_ context.Context, appID string, userID, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		e := &s.entries[i]
		if e.ID == id && e.AppID == appID && e.UserID == userID {
			e.Acknowledged = true
			e.AcknowledgedAt = &at
			return nil
		}
	}
	return transparency.ErrNotFound
}

func (s *fakeStore) CreateReviewCase(_ context.Context, rc *models.ReviewCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases = append(s.cases, *rc)
	return nil
}

func (s *fakeStore) GetReviewCase(_ context.Context, appID string, id uuid.UUID) (*models.ReviewCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rc := range s.cases {
		if rc.ID == id && rc.AppID == appID {
			c := rc
			return &c, nil
		}
	}
	return nil, ErrReviewNotFound
}

func (s *fakeStore) ListReviewCases(_ context.Context, appID, status string, limit, offset int) ([]models.ReviewCase, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.ReviewCase
	for _, rc := range s.cases {
		if rc.AppID == appID && (status == "" || rc.Status == status) {
			matched = append(matched, rc)
		}
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *fakeStore) UpdateReviewCase(_ context.Context, appID string, id uuid.UUID, u ReviewUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cases {
		rc := &s.cases[i]
		if rc.ID == id && rc.AppID == appID {
			rc.Status = u.Status
			rc.ReviewerNote = u.Note
			rc.ReviewedBy = u.ReviewedBy
			at := u.ReviewedAt
			rc.ReviewedAt = &at
			return nil
		}
	}
	return ErrReviewNotFound
}

func (s *fakeStore) GetPreferences(_ context.Context, appID string, userID uuid.UUID) (*models.SafetyPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPrefs {
		return nil, errors.New("db down")
	}
	p, ok := s.prefs[appID+"/"+userID.String()]
	if !ok {
		return nil, ErrPreferencesNotFound
	}
	return &p, nil
}

func (s *fakeStore) SavePreferences(_ context.Context, p *models.SafetyPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[p.AppID+"/"+p.UserID.String()] = *p
	return nil
}

func (s *fakeStore) riskScores() []models.RiskScore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RiskScore(nil), s.scores...)
}

func (s *fakeStore) transparencyTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.EventType
	}
	return out
}

func (s *fakeStore) reviewCases() []models.ReviewCase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ReviewCase(nil), s.cases...)
}

type fakeCache struct {
	mu     sync.Mutex
	scores []int
	err    error
	added  int
}

func (c *fakeCache) Add(context.Context, string, uuid.UUID, uuid.UUID, int, time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added++
	return c.err
}

func (c *fakeCache) Scores(context.Context, string, uuid.UUID, time.Time) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.scores...), c.err
}
