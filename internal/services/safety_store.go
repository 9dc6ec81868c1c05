package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/models"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/transparency"
)

var (
	ErrPreferencesNotFound = errors.New("safety preferences not found")
	ErrReviewNotFound      = errors.New("review case not found")
)

// ReviewUpdate is the admin-editable part of a review case.
type ReviewUpdate struct {
	Status     string
	Note       string
	ReviewedBy string
	ReviewedAt time.Time
}

// SafetyStore is the persistence boundary of the safety pipeline.
type SafetyStore interface {
	transparency.Store

	InsertRiskScore(ctx context.Context, s *models.RiskScore) error
	RecentRiskScores(ctx context.Context, appID string, userID uuid.UUID, since time.Time) ([]int, error)

	CreateReviewCase(ctx context.Context, rc *models.ReviewCase) error
	GetReviewCase(ctx context.Context, appID string, id uuid.UUID) (*models.ReviewCase, error)
	ListReviewCases(ctx context.Context, appID, status string, limit, offset int) ([]models.ReviewCase, int64, error)
	UpdateReviewCase(ctx context.Context, appID string, id uuid.UUID, u ReviewUpdate) error

	GetPreferences(ctx context.Context, appID string, userID uuid.UUID) (*models.SafetyPreference, error)
	SavePreferences(ctx context.Context, p *models.SafetyPreference) error
}

type GormSafetyStore struct {
	db *gorm.DB
}

func NewGormSafetyStore(db *gorm.DB) *GormSafetyStore {
	return &GormSafetyStore{db: db}
}

func (s *GormSafetyStore) InsertRiskScore(ctx context.Context, rs *models.RiskScore) error {
	if err := s.db.WithContext(ctx).Create(rs).Error; err != nil {
		return fmt.Errorf("failed to insert risk score: %w", err)
	}
	return nil
}

func (s *GormSafetyStore) RecentRiskScores(ctx context.Context, appID string, userID uuid.UUID, since time.Time) ([]int, error) {
	var scores []int
	err := s.db.WithContext(ctx).Model(&models.RiskScore{}).
		Scopes(tenant.ForUser(appID, userID)).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Limit(500).
		Pluck("overall_score", &scores).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent risk scores: %w", err)
	}
	return scores, nil
}

func (s *GormSafetyStore) InsertTransparencyEntry(ctx context.Context, e *models.TransparencyEntry) error {
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *GormSafetyStore) ListTransparencyEntries(ctx context.Context, appID string, userID uuid.UUID, limit int) ([]models.TransparencyEntry, error) {
	var entries []models.TransparencyEntry
	err := s.db.WithContext(ctx).
		Scopes(tenant.ForUser(appID, userID)).
		Where("visible_to_user = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// AcknowledgeTransparencyEntry touches only the acknowledgment columns.
func (s *GormSafetyStore) AcknowledgeTransparencyEntry(ctx context.Context, appID string, userID, id uuid.UUID, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.TransparencyEntry{}).
		Scopes(tenant.ForUser(appID, userID)).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"acknowledged":    true,
			"acknowledged_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return transparency.ErrNotFound
	}
	return nil
}

func (s *GormSafetyStore) CreateReviewCase(ctx context.Context, rc *models.ReviewCase) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "assessment_id"}}, DoNothing: true}).
		Create(rc).Error
}

func (s *GormSafetyStore) GetReviewCase(ctx context.Context, appID string, id uuid.UUID) (*models.ReviewCase, error) {
	var rc models.ReviewCase
	err := s.db.WithContext(ctx).Scopes(tenant.ForTenant(appID)).First(&rc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReviewNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (s *GormSafetyStore) ListReviewCases(ctx context.Context, appID, status string, limit, offset int) ([]models.ReviewCase, int64, error) {
	var cases []models.ReviewCase
	var total int64

	query := s.db.WithContext(ctx).Model(&models.ReviewCase{}).Scopes(tenant.ForTenant(appID))
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	// Critical cases first, then oldest first within a level.
	err := query.
		Order("CASE risk_level WHEN 'critical' THEN 0 WHEN 'high' THEN 1 ELSE 2 END").
		Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&cases).Error
	if err != nil {
		return nil, 0, err
	}
	return cases, total, nil
}

func (s *GormSafetyStore) UpdateReviewCase(ctx context.Context, appID string, id uuid.UUID, u ReviewUpdate) error {
	result := s.db.WithContext(ctx).Model(&models.ReviewCase{}).
		Scopes(tenant.ForTenant(appID)).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        u.Status,
			"reviewer_note": u.Note,
			"reviewed_by":   u.ReviewedBy,
			"reviewed_at":   u.ReviewedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReviewNotFound
	}
	return nil
}

func (s *GormSafetyStore) GetPreferences(ctx context.Context, appID string, userID uuid.UUID) (*models.SafetyPreference, error) {
	var p models.SafetyPreference
	err := s.db.WithContext(ctx).Scopes(tenant.ForUser(appID, userID)).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPreferencesNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormSafetyStore) SavePreferences(ctx context.Context, p *models.SafetyPreference) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "app_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"consent_level", "toxicity", "emotional_distress",
			"relationship_crisis", "behavioral", "retention_days", "updated_at",
		}),
	}).Create(p).Error
}

// ContentHasher fingerprints message text so repeated content can be
// correlated without storing it.
type ContentHasher struct {
	key []byte
}

// NewContentHasher keys blake2b-256 with key. Keys longer than 64 bytes
// are hashed down first.
func NewContentHasher(key []byte) ContentHasher {
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return ContentHasher{key: key}
}

func (h ContentHasher) Hash(text string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		sum := blake2b.Sum256([]byte(text))
		return hex.EncodeToString(sum[:])
	}
	mac.Write([]byte(text))
	return hex.EncodeToString(mac.Sum(nil))
}
