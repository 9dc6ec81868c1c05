package logging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/models"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	systemLogRetentionDays   = 30
	reviewCaseRetentionDays  = 365
	defaultRiskRetentionDays = 90
)

type PurgeResult struct {
	TransparencyEntries int64
	RiskScores          int64
	ReviewCases         int64
	SystemLogs          int64
}

// Purger deletes data past its retention window.
type Purger interface {
	Purge(ctx context.Context, now time.Time) (PurgeResult, error)
}

type gormPurger struct {
	db *gorm.DB
}

func NewPurger(db *gorm.DB) Purger { return gormPurger{db: db} }

// Purge removes transparency entries past retain_until, risk scores older
// than the owner's retention window, closed review cases after a year and
// system logs after 30 days.
func (p gormPurger) Purge(ctx context.Context, now time.Time) (PurgeResult, error) {
	var res PurgeResult
	db := p.db.WithContext(ctx)

	r := db.Where("retain_until < ?", now).Delete(&models.TransparencyEntry{})
	if r.Error != nil {
		return res, fmt.Errorf("purge transparency entries: %w", r.Error)
	}
	res.TransparencyEntries = r.RowsAffected

	r = db.Exec(`DELETE FROM risk_scores r
		WHERE r.created_at < CAST(? AS timestamptz) - make_interval(days => COALESCE(
			(SELECT p.retention_days FROM safety_preferences p
			 WHERE p.app_id = r.app_id AND p.user_id = r.user_id), ?))`,
		now, defaultRiskRetentionDays)
	if r.Error != nil {
		return res, fmt.Errorf("purge risk scores: %w", r.Error)
	}
	res.RiskScores = r.RowsAffected

	r = db.Where("status <> ? AND updated_at < ?", models.ReviewPending, now.AddDate(0, 0, -reviewCaseRetentionDays)).
		Delete(&models.ReviewCase{})
	if r.Error != nil {
		return res, fmt.Errorf("purge review cases: %w", r.Error)
	}
	res.ReviewCases = r.RowsAffected

	r = db.Where("timestamp < ?", now.AddDate(0, 0, -systemLogRetentionDays)).Delete(&models.SystemLog{})
	if r.Error != nil {
		return res, fmt.Errorf("purge system logs: %w", r.Error)
	}
	res.SystemLogs = r.RowsAffected
	return res, nil
}

// StartRetention schedules the purge on spec (standard five-field cron).
// Stop the returned scheduler on shutdown.
func StartRetention(purger Purger, spec string, timeout time.Duration) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { runPurge(purger, timeout) }); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}
	c.Start()
	slog.Info("retention job scheduled", "schedule", spec)
	return c, nil
}

func runPurge(purger Purger, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := purger.Purge(ctx, time.Now())
	if err != nil {
		slog.Error("retention purge failed", "action", "retention", "error", err)
		return
	}
	slog.Info("retention purge completed",
		"transparency_entries", res.TransparencyEntries,
		"risk_scores", res.RiskScores,
		"review_cases", res.ReviewCases,
		"system_logs", res.SystemLogs,
	)
}
