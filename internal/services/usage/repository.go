// Package usage tracks transcribed seconds per user and billing period.
package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BillableSeconds rounds a recording length up to whole seconds
func BillableSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// Counter accumulates billable seconds per user
type Counter interface {
	IncrementUsage(ctx context.Context, userID string, seconds int64) error
}

// Repository persists usage records
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a new usage repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// IncrementUsage adds seconds to the user's current period
func (r *Repository) IncrementUsage(ctx context.Context, userID string, seconds int64) error {
	return Increment(r.db.WithContext(ctx), userID, seconds, r.now())
}

// Increment upserts the usage row for the period containing at using tx,
// so callers can make it part of a larger transaction.
func Increment(tx *gorm.DB, userID string, seconds int64, at time.Time) error {
	if userID == "" {
		return fmt.Errorf("incrementing usage: empty user id")
	}
	if seconds < 0 {
		seconds = 0
	}

	at = at.UTC()
	record := models.UsageRecord{
		UserID:             userID,
		PeriodStart:        models.PeriodStart(at),
		SecondsTranscribed: seconds,
		JobsCompleted:      1,
		UpdatedAt:          at,
	}

	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "period_start"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"seconds_transcribed": gorm.Expr("usage_records.seconds_transcribed + excluded.seconds_transcribed"),
			"jobs_completed":      gorm.Expr("usage_records.jobs_completed + excluded.jobs_completed"),
			"updated_at":          at,
		}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("incrementing usage: %w", err)
	}

	return nil
}

// GetUsage returns the record for the period containing at. A period with
// no activity yields a zero record.
func (r *Repository) GetUsage(ctx context.Context, userID string, at time.Time) (*models.UsageRecord, error) {
	period := models.PeriodStart(at)

	var record models.UsageRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND period_start = ?", userID, period).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.UsageRecord{UserID: userID, PeriodStart: period}, nil
		}
		return nil, fmt.Errorf("getting usage: %w", err)
	}

	return &record, nil
}

// ListUsage returns the user's records, newest period first
func (r *Repository) ListUsage(ctx context.Context, userID string, limit int) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("period_start DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing usage: %w", err)
	}

	return records, nil
}

var _ Counter = (*Repository)(nil)
