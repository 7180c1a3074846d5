package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
	"github.com/killallgit/echonote-api/internal/services/usage"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"gorm.io/gorm"
)

// Repository errors
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrNoJobsAvailable   = errors.New("no jobs available")
	ErrAlreadyDispatched = errors.New("job already dispatched")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Repository defines the interface for job persistence
type Repository interface {
	// Create operations
	CreateJob(ctx context.Context, job *models.TranscriptJob) error

	// Read operations
	GetJob(ctx context.Context, id string) (*models.TranscriptJob, error)
	ListJobsByUser(ctx context.Context, userID string, limit, offset int) ([]models.TranscriptJob, int64, error)
	GetChunks(ctx context.Context, jobID string) ([]models.AudioChunk, error)

	// Update operations
	ClaimJob(ctx context.Context, id, workerID string) (*models.TranscriptJob, error)
	ClaimNextJob(ctx context.Context, workerID string) (*models.TranscriptJob, error)
	SaveChunks(ctx context.Context, jobID string, total time.Duration, chunks []models.AudioChunk) ([]models.AudioChunk, error)
	UpdateChunk(ctx context.Context, chunk *models.AudioChunk) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	CompleteJob(ctx context.Context, id string, result JobResult) error
	FailJob(ctx context.Context, id string, kind, errorMsg string) error
	RequestCancel(ctx context.Context, id string) (*models.TranscriptJob, error)
	FailStaleJobs(ctx context.Context, startedBefore time.Time) (int64, error)

	// Delete operations
	PurgeChunks(ctx context.Context, status models.JobStatus, completedBefore time.Time) (int64, error)
}

// repository implements Repository interface
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new job repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

// CreateJob creates a new job
func (r *repository) CreateJob(ctx context.Context, job *models.TranscriptJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetJob retrieves a job by ID
func (r *repository) GetJob(ctx context.Context, id string) (*models.TranscriptJob, error) {
	var job models.TranscriptJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, apperrors.DatabaseError("get job", err)
	}
	return &job, nil
}

// ListJobsByUser returns a page of the user's jobs, newest first, and the total count
func (r *repository) ListJobsByUser(ctx context.Context, userID string, limit, offset int) ([]models.TranscriptJob, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.TranscriptJob{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, apperrors.DatabaseError("count jobs", err)
	}

	var jobs []models.TranscriptJob
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&jobs).Error; err != nil {
		return nil, 0, apperrors.DatabaseError("list jobs", err)
	}

	return jobs, total, nil
}

// GetChunks returns the planned chunks of a job in sequence order
func (r *repository) GetChunks(ctx context.Context, jobID string) ([]models.AudioChunk, error) {
	var chunks []models.AudioChunk
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("seq ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, apperrors.DatabaseError("get chunks", err)
	}
	return chunks, nil
}

// ClaimJob atomically moves a pending job to processing. Exactly one
// concurrent caller wins; the others get ErrAlreadyDispatched.
func (r *repository) ClaimJob(ctx context.Context, id, workerID string) (*models.TranscriptJob, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.TranscriptJob{}).
		Where("id = ? AND status = ? AND cancel_requested = ?", id, models.JobStatusPending, false).
		Updates(map[string]interface{}{
			"status":     models.JobStatusProcessing,
			"worker_id":  workerID,
			"started_at": &now,
		})

	if result.Error != nil {
		return nil, apperrors.DatabaseError("claim job", result.Error)
	}

	job, err := r.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if result.RowsAffected == 0 {
		return job, ErrAlreadyDispatched
	}

	return job, nil
}

// ClaimNextJob claims the oldest pending job for a worker
func (r *repository) ClaimNextJob(ctx context.Context, workerID string) (*models.TranscriptJob, error) {
	// another worker may win the race for the same row; try the next one
	for attempt := 0; attempt < 3; attempt++ {
		var candidate models.TranscriptJob
		err := r.db.WithContext(ctx).
			Select("id").
			Where("status = ? AND cancel_requested = ?", models.JobStatusPending, false).
			Order("created_at ASC").
			First(&candidate).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNoJobsAvailable
			}
			return nil, apperrors.DatabaseError("find job to claim", err)
		}

		job, err := r.ClaimJob(ctx, candidate.ID, workerID)
		if errors.Is(err, ErrAlreadyDispatched) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return job, nil
	}

	return nil, ErrNoJobsAvailable
}

// SaveChunks replaces the job's chunk plan and records its total duration
func (r *repository) SaveChunks(ctx context.Context, jobID string, total time.Duration, chunks []models.AudioChunk) ([]models.AudioChunk, error) {
	saved := make([]models.AudioChunk, len(chunks))
	for i, c := range chunks {
		c.ID = 0
		c.JobID = jobID
		if c.State == "" {
			c.State = models.ChunkStatePending
		}
		saved[i] = c
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", jobID).Delete(&models.AudioChunk{}).Error; err != nil {
			return apperrors.DatabaseError("clear chunks", err)
		}

		if len(saved) > 0 {
			if err := tx.Create(&saved).Error; err != nil {
				return apperrors.DatabaseError("create chunks", err)
			}
		}

		res := tx.Model(&models.TranscriptJob{}).
			Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"total_duration": total,
				"chunk_count":    len(saved),
			})
		if res.Error != nil {
			return apperrors.DatabaseError("record plan", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrJobNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

// UpdateChunk persists a chunk's outcome
func (r *repository) UpdateChunk(ctx context.Context, chunk *models.AudioChunk) error {
	result := r.db.WithContext(ctx).
		Model(&models.AudioChunk{}).
		Where("job_id = ? AND seq = ?", chunk.JobID, chunk.Seq).
		Updates(map[string]interface{}{
			"state":         chunk.State,
			"retry_count":   chunk.RetryCount,
			"segment_count": chunk.SegmentCount,
			"error":         chunk.Error,
		})

	if result.Error != nil {
		return apperrors.DatabaseError("update chunk", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// UpdateJobProgress updates the progress of a processing job
func (r *repository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	// Ensure progress is within bounds
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}

	result := r.db.WithContext(ctx).
		Model(&models.TranscriptJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusProcessing).
		Update("progress", progress)

	if result.Error != nil {
		return apperrors.DatabaseError("update job progress", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// CompleteJob moves a processing job to done with its result. The usage
// increment commits with the status change, so it happens exactly once.
// A job flagged for cancellation is never completed.
func (r *repository) CompleteJob(ctx context.Context, id string, result JobResult) error {
	now := time.Now().UTC()
	actionItems := result.ActionItems
	if actionItems == nil {
		actionItems = models.ActionItems{}
	}

	updates := map[string]interface{}{
		"status":          models.JobStatusDone,
		"progress":        100,
		"completed_at":    &now,
		"speaker_count":   result.SpeakerCount,
		"transcript_text": result.TranscriptText,
		"segments":        result.Segments,
		"summary_text":    result.SummaryText,
		"action_items":    actionItems,
		"warning":         result.Warning,
		"usage_recorded":  true,
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.TranscriptJob{}).
			Where("id = ? AND status = ? AND usage_recorded = ? AND cancel_requested = ?",
				id, models.JobStatusProcessing, false, false).
			Updates(updates)

		if res.Error != nil {
			return apperrors.DatabaseError("complete job", res.Error)
		}

		var job models.TranscriptJob
		if err := tx.Select("id", "user_id").Where("id = ?", id).First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return apperrors.DatabaseError("get job", err)
		}

		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}

		return usage.Increment(tx, job.UserID, result.BillableSeconds, now)
	})
}

// FailJob moves a pending or processing job to error
func (r *repository) FailJob(ctx context.Context, id string, kind, errorMsg string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       models.JobStatusError,
		"error_kind":   kind,
		"error":        errorMsg,
		"completed_at": &now,
	}

	res := r.db.WithContext(ctx).
		Model(&models.TranscriptJob{}).
		Where("id = ? AND status IN ?", id, []models.JobStatus{models.JobStatusPending, models.JobStatusProcessing}).
		Updates(updates)

	if res.Error != nil {
		return apperrors.DatabaseError("fail job", res.Error)
	}

	if res.RowsAffected == 0 {
		return r.transitionError(ctx, id)
	}

	return nil
}

// RequestCancel flags a non-terminal job for cancellation and returns it
func (r *repository) RequestCancel(ctx context.Context, id string) (*models.TranscriptJob, error) {
	res := r.db.WithContext(ctx).
		Model(&models.TranscriptJob{}).
		Where("id = ? AND status IN ?", id, []models.JobStatus{models.JobStatusPending, models.JobStatusProcessing}).
		Update("cancel_requested", true)

	if res.Error != nil {
		return nil, apperrors.DatabaseError("request cancel", res.Error)
	}

	job, err := r.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		return job, ErrInvalidTransition
	}

	return job, nil
}

// FailStaleJobs fails processing jobs whose worker is gone
func (r *repository) FailStaleJobs(ctx context.Context, startedBefore time.Time) (int64, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.TranscriptJob{}).
		Where("status = ? AND started_at < ?", models.JobStatusProcessing, startedBefore.UTC()).
		Updates(map[string]interface{}{
			"status":       models.JobStatusError,
			"error_kind":   "internal",
			"error":        "processing interrupted",
			"completed_at": &now,
		})

	if res.Error != nil {
		return 0, apperrors.DatabaseError("fail stale jobs", res.Error)
	}

	return res.RowsAffected, nil
}

// PurgeChunks deletes chunk rows of jobs in status finished before the cutoff
func (r *repository) PurgeChunks(ctx context.Context, status models.JobStatus, completedBefore time.Time) (int64, error) {
	finished := r.db.WithContext(ctx).
		Model(&models.TranscriptJob{}).
		Select("id").
		Where("status = ? AND completed_at < ?", status, completedBefore.UTC())

	result := r.db.WithContext(ctx).
		Where("job_id IN (?)", finished).
		Delete(&models.AudioChunk{})

	if result.Error != nil {
		return 0, apperrors.DatabaseError("purge chunks", result.Error)
	}

	return result.RowsAffected, nil
}

func (r *repository) transitionError(ctx context.Context, id string) error {
	if _, err := r.GetJob(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}
