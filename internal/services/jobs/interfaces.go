package jobs

import (
	"context"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
)

// Service defines the business logic interface for transcript job operations
type Service interface {
	// Submission and retrieval
	SubmitJob(ctx context.Context, userID, audioLocator string, language models.Language, opts ...JobOption) (*models.TranscriptJob, error)
	GetJob(ctx context.Context, jobID string) (*models.TranscriptJob, error)
	GetUserJob(ctx context.Context, userID, jobID string) (*models.TranscriptJob, error)
	ListJobs(ctx context.Context, userID string, limit, offset int) ([]models.TranscriptJob, int64, error)
	GetChunks(ctx context.Context, jobID string) ([]models.AudioChunk, error)

	// Dispatch (used by the orchestrator and worker pool)
	ClaimJob(ctx context.Context, jobID, workerID string) (*models.TranscriptJob, error)
	ClaimNextJob(ctx context.Context, workerID string) (*models.TranscriptJob, error)

	// Pipeline bookkeeping
	SavePlan(ctx context.Context, jobID string, total time.Duration, chunks []models.AudioChunk) ([]models.AudioChunk, error)
	UpdateChunk(ctx context.Context, chunk *models.AudioChunk) error
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	CompleteJob(ctx context.Context, jobID string, result JobResult) error
	FailJob(ctx context.Context, jobID string, err error) error
	RequestCancel(ctx context.Context, jobID string) (*models.TranscriptJob, error)

	// Maintenance
	PurgeChunks(ctx context.Context, status models.JobStatus, olderThan time.Duration) (int64, error)
	FailStaleJobs(ctx context.Context, startedBefore time.Time) (int64, error)
}

// JobResult carries the output of a finished pipeline run. BillableSeconds
// is added to the owner's usage in the transaction that marks the job done.
type JobResult struct {
	SpeakerCount    int
	TranscriptText  string
	Segments        models.GlobalSegments
	SummaryText     string
	ActionItems     models.ActionItems
	Warning         string
	BillableSeconds int64
}

// JobOption is a functional option for configuring submitted jobs
type JobOption func(*jobConfig)

// jobConfig holds optional job attributes
type jobConfig struct {
	ID               string
	OriginalFilename string
}

// WithJobID fixes the job identifier instead of generating one
func WithJobID(id string) JobOption {
	return func(cfg *jobConfig) {
		cfg.ID = id
	}
}

// WithOriginalFilename records the uploaded file name
func WithOriginalFilename(name string) JobOption {
	return func(cfg *jobConfig) {
		cfg.OriginalFilename = name
	}
}
