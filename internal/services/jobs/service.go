package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/echonote-api/internal/models"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"github.com/killallgit/echonote-api/pkg/logging"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{
		repo: repo,
	}
}

func (s *service) SubmitJob(ctx context.Context, userID, audioLocator string, language models.Language, opts ...JobOption) (*models.TranscriptJob, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.MissingFieldError("user_id")
	}
	if strings.TrimSpace(audioLocator) == "" {
		return nil, apperrors.MissingFieldError("audio_locator")
	}
	if !language.IsSupported() {
		return nil, apperrors.ValidationError("language", fmt.Sprintf("unsupported language %q (expected it or en)", language))
	}

	cfg := &jobConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	job := &models.TranscriptJob{
		ID:               cfg.ID,
		UserID:           userID,
		Language:         language,
		AudioLocator:     audioLocator,
		OriginalFilename: cfg.OriginalFilename,
		Status:           models.JobStatusPending,
		ActionItems:      models.ActionItems{},
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	log.Printf("[INFO] Submitted job %s for user %s (%s)", job.ID, userID, language)

	return job, nil
}

func (s *service) GetJob(ctx context.Context, jobID string) (*models.TranscriptJob, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return job, nil
}

// GetUserJob hides jobs owned by other users behind ErrJobNotFound
func (s *service) GetUserJob(ctx context.Context, userID, jobID string) (*models.TranscriptJob, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (s *service) ListJobs(ctx context.Context, userID string, limit, offset int) ([]models.TranscriptJob, int64, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	} else if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := s.repo.ListJobsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, total, nil
}

func (s *service) GetChunks(ctx context.Context, jobID string) ([]models.AudioChunk, error) {
	return s.repo.GetChunks(ctx, jobID)
}

func (s *service) ClaimJob(ctx context.Context, jobID, workerID string) (*models.TranscriptJob, error) {
	current, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !current.CanProcess() {
		return current, ErrAlreadyDispatched
	}

	job, err := s.repo.ClaimJob(ctx, jobID, workerID)
	if err != nil {
		if errors.Is(err, ErrAlreadyDispatched) || errors.Is(err, ErrJobNotFound) {
			return job, err
		}
		return nil, fmt.Errorf("claiming job: %w", err)
	}

	logging.Debugf("Worker %s claimed job %s", workerID, job.ID)

	return job, nil
}

func (s *service) ClaimNextJob(ctx context.Context, workerID string) (*models.TranscriptJob, error) {
	job, err := s.repo.ClaimNextJob(ctx, workerID)
	if err != nil {
		if errors.Is(err, ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("claiming job: %w", err)
	}

	logging.Debugf("Worker %s claimed job %s", workerID, job.ID)

	return job, nil
}

func (s *service) SavePlan(ctx context.Context, jobID string, total time.Duration, chunks []models.AudioChunk) ([]models.AudioChunk, error) {
	saved, err := s.repo.SaveChunks(ctx, jobID, total, chunks)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("saving plan: %w", err)
	}

	logging.Debugf("Job %s planned into %d chunks (%s)", jobID, len(saved), total)

	return saved, nil
}

func (s *service) UpdateChunk(ctx context.Context, chunk *models.AudioChunk) error {
	if err := s.repo.UpdateChunk(ctx, chunk); err != nil {
		return fmt.Errorf("updating chunk %d of job %s: %w", chunk.Seq, chunk.JobID, err)
	}
	return nil
}

func (s *service) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	if err := s.repo.UpdateJobProgress(ctx, jobID, progress); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return err
		}
		return fmt.Errorf("updating job progress: %w", err)
	}

	if progress%10 == 0 || progress == 100 {
		logging.Debugf("Job %s progress: %d%%", jobID, progress)
	}

	return nil
}

func (s *service) CompleteJob(ctx context.Context, jobID string, result JobResult) error {
	if err := s.guard(ctx, jobID, models.JobStatusDone); err != nil {
		return err
	}

	if err := s.repo.CompleteJob(ctx, jobID, result); err != nil {
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrInvalidTransition) {
			return err
		}
		return fmt.Errorf("completing job: %w", err)
	}

	log.Printf("[INFO] Job %s completed (%d speakers)", jobID, result.SpeakerCount)

	return nil
}

// FailJob records err on the job, classified by its kind
func (s *service) FailJob(ctx context.Context, jobID string, err error) error {
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindNone {
		kind = apperrors.KindInternal
	}
	errorMsg := "unknown error"
	if err != nil {
		errorMsg = err.Error()
	}

	if err := s.guard(ctx, jobID, models.JobStatusError); err != nil {
		return err
	}

	if err := s.repo.FailJob(ctx, jobID, string(kind), errorMsg); err != nil {
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrInvalidTransition) {
			return err
		}
		return fmt.Errorf("failing job: %w", err)
	}

	log.Printf("[ERROR] Job %s failed with %s error (%s): %s", jobID, kind, apperrors.GetCode(err), errorMsg)

	return nil
}

func (s *service) RequestCancel(ctx context.Context, jobID string) (*models.TranscriptJob, error) {
	current, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if current.IsTerminal() {
		return current, ErrInvalidTransition
	}

	job, err := s.repo.RequestCancel(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrInvalidTransition) {
			return job, err
		}
		return nil, fmt.Errorf("requesting cancel: %w", err)
	}

	log.Printf("[INFO] Cancellation requested for job %s (%s)", jobID, job.Status)

	return job, nil
}

func (s *service) PurgeChunks(ctx context.Context, status models.JobStatus, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}

	deleted, err := s.repo.PurgeChunks(ctx, status, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleaning up chunks: %w", err)
	}

	if deleted > 0 {
		logging.Debugf("Deleted %d chunk rows of %s jobs (older than %s)", deleted, status, olderThan)
	}

	return deleted, nil
}

func (s *service) FailStaleJobs(ctx context.Context, startedBefore time.Time) (int64, error) {
	n, err := s.repo.FailStaleJobs(ctx, startedBefore)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[WARN] Failed %d interrupted jobs started before %s", n, startedBefore.Format(time.RFC3339))
	}
	return n, nil
}

// guard rejects transitions the state machine forbids before the repository
// runs its conditional update, which still settles races between callers.
func (s *service) guard(ctx context.Context, jobID string, next models.JobStatus) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	return nil
}
