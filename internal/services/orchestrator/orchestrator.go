// Package orchestrator drives a transcript job from pending to done or
// error: fetch, plan, parallel recognition behind a barrier, stitching,
// summarization and finalization.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
	"github.com/killallgit/echonote-api/internal/services/blob"
	"github.com/killallgit/echonote-api/internal/services/chunking"
	"github.com/killallgit/echonote-api/internal/services/jobs"
	"github.com/killallgit/echonote-api/internal/services/notify"
	"github.com/killallgit/echonote-api/internal/services/recognition"
	"github.com/killallgit/echonote-api/internal/services/stitching"
	"github.com/killallgit/echonote-api/internal/services/summary"
	"github.com/killallgit/echonote-api/internal/services/usage"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"github.com/killallgit/echonote-api/pkg/ffmpeg"
	"github.com/killallgit/echonote-api/pkg/logging"
)

// Fetcher spools a job's recording to local disk
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*blob.LocalAudio, error)
}

// Planner cuts a recording into chunks
type Planner interface {
	Plan(ctx context.Context, desc chunking.AudioDescriptor) ([]models.AudioChunk, error)
}

// Extractor encodes one chunk of a local recording for the recognizer
type Extractor interface {
	ExtractFLAC(ctx context.Context, inputFile string, start, duration time.Duration, opts ffmpeg.ExtractOptions) ([]byte, error)
}

// Transcriber runs recognition for one chunk with retries
type Transcriber interface {
	Transcribe(ctx context.Context, req recognition.Request) recognition.Result
}

// Summarizer summarizes a stitched transcript; failures come back as warnings
type Summarizer interface {
	Run(ctx context.Context, transcript string, language models.Language) summary.Outcome
}

// Dependencies are the collaborators the orchestrator needs
type Dependencies struct {
	Jobs        jobs.Service
	Fetcher     Fetcher
	Planner     Planner
	Extractor   Extractor
	Transcriber Transcriber
	Summarizer  Summarizer
	Notifier    notify.Notifier
}

// Progress checkpoints
const (
	progressPlanned    = 10
	progressChunksSpan = 80
	progressStitched   = 92
)

// Orchestrator owns the job state machine
type Orchestrator struct {
	deps        Dependencies
	maxParallel int64
	workerID    string
	extractOpts ffmpeg.ExtractOptions

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMaxParallel bounds concurrent recognition calls per job
func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = int64(n)
		}
	}
}

// WithWorkerID names the claimant recorded on dispatched jobs
func WithWorkerID(id string) Option {
	return func(o *Orchestrator) {
		o.workerID = id
	}
}

// WithExtractOptions overrides the chunk encoding
func WithExtractOptions(opts ffmpeg.ExtractOptions) Option {
	return func(o *Orchestrator) {
		o.extractOpts = opts
	}
}

// New creates an orchestrator
func New(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Jobs == nil:
		return nil, fmt.Errorf("orchestrator: job service is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("orchestrator: fetcher is required")
	case deps.Planner == nil:
		return nil, fmt.Errorf("orchestrator: planner is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("orchestrator: extractor is required")
	case deps.Transcriber == nil:
		return nil, fmt.Errorf("orchestrator: transcriber is required")
	case deps.Summarizer == nil:
		return nil, fmt.Errorf("orchestrator: summarizer is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{}
	}

	o := &Orchestrator{
		deps:        deps,
		maxParallel: 4,
		workerID:    "orchestrator",
		extractOpts: ffmpeg.DefaultExtractOptions(),
		running:     make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Submit creates a pending job and announces it
func (o *Orchestrator) Submit(ctx context.Context, userID, locator string, language models.Language, opts ...jobs.JobOption) (*models.TranscriptJob, error) {
	job, err := o.deps.Jobs.SubmitJob(ctx, userID, locator, language, opts...)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, job, models.JobStatusPending, 0, "", "")
	return job, nil
}

// Dispatch claims a pending job and runs it to a terminal state. A job that
// was already dispatched is left alone and nil is returned.
func (o *Orchestrator) Dispatch(ctx context.Context, jobID string) error {
	job, err := o.deps.Jobs.ClaimJob(ctx, jobID, o.workerID)
	if err != nil {
		if errors.Is(err, jobs.ErrAlreadyDispatched) {
			logging.Debugf("Job %s already dispatched, ignoring", jobID)
			return nil
		}
		return err
	}
	return o.ProcessJob(ctx, job)
}

// ProcessJob runs the pipeline for a job already claimed as processing.
// Every outcome is recorded on the job; the returned error is informational.
func (o *Orchestrator) ProcessJob(ctx context.Context, job *models.TranscriptJob) error {
	if job.Status != models.JobStatusProcessing {
		return fmt.Errorf("job %s is %s, not processing: %w", job.ID, job.Status, jobs.ErrInvalidTransition)
	}

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if !o.register(job.ID, cancel) {
		return apperrors.ConcurrencyError(job.ID)
	}
	defer o.unregister(job.ID)

	started := time.Now()
	o.publish(ctx, job, models.JobStatusProcessing, 0, "", "")

	result, err := o.run(jobCtx, job)
	if err != nil {
		err = o.interruption(jobCtx, err)
		o.fail(ctx, job, err)
		return err
	}

	// finalization is recorded even if the caller goes away now
	finalCtx := context.WithoutCancel(ctx)
	if err := o.deps.Jobs.CompleteJob(finalCtx, job.ID, result); err != nil {
		if errors.Is(err, jobs.ErrInvalidTransition) {
			// a cancel accepted after the last check wins over the result
			if current, gerr := o.deps.Jobs.GetJob(finalCtx, job.ID); gerr == nil && current.CancelRequested && !current.IsTerminal() {
				cause := apperrors.CancelledError(job.ID)
				o.fail(ctx, job, cause)
				return cause
			}
			log.Printf("[WARN] Job %s reached a terminal state elsewhere, result discarded", job.ID)
			return err
		}
		o.fail(ctx, job, err)
		return err
	}

	log.Printf("[INFO] Job %s done in %s: %d speakers, %ds billed",
		job.ID, time.Since(started).Round(time.Millisecond), result.SpeakerCount, result.BillableSeconds)
	o.publish(ctx, job, models.JobStatusDone, 100, result.Warning, "")

	return nil
}

// Cancel requests cancellation. A pending job fails immediately; a
// processing job stops dispatching chunks and fails once its worker notices.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (*models.TranscriptJob, error) {
	job, err := o.deps.Jobs.RequestCancel(ctx, jobID)
	if err != nil {
		return job, err
	}

	cause := apperrors.CancelledError(jobID)

	if job.Status == models.JobStatusPending {
		if err := o.deps.Jobs.FailJob(ctx, jobID, cause); err != nil && !errors.Is(err, jobs.ErrInvalidTransition) {
			return nil, err
		}
		o.publish(ctx, job, models.JobStatusError, job.Progress, cause.Message, string(apperrors.KindCancelled))
	}

	// a claim may have raced the pending check above
	o.cancelRunning(jobID, cause)

	return o.deps.Jobs.GetJob(ctx, jobID)
}

// Running returns the number of jobs this orchestrator is processing
func (o *Orchestrator) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

func (o *Orchestrator) run(ctx context.Context, job *models.TranscriptJob) (jobs.JobResult, error) {
	if o.cancelRequested(ctx, job.ID) {
		return jobs.JobResult{}, apperrors.CancelledError(job.ID)
	}

	audio, err := o.deps.Fetcher.Fetch(ctx, job.AudioLocator)
	if err != nil {
		return jobs.JobResult{}, err
	}
	defer audio.Cleanup()

	planned, err := o.deps.Planner.Plan(ctx, chunking.AudioDescriptor{Path: audio.Path, Duration: audio.Duration})
	if err != nil {
		return jobs.JobResult{}, err
	}

	planned, err = o.deps.Jobs.SavePlan(ctx, job.ID, audio.Duration, planned)
	if err != nil {
		return jobs.JobResult{}, err
	}
	log.Printf("[INFO] Job %s: %s of audio planned into %d chunks", job.ID, audio.Duration.Round(time.Second), len(planned))
	o.progress(ctx, job, progressPlanned)

	results, err := o.transcribeChunks(ctx, job, audio.Path, planned)
	if err != nil {
		return jobs.JobResult{}, err
	}

	if o.cancelRequested(ctx, job.ID) {
		return jobs.JobResult{}, apperrors.CancelledError(job.ID)
	}

	transcript, err := stitching.Stitch(planned, results)
	if err != nil {
		return jobs.JobResult{}, err
	}
	o.progress(ctx, job, progressStitched)

	text := transcript.Text()
	outcome := o.deps.Summarizer.Run(ctx, text, job.Language)

	if ctx.Err() != nil || o.cancelRequested(ctx, job.ID) {
		return jobs.JobResult{}, apperrors.CancelledError(job.ID)
	}

	return jobs.JobResult{
		SpeakerCount:    transcript.SpeakerCount,
		TranscriptText:  text,
		Segments:        transcript.Segments,
		SummaryText:     outcome.Text(job.Language),
		ActionItems:     outcome.ActionItems(),
		Warning:         outcome.Warning,
		BillableSeconds: usage.BillableSeconds(audio.Duration),
	}, nil
}

// interruption replaces err with the reason the job context was cancelled
func (o *Orchestrator) interruption(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	if cause == nil {
		return err
	}
	if apperrors.Is(cause, apperrors.ErrCodeCancelled) {
		return cause
	}
	if apperrors.Is(err, apperrors.ErrCodeCancelled) {
		return err
	}
	return apperrors.Wrap(cause, apperrors.ErrCodeInternal, "processing interrupted")
}

func (o *Orchestrator) fail(ctx context.Context, job *models.TranscriptJob, cause error) {
	if err := o.deps.Jobs.FailJob(context.WithoutCancel(ctx), job.ID, cause); err != nil {
		if !errors.Is(err, jobs.ErrInvalidTransition) {
			log.Printf("[ERROR] Failed to mark job %s as failed: %v", job.ID, err)
		}
		return
	}
	o.publish(ctx, job, models.JobStatusError, job.Progress, cause.Error(), string(apperrors.KindOf(cause)))
}

func (o *Orchestrator) progress(ctx context.Context, job *models.TranscriptJob, pct int) {
	if err := o.deps.Jobs.UpdateProgress(ctx, job.ID, pct); err != nil {
		logging.Debugf("Job %s: progress update skipped: %v", job.ID, err)
		return
	}
	job.Progress = pct
	o.publish(ctx, job, models.JobStatusProcessing, pct, "", "")
}

func (o *Orchestrator) publish(ctx context.Context, job *models.TranscriptJob, status models.JobStatus, pct int, message, kind string) {
	o.deps.Notifier.PublishStatus(context.WithoutCancel(ctx), notify.StatusEvent{
		JobID:     job.ID,
		UserID:    job.UserID,
		Status:    status,
		Progress:  pct,
		Message:   message,
		ErrorKind: kind,
	})
}

func (o *Orchestrator) cancelRequested(ctx context.Context, jobID string) bool {
	job, err := o.deps.Jobs.GetJob(context.WithoutCancel(ctx), jobID)
	if err != nil {
		logging.Debugf("Job %s: cancel check failed: %v", jobID, err)
		return false
	}
	return job.CancelRequested
}

func (o *Orchestrator) register(jobID string, cancel context.CancelCauseFunc) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.running[jobID]; ok {
		return false
	}
	o.running[jobID] = cancel
	return true
}

func (o *Orchestrator) unregister(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, jobID)
}

func (o *Orchestrator) cancelRunning(jobID string, cause error) bool {
	o.mu.Lock()
	cancel, ok := o.running[jobID]
	o.mu.Unlock()
	if ok {
		cancel(cause)
	}
	return ok
}
