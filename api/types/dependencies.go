package types

import (
	"context"
	"time"

	"github.com/killallgit/echonote-api/internal/database"
	"github.com/killallgit/echonote-api/internal/models"
	"github.com/killallgit/echonote-api/internal/services/blob"
	"github.com/killallgit/echonote-api/internal/services/jobs"
	"github.com/killallgit/echonote-api/internal/services/notify"
	"github.com/killallgit/echonote-api/pkg/config"
)

// JobController submits and cancels jobs, announcing each change
type JobController interface {
	Submit(ctx context.Context, userID, locator string, language models.Language, opts ...jobs.JobOption) (*models.TranscriptJob, error)
	Cancel(ctx context.Context, jobID string) (*models.TranscriptJob, error)
}

// UsageReader reads per-user billing counters
type UsageReader interface {
	GetUsage(ctx context.Context, userID string, at time.Time) (*models.UsageRecord, error)
	ListUsage(ctx context.Context, userID string, limit int) ([]models.UsageRecord, error)
}

// EventSource replays and streams job status events
type EventSource interface {
	Since(jobID string, seq int64) []notify.StatusEvent
	Subscribe(jobID string, buffer int) (<-chan notify.StatusEvent, func())
}

// Waker nudges idle workers after a submission
type Waker interface {
	Wake()
}

// Dependencies holds all the dependencies needed by handlers
type Dependencies struct {
	DB         *database.DB
	Config     *config.Config
	JobService jobs.Service
	Jobs       JobController
	Store      blob.Store
	Prober     blob.Prober
	Usage      UsageReader
	Events     EventSource
	Workers    Waker
}
