package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
	"github.com/killallgit/echonote-api/internal/services/jobs"
	"github.com/killallgit/echonote-api/pkg/logging"
)

// JobProcessor runs a claimed transcript job to a terminal state
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *models.TranscriptJob) error
}

// Worker represents a background worker that processes jobs
type Worker struct {
	id           string
	jobService   jobs.Service
	processor    JobProcessor
	stopChan     chan struct{}
	wakeChan     chan struct{}
	wg           sync.WaitGroup
	pollInterval time.Duration
	jobTimeout   time.Duration
}

// NewWorker creates a new worker instance. A non-positive jobTimeout
// means jobs run until they finish.
func NewWorker(id string, jobService jobs.Service, processor JobProcessor, pollInterval, jobTimeout time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Worker{
		id:           id,
		jobService:   jobService,
		processor:    processor,
		stopChan:     make(chan struct{}),
		wakeChan:     make(chan struct{}, 1),
		pollInterval: pollInterval,
		jobTimeout:   jobTimeout,
	}
}

// Start starts the worker in a goroutine
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
}

// Wake asks the worker to poll now instead of at the next tick
func (w *Worker) Wake() {
	select {
	case w.wakeChan <- struct{}{}:
	default:
	}
}

// run is the main worker loop
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log.Printf("[INFO] Worker %s starting", w.id)
	defer log.Printf("[INFO] Worker %s stopped", w.id)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
		case <-w.wakeChan:
		}

		// drain the queue before waiting again
		for {
			processed, err := w.processNextJob(ctx)
			if err != nil {
				log.Printf("[ERROR] Worker %s: error processing job: %v", w.id, err)
			}
			if !processed || w.stopping(ctx) {
				break
			}
		}
	}
}

func (w *Worker) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-w.stopChan:
		return true
	default:
		return false
	}
}

// processNextJob claims and processes the oldest pending job. It reports
// whether a job was claimed.
func (w *Worker) processNextJob(ctx context.Context) (bool, error) {
	job, err := w.jobService.ClaimNextJob(ctx, w.id)
	if err != nil {
		if errors.Is(err, jobs.ErrNoJobsAvailable) {
			return false, nil
		}
		return false, err
	}

	log.Printf("[INFO] Worker %s claimed job %s", w.id, job.ID)

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	if err := w.processor.ProcessJob(jobCtx, job); err != nil {
		// the processor records its own failures; this covers the ones it could not
		if failErr := w.jobService.FailJob(context.WithoutCancel(ctx), job.ID, err); failErr != nil && !errors.Is(failErr, jobs.ErrInvalidTransition) {
			log.Printf("[ERROR] Worker %s: failed to mark job %s as failed: %v", w.id, job.ID, failErr)
		}
		return true, fmt.Errorf("job %s failed: %w", job.ID, err)
	}

	logging.Debugf("Worker %s completed job %s", w.id, job.ID)
	return true, nil
}

// WorkerPool manages multiple workers
type WorkerPool struct {
	workers    []*Worker
	jobService jobs.Service
	mu         sync.RWMutex
	started    bool
}

// NewWorkerPool creates a new worker pool sharing one processor
func NewWorkerPool(jobService jobs.Service, processor JobProcessor, workerCount int, pollInterval, jobTimeout time.Duration) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	pool := &WorkerPool{
		jobService: jobService,
		workers:    make([]*Worker, workerCount),
	}

	for i := 0; i < workerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		pool.workers[i] = NewWorker(workerID, jobService, processor, pollInterval, jobTimeout)
	}

	return pool
}

// Size returns the number of workers
func (p *WorkerPool) Size() int {
	return len(p.workers)
}

// Start starts all workers
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("worker pool already started")
	}

	log.Printf("[INFO] Starting worker pool with %d workers", len(p.workers))

	for _, worker := range p.workers {
		worker.Start(ctx)
	}

	p.started = true
	return nil
}

// Wake nudges idle workers to poll for new jobs
func (p *WorkerPool) Wake() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, worker := range p.workers {
		worker.Wake()
	}
}

// Stop stops all workers gracefully. Jobs in progress run to completion.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	log.Printf("[INFO] Stopping worker pool")

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.started = false
}
