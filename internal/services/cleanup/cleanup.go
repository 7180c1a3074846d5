package cleanup

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
	"github.com/killallgit/echonote-api/internal/services/blob"
	"github.com/killallgit/echonote-api/internal/services/jobs"
	"github.com/killallgit/echonote-api/pkg/config"
	"github.com/killallgit/echonote-api/pkg/logging"
)

// Report summarizes one cleanup pass
type Report struct {
	SpoolFilesRemoved int
	ChunksPurged      int64
	StaleJobsFailed   int64
}

// Service removes stale spool files, purges chunk rows of finished jobs
// and fails jobs whose worker went away
type Service struct {
	jobs            jobs.Service
	tempDir         string
	maxAge          time.Duration
	cleanupInterval time.Duration
	chunkRetention  time.Duration
	errorRetention  time.Duration
	jobTimeout      time.Duration
	now             func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service
func NewService(jobService jobs.Service, tempDir string, storage config.StorageConfig, cleanup config.CleanupConfig, jobTimeout time.Duration) *Service {
	interval := cleanup.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{
		jobs:            jobService,
		tempDir:         tempDir,
		maxAge:          storage.MaxTempAge,
		cleanupInterval: interval,
		chunkRetention:  cleanup.ChunkRetention,
		errorRetention:  cleanup.ErrorRetention,
		jobTimeout:      jobTimeout,
		now:             time.Now,
	}
}

// Start runs one pass immediately and then one per interval until Stop
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.RunOnce(ctx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-ctx.Done():
				log.Println("[INFO] Cleanup service stopped")
				return
			}
		}
	}()

	log.Printf("[INFO] Cleanup service started (interval: %v, max age: %v)", s.cleanupInterval, s.maxAge)
}

// Stop stops the cleanup service
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// RunOnce performs a single cleanup pass
func (s *Service) RunOnce(ctx context.Context) Report {
	var report Report

	report.SpoolFilesRemoved = s.removeSpoolFiles()

	if s.chunkRetention > 0 {
		n, err := s.jobs.PurgeChunks(ctx, models.JobStatusDone, s.chunkRetention)
		if err != nil {
			log.Printf("[ERROR] Purging chunks of done jobs: %v", err)
		}
		report.ChunksPurged += n
	}
	if s.errorRetention > 0 {
		n, err := s.jobs.PurgeChunks(ctx, models.JobStatusError, s.errorRetention)
		if err != nil {
			log.Printf("[ERROR] Purging chunks of failed jobs: %v", err)
		}
		report.ChunksPurged += n
	}

	if s.jobTimeout > 0 {
		n, err := s.jobs.FailStaleJobs(ctx, s.now().Add(-s.jobTimeout))
		if err != nil {
			log.Printf("[ERROR] Failing stale jobs: %v", err)
		}
		if n > 0 {
			log.Printf("[WARN] Failed %d jobs processing longer than %s", n, s.jobTimeout)
		}
		report.StaleJobsFailed = n
	}

	logging.Debugf("Cleanup pass: %+v", report)
	return report
}

// removeSpoolFiles deletes fetcher spool files older than maxAge
func (s *Service) removeSpoolFiles() int {
	if s.tempDir == "" || s.maxAge <= 0 {
		return 0
	}
	if _, err := os.Stat(s.tempDir); os.IsNotExist(err) {
		return 0
	}

	removed := 0
	err := filepath.Walk(s.tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files with errors
		}
		if info.IsDir() {
			return nil
		}

		if strings.HasPrefix(info.Name(), blob.SpoolPattern) && s.now().Sub(info.ModTime()) > s.maxAge {
			logging.Debugf("Removing old spool file: %s", path)
			if err := os.Remove(path); err != nil {
				log.Printf("[WARN] Failed to remove spool file %s: %v", path, err)
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] Cleanup walk error: %v", err)
	}

	return removed
}
