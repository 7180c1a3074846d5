package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/killallgit/echonote-api/internal/database"
	"github.com/killallgit/echonote-api/internal/services/blob"
	"github.com/killallgit/echonote-api/internal/services/chunking"
	"github.com/killallgit/echonote-api/internal/services/jobs"
	"github.com/killallgit/echonote-api/internal/services/notify"
	"github.com/killallgit/echonote-api/internal/services/orchestrator"
	"github.com/killallgit/echonote-api/internal/services/recognition"
	"github.com/killallgit/echonote-api/internal/services/summary"
	"github.com/killallgit/echonote-api/internal/services/usage"
	"github.com/killallgit/echonote-api/pkg/config"
	"github.com/killallgit/echonote-api/pkg/download"
	"github.com/killallgit/echonote-api/pkg/ffmpeg"
)

const eventHistory = 1000

// pipeline holds the services shared by serve and transcribe
type pipeline struct {
	db           *database.DB
	jobs         jobs.Service
	usage        *usage.Repository
	store        blob.Store
	ffmpeg       *ffmpeg.FFmpeg
	events       *notify.EventBus
	orchestrator *orchestrator.Orchestrator
}

func newPipeline(ctx context.Context, cfg *config.Config, dbPath string) (*pipeline, error) {
	db, err := database.Initialize(dbPath, cfg.Database.LogQueries)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	p, err := assemble(ctx, cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func assemble(ctx context.Context, cfg *config.Config, db *database.DB) (*pipeline, error) {
	if err := os.MkdirAll(cfg.Storage.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	ff := ffmpeg.New(cfg.Processing.FFmpegPath, cfg.Processing.FFprobePath, cfg.Processing.FFmpegTimeout)
	if err := ff.ValidateBinaries(); err != nil {
		return nil, fmt.Errorf("ffmpeg unavailable: %w", err)
	}

	store, err := blob.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}

	if cfg.Recognition.Provider != "" && cfg.Recognition.Provider != "google" {
		return nil, fmt.Errorf("unsupported recognition provider: %q", cfg.Recognition.Provider)
	}
	recognizer, err := recognition.NewGoogleRecognizer(ctx, recognition.GoogleConfig{
		Endpoint:         cfg.Recognition.Endpoint,
		Credentials:      cfg.Recognition.Credentials,
		Model:            cfg.Recognition.Model,
		MinSpeakers:      cfg.Recognition.MinSpeakers,
		MaxSpeakers:      cfg.Recognition.MaxSpeakers,
		PollInterval:     cfg.Recognition.PollInterval,
		OperationTimeout: cfg.Recognition.OperationTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer: %w", err)
	}

	summarizer, err := summary.NewFromConfig(ctx, cfg.Summarization)
	if err != nil {
		return nil, err
	}

	planner := chunking.NewPlanner(ff,
		chunking.WithMaxChunk(cfg.Chunking.MaxChunkDuration),
		chunking.WithMinChunk(cfg.Chunking.MinChunkDuration),
		chunking.WithSilenceOptions(ffmpeg.SilenceOptions{
			NoiseDB:     cfg.Chunking.SilenceThresholdDB,
			MinDuration: cfg.Chunking.MinSilenceDuration,
		}),
	)

	remoteOpts := download.DefaultOptions()
	remoteOpts.MaxSize = cfg.Server.MaxUploadSize

	jobService := jobs.NewService(jobs.NewRepository(db.DB))
	events := notify.NewEventBus(eventHistory)

	orch, err := orchestrator.New(orchestrator.Dependencies{
		Jobs:      jobService,
		Fetcher:   blob.NewFetcher(store, ff, cfg.Storage.TempDir, blob.WithRemote(download.NewClient(remoteOpts))),
		Planner:   planner,
		Extractor: ff,
		Transcriber: recognition.NewInvoker(recognizer, recognition.InvokerConfig{
			MaxAttempts:       cfg.Recognition.MaxAttempts,
			InitialBackoff:    cfg.Recognition.InitialBackoff,
			MaxBackoff:        cfg.Recognition.MaxBackoff,
			RequestsPerSecond: cfg.Recognition.RequestsPerSecond,
		}),
		Summarizer: summarizer,
		Notifier:   notify.Multi{notify.LogNotifier{}, events},
	}, orchestrator.WithMaxParallel(cfg.Processing.MaxParallelChunks))
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] Pipeline ready: storage=%s recognizer=%s summarizer=%s max_parallel=%d",
		cfg.Storage.Backend, recognizer.Name(), cfg.Summarization.Provider, cfg.Processing.MaxParallelChunks)

	return &pipeline{
		db:           db,
		jobs:         jobService,
		usage:        usage.NewRepository(db.DB),
		store:        store,
		ffmpeg:       ff,
		events:       events,
		orchestrator: orch,
	}, nil
}

func (p *pipeline) Close() {
	if err := p.db.Close(); err != nil {
		log.Printf("[WARN] Failed to close database: %v", err)
	}
}
