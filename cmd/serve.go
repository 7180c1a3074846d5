package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/killallgit/echonote-api/api"
	"github.com/killallgit/echonote-api/api/types"
	"github.com/killallgit/echonote-api/internal/services/cleanup"
	"github.com/killallgit/echonote-api/internal/services/workers"
	"github.com/spf13/cobra"
)

var (
	serverHost string
	serverPort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the EchoNote API server with the configured settings.

The server accepts audio uploads, runs the transcription workers in the
same process and streams job progress over WebSocket.

Example:
  echonote-api serve
  echonote-api serve --port 9090
  echonote-api serve --host 0.0.0.0 --port 8080`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides config)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cfg, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer p.Close()

	pool := workers.NewWorkerPool(p.jobs, p.orchestrator, cfg.Processing.Workers,
		cfg.Processing.PollInterval, cfg.Processing.JobTimeout)

	// workers outlive the request context so shutdown can drain them
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	if err := pool.Start(workerCtx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	janitor := cleanup.NewService(p.jobs, cfg.Storage.TempDir, cfg.Storage, cfg.Cleanup, cfg.Processing.JobTimeout)
	janitor.Start(workerCtx)

	srv := api.NewServer(cfg, &types.Dependencies{
		DB:         p.db,
		JobService: p.jobs,
		Jobs:       p.orchestrator,
		Store:      p.store,
		Prober:     p.ffmpeg,
		Usage:      p.usage,
		Events:     p.events,
		Workers:    pool,
	}, buildInfo())
	if err := srv.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("[INFO] Starting EchoNote API server on %s", srv.Addr())
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Printf("[INFO] Shutting down server...")
	case runErr = <-serverErr:
		log.Printf("[ERROR] %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] Server forced to shutdown: %v", err)
		if runErr == nil {
			runErr = err
		}
	}

	// give running jobs the rest of the shutdown window, then cancel them
	drained := make(chan struct{})
	go func() {
		pool.Stop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Printf("[WARN] Cancelling jobs still running after shutdown timeout")
		cancelWorkers()
		<-drained
	}
	cancelWorkers()
	janitor.Stop()

	log.Printf("[INFO] Server gracefully stopped")
	return runErr
}
