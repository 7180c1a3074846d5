package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/killallgit/echonote-api/internal/models"
	"github.com/killallgit/echonote-api/internal/services/blob"
	"github.com/killallgit/echonote-api/internal/services/jobs"
	"github.com/killallgit/echonote-api/pkg/download"
	"github.com/spf13/cobra"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file|url>",
	Short: "Transcribe and summarize one recording",
	Long: `Run the full pipeline on a local recording without starting the server.

A local file is stored like an upload, an http(s) URL is downloaded by
the pipeline itself. The job runs in the foreground and the transcript
with its summary is printed when it finishes. Usage is
recorded against --user exactly as for uploads.

Example:
  echonote-api transcribe standup.m4a
  echonote-api transcribe call.mp3 --language en --json
  echonote-api transcribe https://example.com/weekly.mp3 --language en`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().StringP("language", "l", string(models.LanguageItalian), "spoken language (it, en)")
	transcribeCmd.Flags().StringP("user", "u", "cli", "user the job and its usage belong to")
	transcribeCmd.Flags().String("db", "", "database path (overrides config)")
	transcribeCmd.Flags().Bool("json", false, "print the finished job as JSON")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	lang, _ := cmd.Flags().GetString("language")
	language := models.Language(lang)
	if !language.IsSupported() {
		return fmt.Errorf("unsupported language %q", lang)
	}
	userID, _ := cmd.Flags().GetString("user")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cfg, dbPath)
	if err != nil {
		return err
	}
	defer p.Close()

	locator, name, err := stage(ctx, p, userID, args[0])
	if err != nil {
		return err
	}

	job, err := p.orchestrator.Submit(ctx, userID, locator, language, jobs.WithOriginalFilename(name))
	if err != nil {
		return err
	}

	// the job ends in error on interrupt, so the exit path is the same
	if err := p.orchestrator.Dispatch(ctx, job.ID); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Job %s failed: %v\n", job.ID, err)
	}

	job, err = p.jobs.GetJob(cmd.Context(), job.ID)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(job); err != nil {
			return err
		}
	} else {
		printJob(cmd.OutOrStdout(), job)
	}

	if job.Status != models.JobStatusDone {
		return fmt.Errorf("job %s ended with status %s (%s)", job.ID, job.Status, job.ErrorKind)
	}
	return nil
}

func printJob(out io.Writer, job *models.TranscriptJob) {
	fmt.Fprintf(out, "Job:      %s\n", job.ID)
	fmt.Fprintf(out, "Status:   %s\n", job.Status)
	if job.Status == models.JobStatusError {
		fmt.Fprintf(out, "Error:    %s: %s\n", job.ErrorKind, job.Error)
		return
	}
	fmt.Fprintf(out, "Duration: %s in %d chunk(s), %d speaker(s)\n", job.TotalDuration, job.ChunkCount, job.SpeakerCount)
	if job.Warning != "" {
		fmt.Fprintf(out, "Warning:  %s\n", job.Warning)
	}

	fmt.Fprintln(out, "\nTranscript")
	fmt.Fprintln(out, job.TranscriptText)

	fmt.Fprintln(out, "\nSummary")
	fmt.Fprintln(out, job.SummaryText)
	for _, item := range job.ActionItems {
		fmt.Fprintf(out, "  - %s\n", item)
	}
}

// stage returns the locator to submit. URLs are fetched by the worker,
// local files are probed and stored like an upload.
func stage(ctx context.Context, p *pipeline, userID, source string) (string, string, error) {
	if download.IsRemote(source) {
		u, err := url.Parse(source)
		if err != nil {
			return "", "", fmt.Errorf("invalid url %s: %w", source, err)
		}
		return source, path.Base(u.Path), nil
	}

	if _, err := p.ffmpeg.ValidateAudioFile(ctx, source); err != nil {
		return "", "", fmt.Errorf("%s: %w", source, err)
	}

	f, err := os.Open(source)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", "", err
	}

	name := filepath.Base(source)
	locator, err := p.store.Put(ctx, blob.NewObjectKey(userID, name), f, info.Size())
	if err != nil {
		return "", "", fmt.Errorf("storing %s: %w", source, err)
	}
	return locator, name, nil
}
