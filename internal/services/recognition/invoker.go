package recognition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"github.com/killallgit/echonote-api/pkg/logging"
	"golang.org/x/time/rate"
)

// InvokerConfig holds retry and quota settings
type InvokerConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64
}

// DefaultInvokerConfig returns the production retry policy
func DefaultInvokerConfig() InvokerConfig {
	return InvokerConfig{
		MaxAttempts:       3,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        30 * time.Second,
		RequestsPerSecond: 5,
	}
}

// Invoker calls a Recognizer for single chunks with retry and a shared quota limiter
type Invoker struct {
	recognizer  Recognizer
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
}

// NewInvoker creates an Invoker. A non-positive RequestsPerSecond disables the limiter.
func NewInvoker(recognizer Recognizer, cfg InvokerConfig) *Invoker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &Invoker{
		recognizer:  recognizer,
		limiter:     rate.NewLimiter(limit, burst),
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.InitialBackoff,
		maxBackoff:  cfg.MaxBackoff,
	}
}

// MaxAttempts returns the per-chunk attempt ceiling
func (i *Invoker) MaxAttempts() int {
	return i.maxAttempts
}

// Transcribe runs recognition for one chunk. Transient failures are retried
// with exponential backoff until the attempt ceiling; permanent failures
// return at once.
func (i *Invoker) Transcribe(ctx context.Context, req Request) Result {
	chunk := req.Chunk
	backoff := i.backoff
	var lastErr error

	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		if err := i.limiter.Wait(ctx); err != nil {
			lastErr = apperrors.TranscriptionError(true, fmt.Errorf("rate limiter wait: %w", err))
			break
		}

		// a request already sent runs to completion; ctx only stops new attempts
		segments, err := i.recognizer.Transcribe(context.WithoutCancel(ctx), req.Audio, req.Language)
		if err == nil {
			chunk.State = models.ChunkStateSucceeded
			chunk.RetryCount = attempt - 1
			chunk.Error = ""
			normalized := Normalize(segments, chunk)
			chunk.SegmentCount = len(normalized)
			logging.Debugf("Job %s chunk %d transcribed: %d segments after %d attempt(s)",
				req.JobID, chunk.Seq, len(normalized), attempt)
			return Result{Chunk: chunk, Segments: normalized, Attempts: attempt}
		}

		lastErr = classify(err)
		if !apperrors.IsTransient(lastErr) {
			log.Printf("[ERROR] Job %s chunk %d: permanent recognition failure: %v", req.JobID, chunk.Seq, err)
			return i.failed(chunk, attempt, lastErr)
		}

		if attempt == i.maxAttempts {
			break
		}

		log.Printf("[WARN] Job %s chunk %d: attempt %d/%d failed, retrying in %s: %v",
			req.JobID, chunk.Seq, attempt, i.maxAttempts, backoff, err)

		select {
		case <-ctx.Done():
			return i.failed(chunk, attempt, apperrors.TranscriptionError(true, ctx.Err()))
		case <-time.After(backoff):
			backoff *= 2
			if backoff > i.maxBackoff {
				backoff = i.maxBackoff
			}
		}
	}

	log.Printf("[ERROR] Job %s chunk %d: retry budget exhausted: %v", req.JobID, chunk.Seq, lastErr)
	return i.failed(chunk, i.maxAttempts, lastErr)
}

func (i *Invoker) failed(chunk models.AudioChunk, attempts int, err error) Result {
	chunk.State = models.ChunkStateFailed
	chunk.RetryCount = attempts - 1
	chunk.Error = err.Error()
	return Result{Chunk: chunk, Attempts: attempts, Err: err}
}

// classify turns an arbitrary recognizer error into a TranscriptionError.
// Errors already classified keep their flag.
func classify(err error) error {
	if appErr, ok := apperrors.As(err); ok && appErr.Code == apperrors.ErrCodeTranscription {
		return err
	}
	return apperrors.TranscriptionError(isTemporaryError(err), err)
}

// isTemporaryError reports network level failures worth retrying
func isTemporaryError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused")
}

// Normalize orders segments by start, clamps them to the chunk and removes
// overlaps so the chunk's segments are time ordered and disjoint.
func Normalize(segments []models.DiarizedSegment, chunk models.AudioChunk) []models.DiarizedSegment {
	out := make([]models.DiarizedSegment, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		s.ChunkSeq = chunk.Seq
		s.Text = strings.TrimSpace(s.Text)
		out = append(out, s)
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Start < out[b].Start })

	var cursor time.Duration
	for k := range out {
		s := &out[k]
		if s.Start < cursor {
			s.Start = cursor
		}
		if s.Start > chunk.Duration {
			s.Start = chunk.Duration
		}
		if s.End > chunk.Duration {
			s.End = chunk.Duration
		}
		if s.End < s.Start {
			s.End = s.Start
		}
		cursor = s.End
	}

	return out
}
