package summary

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
)

const (
	// WarningEmptyTranscript is recorded when there was nothing to summarize
	WarningEmptyTranscript = "transcript is empty; summary skipped"
	// WarningSummaryFailed is recorded when the provider failed
	WarningSummaryFailed = "summary unavailable: summarization failed"
	// WarningSummaryFallback is recorded when the extractive fallback was used
	WarningSummaryFallback = "summarization failed; extractive summary used"
)

// Outcome is the result of one summarization attempt. Err is informational;
// a failed summary never fails the job.
type Outcome struct {
	Summary *Summary
	Warning string
	Err     error
}

// Text returns the rendered summary, or "" when none was produced
func (o Outcome) Text(language models.Language) string {
	if o.Summary == nil {
		return ""
	}
	return o.Summary.Render(language)
}

// ActionItems returns the extracted action items, never nil
func (o Outcome) ActionItems() []string {
	if o.Summary == nil || o.Summary.ActionItems == nil {
		return []string{}
	}
	return o.Summary.ActionItems
}

// Invoker calls a summarizer once per job and downgrades failures to warnings
type Invoker struct {
	summarizer Summarizer
	fallback   Summarizer
	timeout    time.Duration
}

// InvokerOption configures an Invoker
type InvokerOption func(*Invoker)

// WithTimeout bounds a single summarization call
func WithTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.timeout = d
	}
}

// WithFallback sets a summarizer used when the primary one fails
func WithFallback(s Summarizer) InvokerOption {
	return func(i *Invoker) {
		i.fallback = s
	}
}

// NewInvoker creates an invoker around summarizer
func NewInvoker(summarizer Summarizer, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		summarizer: summarizer,
		timeout:    2 * time.Minute,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run summarizes transcript. It never returns a job-fatal error.
func (i *Invoker) Run(ctx context.Context, transcript string, language models.Language) Outcome {
	if strings.TrimSpace(transcript) == "" {
		return Outcome{Warning: WarningEmptyTranscript}
	}

	summary, err := i.call(ctx, i.summarizer, transcript, language)
	if err == nil {
		return Outcome{Summary: summary}
	}

	wrapped := apperrors.SummarizationError(err).WithDetail("provider", i.summarizer.Name())
	log.Printf("[WARN] Summarization with %s failed: %v", i.summarizer.Name(), err)

	if i.fallback != nil {
		if fb, fbErr := i.call(ctx, i.fallback, transcript, language); fbErr == nil {
			return Outcome{Summary: fb, Warning: WarningSummaryFallback, Err: wrapped}
		}
	}

	return Outcome{Warning: WarningSummaryFailed, Err: wrapped}
}

func (i *Invoker) call(ctx context.Context, s Summarizer, transcript string, language models.Language) (*Summary, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	return s.Summarize(ctx, transcript, language)
}
