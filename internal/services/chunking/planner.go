// Package chunking plans how a recording is cut into bounded slices for
// speech recognition, preferring to cut inside silences.
package chunking

import (
	"context"
	"log"
	"slices"
	"sort"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"github.com/killallgit/echonote-api/pkg/ffmpeg"
	"github.com/killallgit/echonote-api/pkg/logging"
)

// DefaultMaxChunk is the longest slice sent to the recognizer in one call
const DefaultMaxChunk = 5 * time.Minute

// SilenceDetector finds quiet stretches in an audio file
type SilenceDetector interface {
	DetectSilence(ctx context.Context, path string, opts ffmpeg.SilenceOptions) ([]ffmpeg.SilenceInterval, error)
}

// AudioDescriptor identifies the local audio to plan and its length
type AudioDescriptor struct {
	Path     string
	Duration time.Duration
}

// Planner turns an audio descriptor into an ordered list of chunks
type Planner struct {
	maxChunk time.Duration
	minChunk time.Duration
	silence  ffmpeg.SilenceOptions
	detector SilenceDetector
}

// Option configures a Planner
type Option func(*Planner)

// WithMaxChunk sets the upper bound on chunk duration
func WithMaxChunk(d time.Duration) Option {
	return func(p *Planner) {
		if d > 0 {
			p.maxChunk = d
		}
	}
}

// WithMinChunk ignores silence gaps that would produce a chunk shorter than d
func WithMinChunk(d time.Duration) Option {
	return func(p *Planner) {
		if d >= 0 {
			p.minChunk = d
		}
	}
}

// WithSilenceOptions sets the silencedetect thresholds
func WithSilenceOptions(opts ffmpeg.SilenceOptions) Option {
	return func(p *Planner) {
		p.silence = opts
	}
}

// NewPlanner creates a planner. A nil detector means every split is a hard cut.
func NewPlanner(detector SilenceDetector, opts ...Option) *Planner {
	p := &Planner{
		maxChunk: DefaultMaxChunk,
		silence:  ffmpeg.DefaultSilenceOptions(),
		detector: detector,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.minChunk >= p.maxChunk {
		p.minChunk = 0
	}
	return p
}

// MaxChunk returns the configured upper bound
func (p *Planner) MaxChunk() time.Duration {
	return p.maxChunk
}

// Plan computes the chunks covering [0, desc.Duration).
func (p *Planner) Plan(ctx context.Context, desc AudioDescriptor) ([]models.AudioChunk, error) {
	if desc.Duration <= 0 {
		return nil, apperrors.ValidationError("duration", "audio duration must be positive")
	}

	var gaps []time.Duration
	if desc.Duration > p.maxChunk && p.detector != nil {
		if desc.Path == "" {
			return nil, apperrors.ValidationError("path", "audio descriptor has no readable path")
		}
		intervals, err := p.detector.DetectSilence(ctx, desc.Path, p.silence)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// hard cuts still produce a valid plan
			log.Printf("[WARN] Silence detection failed for %s, using fixed-length chunks: %v", desc.Path, err)
		}
		for _, iv := range intervals {
			gaps = append(gaps, iv.Midpoint())
		}
		logging.Debugf("Detected %d silence gaps in %s", len(gaps), desc.Path)
	}

	return Split(desc.Duration, p.maxChunk, p.minChunk, gaps)
}

// Split cuts [0, total) into contiguous chunks no longer than max. Each cut is
// placed at the latest gap in (start+min, start+max]; without one the cut is
// forced at start+max. Durations always sum to total.
func Split(total, max, min time.Duration, gaps []time.Duration) ([]models.AudioChunk, error) {
	if total <= 0 {
		return nil, apperrors.ValidationError("duration", "audio duration must be positive")
	}
	if max <= 0 {
		return nil, apperrors.ValidationError("max_chunk_duration", "must be positive")
	}
	if min < 0 || min >= max {
		min = 0
	}

	candidates := normalizeGaps(gaps, total)

	var chunks []models.AudioChunk
	var start time.Duration
	for total-start > max {
		end := start + max
		if g, ok := latestGap(candidates, start+min, start+max); ok && g > start {
			end = g
		}
		chunks = append(chunks, newChunk(len(chunks), start, end-start))
		start = end
	}
	chunks = append(chunks, newChunk(len(chunks), start, total-start))

	return chunks, nil
}

func newChunk(seq int, start, duration time.Duration) models.AudioChunk {
	return models.AudioChunk{
		Seq:         seq,
		StartOffset: start,
		Duration:    duration,
		State:       models.ChunkStatePending,
	}
}

// normalizeGaps sorts, dedupes and drops offsets outside (0, total).
func normalizeGaps(gaps []time.Duration, total time.Duration) []time.Duration {
	out := make([]time.Duration, 0, len(gaps))
	for _, g := range gaps {
		if g > 0 && g < total {
			out = append(out, g)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// latestGap returns the largest gap g with lo < g <= hi.
func latestGap(sorted []time.Duration, lo, hi time.Duration) (time.Duration, bool) {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i] > hi })
	if i == 0 {
		return 0, false
	}
	g := sorted[i-1]
	if g <= lo {
		return 0, false
	}
	return g, true
}
