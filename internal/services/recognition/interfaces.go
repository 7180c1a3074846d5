// Package recognition invokes the diarizing speech recognizer for one chunk
// at a time, retrying transient failures.
package recognition

import (
	"context"

	"github.com/killallgit/echonote-api/internal/models"
)

// Recognizer transcribes one chunk of audio with speaker diarization.
// Returned segments carry chunk-relative offsets. Implementations report
// failures as apperrors.TranscriptionError so retryability is explicit.
type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte, language models.Language) ([]models.DiarizedSegment, error)
	Name() string
}

// Request is one chunk ready for recognition
type Request struct {
	JobID    string
	Chunk    models.AudioChunk
	Audio    []byte
	Language models.Language
}

// Result is the outcome of transcribing one chunk. Chunk.State and
// Chunk.RetryCount reflect what happened.
type Result struct {
	Chunk    models.AudioChunk
	Segments []models.DiarizedSegment
	Attempts int
	Err      error
}
