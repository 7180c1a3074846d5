package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"plain error", stderrors.New("boom"), KindInternal},
		{"validation", ValidationError("language", "unsupported"), KindValidation},
		{"storage", StorageError("audio/u/x.wav", stderrors.New("no such key")), KindStorage},
		{"transcription", TranscriptionError(false, stderrors.New("bad codec")), KindTranscription},
		{"stitching", StitchingError("missing chunk 2"), KindStitching},
		{"summarization", SummarizationError(stderrors.New("quota")), KindSummarization},
		{"concurrency", ConcurrencyError("job-1"), KindConcurrency},
		{"cancelled", CancelledError("job-1"), KindCancelled},
		{"wrapped", fmt.Errorf("processing chunk 3: %w", StorageError("k", nil)), KindStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(TranscriptionError(true, nil)))
	assert.False(t, IsTransient(TranscriptionError(false, nil)))
	assert.True(t, IsTransient(fmt.Errorf("attempt 1: %w", TranscriptionError(true, nil))))
	assert.False(t, IsTransient(stderrors.New("timeout")))
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := StorageError("audio/a.flac", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "STORAGE")
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, "audio/a.flac", err.Details["locator"])
}

func TestGetHTTPCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ValidationError("f", "r").GetHTTPCode())
	assert.Equal(t, http.StatusNotFound, NotFound("job", "1").GetHTTPCode())
	assert.Equal(t, http.StatusConflict, ConcurrencyError("1").GetHTTPCode())
	assert.Equal(t, http.StatusTooManyRequests, RateLimitError("api", "1/s").GetHTTPCode())
	assert.Equal(t, http.StatusBadGateway, ExternalServiceError("google-speech", nil).GetHTTPCode())
	assert.Equal(t, http.StatusRequestTimeout, TimeoutError("op", "1s").GetHTTPCode())
	assert.Equal(t, ErrCodeInternal, GetCode(stderrors.New("x")))
	assert.True(t, Is(fmt.Errorf("w: %w", NotFound("job", "1")), ErrCodeNotFound))
}

func TestDatabaseAndConfigErrors(t *testing.T) {
	cause := stderrors.New("database is locked")
	err := fmt.Errorf("completing: %w", DatabaseError("complete job", cause))

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeDatabaseQuery, GetCode(err))
	assert.Equal(t, KindInternal, KindOf(err))

	cfgErr := ConfigError("server.port", "invalid server port: 0")
	assert.True(t, Is(cfgErr, ErrCodeConfigInvalid))
	assert.Equal(t, "server.port", cfgErr.Details["key"])
}
