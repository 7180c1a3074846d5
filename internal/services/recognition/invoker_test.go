package recognition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRecognizer struct {
	mock.Mock
}

func (m *MockRecognizer) Transcribe(ctx context.Context, audio []byte, language models.Language) ([]models.DiarizedSegment, error) {
	args := m.Called(ctx, audio, language)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DiarizedSegment), args.Error(1)
}

func (m *MockRecognizer) Name() string {
	return "mock"
}

func testInvoker(r Recognizer) *Invoker {
	return NewInvoker(r, InvokerConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
}

func testRequest() Request {
	return Request{
		JobID:    "job-1",
		Chunk:    models.AudioChunk{JobID: "job-1", Seq: 2, StartOffset: 10 * time.Minute, Duration: 5 * time.Minute, State: models.ChunkStatePending},
		Audio:    []byte("flac"),
		Language: models.LanguageItalian,
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestInvoker_Transcribe(t *testing.T) {
	segments := []models.DiarizedSegment{
		{SpeakerTag: "2", Start: 3 * time.Second, End: 5 * time.Second, Text: "secondo"},
		{SpeakerTag: "1", Start: 0, End: 2 * time.Second, Text: "primo"},
	}

	t.Run("success on first attempt", func(t *testing.T) {
		rec := new(MockRecognizer)
		rec.On("Transcribe", mock.Anything, []byte("flac"), models.LanguageItalian).Return(segments, nil).Once()

		res := testInvoker(rec).Transcribe(context.Background(), testRequest())
		require.NoError(t, res.Err)
		assert.Equal(t, 1, res.Attempts)
		assert.Equal(t, models.ChunkStateSucceeded, res.Chunk.State)
		assert.Equal(t, 0, res.Chunk.RetryCount)
		assert.Equal(t, 2, res.Chunk.SegmentCount)
		require.Len(t, res.Segments, 2)
		assert.Equal(t, "primo", res.Segments[0].Text)
		assert.Equal(t, 2, res.Segments[0].ChunkSeq)
		rec.AssertExpectations(t)
	})

	t.Run("transient failures retried", func(t *testing.T) {
		rec := new(MockRecognizer)
		rec.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, apperrors.TranscriptionError(true, errors.New("503"))).Twice()
		rec.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(segments, nil).Once()

		res := testInvoker(rec).Transcribe(context.Background(), testRequest())
		require.NoError(t, res.Err)
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, 2, res.Chunk.RetryCount)
		rec.AssertExpectations(t)
	})

	t.Run("retry budget exhausted", func(t *testing.T) {
		rec := new(MockRecognizer)
		rec.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, timeoutErr{}).Times(3)

		res := testInvoker(rec).Transcribe(context.Background(), testRequest())
		require.Error(t, res.Err)
		assert.True(t, apperrors.IsTransient(res.Err))
		assert.Equal(t, apperrors.KindTranscription, apperrors.KindOf(res.Err))
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, models.ChunkStateFailed, res.Chunk.State)
		assert.Equal(t, 2, res.Chunk.RetryCount)
		assert.NotEmpty(t, res.Chunk.Error)
		rec.AssertExpectations(t)
	})

	t.Run("permanent failure not retried", func(t *testing.T) {
		rec := new(MockRecognizer)
		rec.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, apperrors.TranscriptionError(false, errors.New("unsupported codec"))).Once()

		res := testInvoker(rec).Transcribe(context.Background(), testRequest())
		require.Error(t, res.Err)
		assert.False(t, apperrors.IsTransient(res.Err))
		assert.Equal(t, 1, res.Attempts)
		assert.Equal(t, models.ChunkStateFailed, res.Chunk.State)
		rec.AssertExpectations(t)
	})

	t.Run("unclassified error is permanent", func(t *testing.T) {
		rec := new(MockRecognizer)
		rec.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("malformed audio")).Once()

		res := testInvoker(rec).Transcribe(context.Background(), testRequest())
		assert.Equal(t, 1, res.Attempts)
		assert.False(t, apperrors.IsTransient(res.Err))
	})

	t.Run("cancelled context stops backoff", func(t *testing.T) {
		rec := new(MockRecognizer)
		rec.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, apperrors.TranscriptionError(true, errors.New("429")))

		inv := NewInvoker(rec, InvokerConfig{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour})
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		res := inv.Transcribe(ctx, testRequest())
		require.Error(t, res.Err)
		assert.Equal(t, 1, res.Attempts)
	})

	t.Run("in-flight attempt drains after cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var callErr error

		rec := new(MockRecognizer)
		rec.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				cancel()
				callErr = args.Get(0).(context.Context).Err()
			}).
			Return([]models.DiarizedSegment{{SpeakerTag: "1", Start: 0, End: time.Second, Text: "hi"}}, nil).Once()

		res := testInvoker(rec).Transcribe(ctx, testRequest())
		assert.NoError(t, callErr)
		assert.NoError(t, res.Err)
		assert.Equal(t, models.ChunkStateSucceeded, res.Chunk.State)
	})
}

func TestNewInvoker_Defaults(t *testing.T) {
	inv := NewInvoker(new(MockRecognizer), InvokerConfig{})
	assert.Equal(t, 3, inv.MaxAttempts())
	assert.Equal(t, time.Second, inv.backoff)
	assert.Equal(t, time.Second, inv.maxBackoff)
}

func TestNormalize(t *testing.T) {
	chunk := models.AudioChunk{Seq: 1, Duration: 10 * time.Second}
	in := []models.DiarizedSegment{
		{SpeakerTag: "1", Start: 4 * time.Second, End: 6 * time.Second, Text: " b "},
		{SpeakerTag: "2", Start: 0, End: 5 * time.Second, Text: "a"},
		{SpeakerTag: "1", Start: 9 * time.Second, End: 12 * time.Second, Text: "c"},
		{SpeakerTag: "3", Start: 7 * time.Second, End: 8 * time.Second, Text: "   "},
	}

	out := Normalize(in, chunk)
	require.Len(t, out, 3)

	assert.Equal(t, "a", out[0].Text)
	assert.Equal(t, "b", out[1].Text)
	assert.Equal(t, 5*time.Second, out[1].Start, "overlap trimmed")
	assert.Equal(t, 10*time.Second, out[2].End, "clamped to chunk")

	for i, s := range out {
		assert.Equal(t, 1, s.ChunkSeq)
		assert.LessOrEqual(t, s.Start, s.End)
		if i > 0 {
			assert.GreaterOrEqual(t, s.Start, out[i-1].End)
		}
	}
}
