package chunking

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"github.com/killallgit/echonote-api/pkg/ffmpeg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) DetectSilence(ctx context.Context, path string, opts ffmpeg.SilenceOptions) ([]ffmpeg.SilenceInterval, error) {
	args := m.Called(ctx, path, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ffmpeg.SilenceInterval), args.Error(1)
}

func mmss(m, s int) time.Duration {
	return time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}

func assertCovers(t *testing.T, chunks []models.AudioChunk, total, max time.Duration) {
	t.Helper()
	require.NotEmpty(t, chunks)
	var sum, cursor time.Duration
	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		assert.Equal(t, cursor, c.StartOffset, "chunk %d not contiguous", i)
		assert.Greater(t, c.Duration, time.Duration(0))
		assert.LessOrEqual(t, c.Duration, max)
		assert.Equal(t, models.ChunkStatePending, c.State)
		sum += c.Duration
		cursor = c.End()
	}
	assert.Equal(t, total, sum)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		total time.Duration
		max   time.Duration
		min   time.Duration
		gaps  []time.Duration
		want  [][2]time.Duration
	}{
		{
			name:  "twelve minutes with two gaps",
			total: 12 * time.Minute,
			max:   5 * time.Minute,
			gaps:  []time.Duration{mmss(4, 50), mmss(9, 40)},
			want: [][2]time.Duration{
				{0, mmss(4, 50)},
				{mmss(4, 50), mmss(9, 40)},
				{mmss(9, 40), 12 * time.Minute},
			},
		},
		{
			name:  "shorter than max is one chunk",
			total: 3 * time.Minute,
			max:   5 * time.Minute,
			gaps:  []time.Duration{time.Minute},
			want:  [][2]time.Duration{{0, 3 * time.Minute}},
		},
		{
			name:  "exactly max is one chunk",
			total: 5 * time.Minute,
			max:   5 * time.Minute,
			want:  [][2]time.Duration{{0, 5 * time.Minute}},
		},
		{
			name:  "no silence forces hard cuts",
			total: 11 * time.Minute,
			max:   5 * time.Minute,
			want: [][2]time.Duration{
				{0, 5 * time.Minute},
				{5 * time.Minute, 10 * time.Minute},
				{10 * time.Minute, 11 * time.Minute},
			},
		},
		{
			name:  "latest gap in window wins",
			total: 8 * time.Minute,
			max:   5 * time.Minute,
			gaps:  []time.Duration{time.Minute, mmss(3, 0), mmss(4, 59), mmss(5, 1)},
			want: [][2]time.Duration{
				{0, mmss(4, 59)},
				{mmss(4, 59), 8 * time.Minute},
			},
		},
		{
			name:  "gap exactly at max is used",
			total: 7 * time.Minute,
			max:   5 * time.Minute,
			gaps:  []time.Duration{5 * time.Minute},
			want: [][2]time.Duration{
				{0, 5 * time.Minute},
				{5 * time.Minute, 7 * time.Minute},
			},
		},
		{
			name:  "gap below min chunk ignored",
			total: 7 * time.Minute,
			max:   5 * time.Minute,
			min:   30 * time.Second,
			gaps:  []time.Duration{10 * time.Second},
			want: [][2]time.Duration{
				{0, 5 * time.Minute},
				{5 * time.Minute, 7 * time.Minute},
			},
		},
		{
			name:  "unsorted duplicate and out of range gaps",
			total: 10 * time.Minute,
			max:   5 * time.Minute,
			gaps:  []time.Duration{-time.Second, 0, mmss(4, 0), mmss(4, 0), 10 * time.Minute, mmss(8, 0)},
			want: [][2]time.Duration{
				{0, mmss(4, 0)},
				{mmss(4, 0), mmss(8, 0)},
				{mmss(8, 0), 10 * time.Minute},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Split(tt.total, tt.max, tt.min, tt.gaps)
			require.NoError(t, err)
			require.Len(t, chunks, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w[0], chunks[i].StartOffset, "chunk %d start", i)
				assert.Equal(t, w[1], chunks[i].End(), "chunk %d end", i)
			}
			assertCovers(t, chunks, tt.total, tt.max)
		})
	}
}

func TestSplit_Invalid(t *testing.T) {
	for _, total := range []time.Duration{0, -time.Second} {
		_, err := Split(total, 5*time.Minute, 0, nil)
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	}

	_, err := Split(time.Minute, 0, 0, nil)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestSplit_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		total := time.Duration(1+rng.Int63n(int64(3*time.Hour/time.Millisecond))) * time.Millisecond
		max := time.Duration(1+rng.Int63n(int64(10*time.Minute/time.Second))) * time.Second

		var gaps []time.Duration
		for n := rng.Intn(40); n > 0; n-- {
			gaps = append(gaps, time.Duration(rng.Int63n(int64(total))))
		}

		chunks, err := Split(total, max, 0, gaps)
		require.NoError(t, err)
		assertCovers(t, chunks, total, max)

		if len(gaps) == 0 {
			for _, c := range chunks[:len(chunks)-1] {
				assert.Equal(t, max, c.Duration)
			}
		}
	}
}

func TestPlanner_Plan(t *testing.T) {
	ctx := context.Background()

	t.Run("uses silence midpoints", func(t *testing.T) {
		detector := new(MockDetector)
		detector.On("DetectSilence", ctx, "/tmp/meeting.wav", ffmpeg.DefaultSilenceOptions()).Return([]ffmpeg.SilenceInterval{
			{Start: mmss(4, 49), End: mmss(4, 51)},
			{Start: mmss(9, 39), End: mmss(9, 41)},
		}, nil)

		planner := NewPlanner(detector)
		chunks, err := planner.Plan(ctx, AudioDescriptor{Path: "/tmp/meeting.wav", Duration: 12 * time.Minute})
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, mmss(4, 50), chunks[1].StartOffset)
		assert.Equal(t, mmss(9, 40), chunks[2].StartOffset)
		detector.AssertExpectations(t)
	})

	t.Run("short audio skips detection", func(t *testing.T) {
		detector := new(MockDetector)
		planner := NewPlanner(detector)
		chunks, err := planner.Plan(ctx, AudioDescriptor{Path: "/tmp/short.wav", Duration: 90 * time.Second})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		detector.AssertNotCalled(t, "DetectSilence", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("detector failure falls back to hard cuts", func(t *testing.T) {
		detector := new(MockDetector)
		detector.On("DetectSilence", ctx, "/tmp/meeting.wav", mock.Anything).Return(nil, errors.New("ffmpeg exited 1"))

		planner := NewPlanner(detector, WithMaxChunk(4*time.Minute))
		chunks, err := planner.Plan(ctx, AudioDescriptor{Path: "/tmp/meeting.wav", Duration: 10 * time.Minute})
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assertCovers(t, chunks, 10*time.Minute, 4*time.Minute)
	})

	t.Run("zero duration rejected", func(t *testing.T) {
		planner := NewPlanner(nil)
		_, err := planner.Plan(ctx, AudioDescriptor{Path: "/tmp/empty.wav"})
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	})

	t.Run("missing path rejected when detection needed", func(t *testing.T) {
		planner := NewPlanner(new(MockDetector))
		_, err := planner.Plan(ctx, AudioDescriptor{Duration: time.Hour})
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	})

	t.Run("min chunk not below max is dropped", func(t *testing.T) {
		planner := NewPlanner(nil, WithMaxChunk(time.Minute), WithMinChunk(2*time.Minute))
		assert.Equal(t, time.Minute, planner.MaxChunk())
		assert.Equal(t, time.Duration(0), planner.minChunk)
	})
}
