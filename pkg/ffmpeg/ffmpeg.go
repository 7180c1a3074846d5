package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// FFmpeg wraps ffmpeg and ffprobe functionality
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// New creates a new FFmpeg instance
func New(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     timeout,
	}
}

// ValidateBinaries checks if ffmpeg and ffprobe are available
func (f *FFmpeg) ValidateBinaries() error {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFmpegNotFound, f.ffmpegPath)
	}

	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFprobeNotFound, f.ffprobePath)
	}

	return nil
}

// ExtractFLAC cuts [start, start+duration) out of inputFile and returns it
// re-encoded as FLAC with the requested sample rate and channel count.
func (f *FFmpeg) ExtractFLAC(ctx context.Context, inputFile string, start, duration time.Duration, opts ExtractOptions) ([]byte, error) {
	if start < 0 || duration <= 0 {
		return nil, NewProcessingError("chunk_extraction", inputFile,
			fmt.Errorf("%w: start=%s duration=%s", ErrInvalidRange, start, duration), "")
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultExtractOptions().SampleRate
	}
	if opts.Channels <= 0 {
		opts.Channels = DefaultExtractOptions().Channels
	}

	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	args := []string{
		"-v", "error",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", inputFile,
		"-vn",
		"-ac", strconv.Itoa(opts.Channels),
		"-ar", strconv.Itoa(opts.SampleRate),
		"-c:a", "flac",
		"-f", "flac",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = ErrProcessingTimeout
		}
		return nil, NewProcessingError("chunk_extraction", inputFile, err, stderr.String())
	}

	if stdout.Len() == 0 {
		return nil, NewProcessingError("chunk_extraction", inputFile, ErrInvalidAudioFile, stderr.String())
	}

	return stdout.Bytes(), nil
}

// withTimeout bounds a single ffmpeg invocation.
func (f *FFmpeg) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

// formatSeconds renders d the way ffmpeg's -ss/-t flags accept it.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
