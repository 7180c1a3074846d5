package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// Example: [silencedetect @ 0x...] silence_start: 289.51
	silenceStartRegex = regexp.MustCompile(`silence_start:\s*(-?[\d.]+)`)
	// Example: [silencedetect @ 0x...] silence_end: 291.02 | silence_duration: 1.51
	silenceEndRegex = regexp.MustCompile(`silence_end:\s*([\d.]+)`)
)

// DetectSilence runs ffmpeg's silencedetect filter over the whole file and
// returns the silent intervals in stream order.
func (f *FFmpeg) DetectSilence(ctx context.Context, inputFile string, opts SilenceOptions) ([]SilenceInterval, error) {
	if opts.MinDuration <= 0 {
		opts = DefaultSilenceOptions()
	}

	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	filter := fmt.Sprintf("silencedetect=n=%sdB:d=%s",
		strconv.FormatFloat(opts.NoiseDB, 'f', -1, 64),
		formatSeconds(opts.MinDuration))

	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-hide_banner",
		"-nostats",
		"-i", inputFile,
		"-af", filter,
		"-f", "null",
		"-",
	)

	// silencedetect reports on stderr
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, NewProcessingError("silence_detection", inputFile, err, stderr.String())
	}

	return ParseSilenceOutput(stderr.String(), 0), nil
}

// ParseSilenceOutput extracts silence intervals from silencedetect output.
// A trailing silence_start without a matching end is closed at total when
// total is positive, otherwise dropped.
func ParseSilenceOutput(output string, total time.Duration) []SilenceInterval {
	var intervals []SilenceInterval
	var open *time.Duration

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if m := silenceStartRegex.FindStringSubmatch(line); len(m) > 1 {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				start := secondsToDuration(v)
				if start < 0 {
					start = 0
				}
				open = &start
			}
			continue
		}

		if m := silenceEndRegex.FindStringSubmatch(line); len(m) > 1 && open != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				end := secondsToDuration(v)
				if end > *open {
					intervals = append(intervals, SilenceInterval{Start: *open, End: end})
				}
			}
			open = nil
		}
	}

	if open != nil && total > *open {
		intervals = append(intervals, SilenceInterval{Start: *open, End: total})
	}

	return intervals
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Millisecond)
}
