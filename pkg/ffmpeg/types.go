package ffmpeg

import "time"

// AudioMetadata represents metadata extracted from an audio file
type AudioMetadata struct {
	Duration   float64 `json:"duration"`    // Duration in seconds
	SampleRate int     `json:"sample_rate"` // Sample rate in Hz
	Channels   int     `json:"channels"`    // Number of audio channels
	Bitrate    int     `json:"bitrate"`     // Bitrate in bits per second
	Format     string  `json:"format"`      // Container format (mp3, mov,mp4,m4a, ...)
	Codec      string  `json:"codec"`       // Audio codec
	Size       int64   `json:"size"`        // File size in bytes
}

// Length returns the duration as a time.Duration.
func (m *AudioMetadata) Length() time.Duration {
	return time.Duration(m.Duration * float64(time.Second))
}

// SilenceInterval is one stretch of audio quieter than the detection threshold.
type SilenceInterval struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Midpoint is the offset used as a split candidate.
func (s SilenceInterval) Midpoint() time.Duration {
	return s.Start + (s.End-s.Start)/2
}

// SilenceOptions configures the silencedetect filter
type SilenceOptions struct {
	NoiseDB     float64       // Threshold in dB, e.g. -35
	MinDuration time.Duration // Shortest silence worth reporting
}

// DefaultSilenceOptions returns thresholds suited to speech recordings
func DefaultSilenceOptions() SilenceOptions {
	return SilenceOptions{
		NoiseDB:     -35,
		MinDuration: time.Second,
	}
}

// ExtractOptions controls chunk extraction
type ExtractOptions struct {
	SampleRate int // Output sample rate in Hz
	Channels   int // Output channel count
}

// DefaultExtractOptions matches what the recognizer expects: 16 kHz mono FLAC.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		SampleRate: 16000,
		Channels:   1,
	}
}
