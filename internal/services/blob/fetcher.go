package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/killallgit/echonote-api/pkg/download"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"github.com/killallgit/echonote-api/pkg/ffmpeg"
	"github.com/killallgit/echonote-api/pkg/logging"
)

// SpoolPattern prefixes every temp file the fetcher creates
const SpoolPattern = "echonote-spool-"

// Prober reads container metadata from a local file
type Prober interface {
	ValidateAudioFile(ctx context.Context, filePath string) (*ffmpeg.AudioMetadata, error)
}

// LocalAudio is a recording spooled to local disk for ffmpeg
type LocalAudio struct {
	Locator  string
	Path     string
	Duration time.Duration
	Metadata *ffmpeg.AudioMetadata
}

// Cleanup removes the spool file
func (a *LocalAudio) Cleanup() {
	if a == nil || a.Path == "" {
		return
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] Failed to remove spool file %s: %v", a.Path, err)
	}
}

// RemoteOpener opens http(s) locators
type RemoteOpener interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Fetcher resolves a job's audio locator into a probed local file
type Fetcher struct {
	store   Store
	remote  RemoteOpener
	prober  Prober
	tempDir string
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithRemote lets the fetcher read locators that are http(s) URLs.
// Without it those locators are looked up in the store like any key.
func WithRemote(r RemoteOpener) FetcherOption {
	return func(f *Fetcher) {
		f.remote = r
	}
}

// NewFetcher creates a fetcher spooling into tempDir
func NewFetcher(store Store, prober Prober, tempDir string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{store: store, prober: prober, tempDir: tempDir}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if f.remote != nil && download.IsRemote(locator) {
		return f.remote.Open(ctx, locator)
	}
	return f.store.Open(ctx, locator)
}

// Fetch copies the recording to a temp file and probes its duration.
// Unreadable sources are StorageErrors; files that are not usable audio
// are ValidationErrors.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (*LocalAudio, error) {
	if locator == "" {
		return nil, apperrors.ValidationError("audio_locator", "empty locator")
	}

	rc, err := f.open(ctx, locator)
	if err != nil {
		return nil, apperrors.StorageError(locator, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(f.tempDir, 0755); err != nil {
		return nil, apperrors.StorageError(locator, fmt.Errorf("creating temp dir: %w", err))
	}

	tmp, err := os.CreateTemp(f.tempDir, SpoolPattern+"*"+spoolExt(locator))
	if err != nil {
		return nil, apperrors.StorageError(locator, fmt.Errorf("creating spool file: %w", err))
	}
	audio := &LocalAudio{Locator: locator, Path: tmp.Name()}

	n, err := io.Copy(tmp, rc)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		audio.Cleanup()
		return nil, apperrors.StorageError(locator, fmt.Errorf("spooling: %w", err))
	}
	logging.Debugf("Spooled %s (%d bytes) to %s", locator, n, audio.Path)

	md, err := f.prober.ValidateAudioFile(ctx, audio.Path)
	if err != nil {
		audio.Cleanup()
		if errors.Is(err, ffmpeg.ErrInvalidAudioFile) || errors.Is(err, ffmpeg.ErrNoDuration) {
			return nil, apperrors.ValidationError("audio", err.Error())
		}
		return nil, apperrors.StorageError(locator, err)
	}

	audio.Metadata = md
	audio.Duration = md.Length()
	return audio, nil
}

// spoolExt keeps the extension as a hint for ffprobe, ignoring URL queries
func spoolExt(locator string) string {
	if i := strings.IndexAny(locator, "?#"); i >= 0 && download.IsRemote(locator) {
		locator = locator[:i]
	}
	ext := path.Ext(locator)
	if len(ext) > 6 || strings.ContainsAny(ext, "/*") {
		return ""
	}
	return ext
}
