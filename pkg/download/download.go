// Package download opens recordings served over HTTP(S) so they can be
// spooled like stored uploads.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/killallgit/echonote-api/pkg/logging"
)

// ErrTooLarge is returned when a response exceeds Options.MaxSize
var ErrTooLarge = errors.New("download exceeds size limit")

// Options configures the client
type Options struct {
	MaxSize       int64         // Maximum body size in bytes (0 = no limit)
	Timeout       time.Duration // Whole request timeout
	UserAgent     string
	ValidateAudio bool // Reject responses whose Content-Type is not audio
}

// DefaultOptions returns default download options
func DefaultOptions() Options {
	return Options{
		MaxSize:       500 * 1024 * 1024,
		Timeout:       10 * time.Minute,
		UserAgent:     "EchoNoteAPI/1.0",
		ValidateAudio: true,
	}
}

// StatusError reports a non-success HTTP response
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: server returned status %d", e.URL, e.Status)
}

// Client fetches remote recordings
type Client struct {
	client  *http.Client
	options Options
}

// NewClient creates a client with the given options
func NewClient(options Options) *Client {
	return &Client{
		client: &http.Client{
			Timeout: options.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				DisableCompression:  true, // audio does not compress
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		options: options,
	}
}

// IsRemote reports whether locator is an http or https URL
func IsRemote(locator string) bool {
	l := strings.ToLower(locator)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Open starts the download and returns the body. Reading past MaxSize
// fails with ErrTooLarge.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	logging.Debugf("Starting download from %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.options.UserAgent)
	req.Header.Set("Accept", "audio/*,*/*")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if c.options.ValidateAudio && !isAudioContentType(contentType) {
		resp.Body.Close()
		return nil, fmt.Errorf("invalid content type: %s", contentType)
	}

	if c.options.MaxSize > 0 && resp.ContentLength > c.options.MaxSize {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, resp.ContentLength, c.options.MaxSize)
	}

	if c.options.MaxSize <= 0 {
		return resp.Body, nil
	}
	return &limitedBody{body: resp.Body, remaining: c.options.MaxSize}, nil
}

// isAudioContentType checks if content type is audio
func isAudioContentType(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.HasPrefix(contentType, "audio/") ||
		contentType == "application/octet-stream" // Some servers use this for audio
}

// limitedBody fails instead of silently truncating
type limitedBody struct {
	body      io.ReadCloser
	remaining int64
}

func (l *limitedBody) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		// one extra byte tells a body of exactly MaxSize from a longer one
		var probe [1]byte
		n, err := l.body.Read(probe[:])
		if n > 0 {
			return 0, ErrTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.body.Read(p)
	l.remaining -= int64(n)
	return n, err
}

func (l *limitedBody) Close() error {
	return l.body.Close()
}
