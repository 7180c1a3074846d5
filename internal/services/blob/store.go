// Package blob stores uploaded recordings and fetches them for processing.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/killallgit/echonote-api/pkg/config"
)

// ErrNotFound is returned when a locator does not resolve to an object
var ErrNotFound = errors.New("blob not found")

// Store persists recordings under opaque locators
type Store interface {
	// Put writes r under key and returns the locator to store on the job.
	// size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error)
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	Delete(ctx context.Context, locator string) error
	Exists(ctx context.Context, locator string) (bool, error)
}

// NewObjectKey builds the key for an upload: audio/<user>/<uuid>/<filename>
func NewObjectKey(userID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	// dot-only names would collapse the key under path.Join
	if name == "/" || strings.Trim(name, ".") == "" {
		name = "recording"
	}
	return path.Join("audio", sanitize(userID), uuid.NewString(), name)
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" || strings.Trim(s, ".") == "" {
		return "anonymous"
	}
	return s
}

// cleanKey rejects keys that would escape the store root
func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return cleaned, nil
}

// NewFromConfig creates the configured store
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "filesystem":
		return NewFilesystemStore(cfg.BaseDir)
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", cfg.Backend)
	}
}
