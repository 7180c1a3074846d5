package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FilesystemStore keeps recordings on local disk. Locators are keys
// relative to the base directory.
type FilesystemStore struct {
	basePath string
}

// NewFilesystemStore creates a filesystem store rooted at basePath
func NewFilesystemStore(basePath string) (*FilesystemStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FilesystemStore{
		basePath: basePath,
	}, nil
}

func (fs *FilesystemStore) resolve(locator string) (string, error) {
	key, err := cleanKey(locator)
	if err != nil {
		return "", err
	}
	return filepath.Join(fs.basePath, filepath.FromSlash(key)), nil
}

// Put saves data to the filesystem
func (fs *FilesystemStore) Put(ctx context.Context, key string, data io.Reader, _ int64) (string, error) {
	locator, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(fs.basePath, filepath.FromSlash(locator))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		os.Remove(fullPath) // Clean up on error
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return locator, nil
}

// Open opens a stored recording
func (fs *FilesystemStore) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	fullPath, err := fs.resolve(locator)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: %w", locator, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes a stored recording. Missing files are not an error.
func (fs *FilesystemStore) Delete(ctx context.Context, locator string) error {
	fullPath, err := fs.resolve(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if a recording exists
func (fs *FilesystemStore) Exists(ctx context.Context, locator string) (bool, error) {
	fullPath, err := fs.resolve(locator)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return true, nil
}

var _ Store = (*FilesystemStore)(nil)
