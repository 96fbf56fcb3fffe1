package fs

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

const valueExt = ".val"

// KVFileStore implements ports.KVStore with one file per key in a directory.
type KVFileStore struct {
	dir string
}

// NewKVFileStore creates a store rooted at dir. The directory is created on
// first write.
func NewKVFileStore(dir string) *KVFileStore {
	return &KVFileStore{dir: dir}
}

// Get reads the value for key.
// Returns ok=false and nil error if no file exists for the key.
func (s *KVFileStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set stores value atomically: write a temp file, fsync, then rename over
// the old one.
func (s *KVFileStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}

	path := s.path(key)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// Delete removes the file for key. Missing files are ignored.
func (s *KVFileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// path returns the file that holds key.
func (s *KVFileStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+valueExt)
}
