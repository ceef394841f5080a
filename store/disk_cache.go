package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

type (
	// DiskCache keeps one file per key under rootPath.
	DiskCache struct {
		rootPath string
	}
)

func NewDiskCache(rootPath string) (*DiskCache, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("error in os.MkdirAll: %w", err)
	}
	dc := &DiskCache{
		rootPath: rootPath,
	}

	return dc, nil
}

func (dc *DiskCache) path(key string) string {
	return filepath.Join(dc.rootPath, unsafeKeyChars.ReplaceAllString(key, "_")+".json")
}

func (dc *DiskCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := os.ReadFile(dc.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error in os.ReadFile: %w", err)
	}
	return b, true, nil
}

// Set writes through a temp file so a crash never leaves a torn value.
func (dc *DiskCache) Set(_ context.Context, key string, value []byte) error {
	f, err := os.CreateTemp(dc.rootPath, ".tmp-*")
	if err != nil {
		return fmt.Errorf("error in os.CreateTemp: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(value); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("error writing cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error closing cache file: %w", err)
	}
	if err := os.Rename(tmp, dc.path(key)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error in os.Rename: %w", err)
	}
	return nil
}

func (dc *DiskCache) Delete(_ context.Context, key string) error {
	err := os.Remove(dc.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error in os.Remove: %w", err)
	}
	return nil
}

func (dc *DiskCache) Shutdown(_ context.Context) error {
	return nil
}
