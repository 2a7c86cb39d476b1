package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prasenjit/go-oasmock/internal/models"
)

// FileStorage implements Storage interface with one JSON file per recording.
// Concurrent writers of the same path race; the last write wins.
type FileStorage struct {
	basePath string
}

// NewFileStorage creates a new file-based storage rooted at basePath
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", basePath, err)
	}

	return &FileStorage{basePath: basePath}, nil
}

// BasePath returns the root directory
func (f *FileStorage) BasePath() string {
	return f.basePath
}

func (f *FileStorage) filePath(p string) (string, error) {
	p, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.basePath, filepath.FromSlash(p)), nil
}

// Read loads the recording stored at path
func (f *FileStorage) Read(_ context.Context, p string) (*models.RecordingEntry, error) {
	full, err := f.filePath(p)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var entry models.RecordingEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", p, err)
	}
	return &entry, nil
}

// Write saves entry to path, creating parent directories as needed
func (f *FileStorage) Write(_ context.Context, p string, entry *models.RecordingEntry) error {
	full, err := f.filePath(p)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(full, data, 0644)
}

// List walks the directory tree and summarizes every readable recording
func (f *FileStorage) List(ctx context.Context) ([]models.RecordingSummary, error) {
	summaries := make([]models.RecordingSummary, 0)

	err := filepath.WalkDir(f.basePath, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(d.Name()) != ".json" {
			return nil
		}

		rel, err := filepath.Rel(f.basePath, full)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		entry, err := f.Read(ctx, rel)
		if err != nil {
			return nil
		}
		summaries = append(summaries, entry.Summary(rel))
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Path < summaries[j].Path
	})
	return summaries, nil
}

// Delete removes the recording file at path
func (f *FileStorage) Delete(_ context.Context, p string) error {
	full, err := f.filePath(p)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Close closes the storage
func (f *FileStorage) Close() error {
	return nil
}

// cleanPath normalizes a relative recording path and rejects escapes
func cleanPath(p string) (string, error) {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}
