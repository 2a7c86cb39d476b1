package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/prasenjit/go-oasmock/internal/models"
)

// MemoryStorage implements Storage interface with in-memory storage
type MemoryStorage struct {
	mu         sync.RWMutex
	recordings map[string]*models.RecordingEntry
}

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		recordings: make(map[string]*models.RecordingEntry),
	}
}

// Read retrieves the recording stored at path
func (m *MemoryStorage) Read(_ context.Context, path string) (*models.RecordingEntry, error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.recordings[path]
	if !exists {
		return nil, ErrNotFound
	}

	copied := *entry
	return &copied, nil
}

// Write stores entry at path, replacing any previous recording
func (m *MemoryStorage) Write(_ context.Context, path string, entry *models.RecordingEntry) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *entry
	m.recordings[path] = &copied
	return nil
}

// List returns summaries of all recordings sorted by path
func (m *MemoryStorage) List(_ context.Context) ([]models.RecordingSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]models.RecordingSummary, 0, len(m.recordings))
	for path, entry := range m.recordings {
		summaries = append(summaries, entry.Summary(path))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Path < summaries[j].Path
	})

	return summaries, nil
}

// Delete removes the recording at path
func (m *MemoryStorage) Delete(_ context.Context, path string) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.recordings[path]; !exists {
		return ErrNotFound
	}

	delete(m.recordings, path)
	return nil
}

// Close closes the storage (no-op for memory storage)
func (m *MemoryStorage) Close() error {
	return nil
}
