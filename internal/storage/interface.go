package storage

import (
	"context"
	"errors"

	"github.com/prasenjit/go-oasmock/internal/models"
)

// ErrNotFound is returned when no recording exists at a path
var ErrNotFound = errors.New("recording not found")

// ErrInvalidPath is returned for paths that escape the store
var ErrInvalidPath = errors.New("invalid recording path")

// Storage persists recordings under slash-separated relative paths such as
// "GET_books_{id}/200_application-json_0123456789ab.json".
type Storage interface {
	Read(ctx context.Context, path string) (*models.RecordingEntry, error)
	Write(ctx context.Context, path string, entry *models.RecordingEntry) error
	List(ctx context.Context) ([]models.RecordingSummary, error)
	Delete(ctx context.Context, path string) error

	// Utility
	Close() error
}
