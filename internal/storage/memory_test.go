package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prasenjit/go-oasmock/internal/models"
)

func sampleEntry(opKey string, status int) *models.RecordingEntry {
	return &models.RecordingEntry{
		Request: models.RecordedRequest{
			Method:       "GET",
			OperationKey: opKey,
			URLPath:      "/books/1",
			Query:        map[string]any{},
			Headers:      map[string]string{},
		},
		Response: models.RecordedResponse{
			Status:    status,
			MediaType: "application/json",
			BodyType:  models.BodyTypeJSON,
			Body:      []byte(`{"a":1}`),
		},
		Meta: models.RecordingMeta{CreatedAt: time.Now(), Version: models.RecordingVersion},
	}
}

func TestNewMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	if s == nil {
		t.Fatal("NewMemoryStorage returned nil")
	}
	if s.recordings == nil {
		t.Fatal("Storage map not initialized")
	}
}

func TestMemoryWriteRead(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	entry := sampleEntry("GET /books/{id}", 200)
	if err := s.Write(ctx, "GET_books_{id}/200_application-json_abc.json", entry); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := s.Read(ctx, "/GET_books_{id}/200_application-json_abc.json")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Response.Status != 200 {
		t.Errorf("Expected status 200, got %d", got.Response.Status)
	}

	// Stored entries are copies
	entry.Response.Status = 500
	got, _ = s.Read(ctx, "GET_books_{id}/200_application-json_abc.json")
	if got.Response.Status != 200 {
		t.Errorf("Expected stored copy to be unaffected, got %d", got.Response.Status)
	}
}

func TestMemoryReadMissing(t *testing.T) {
	s := NewMemoryStorage()
	_, err := s.Read(context.Background(), "nope.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryInvalidPath(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	for _, p := range []string{"", "/", "..", "../x.json", "a/../../x.json"} {
		if err := s.Write(ctx, p, sampleEntry("k", 200)); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Write(%q): expected ErrInvalidPath, got %v", p, err)
		}
	}
}

func TestMemoryListAndDelete(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	_ = s.Write(ctx, "b/200.json", sampleEntry("GET /b", 200))
	_ = s.Write(ctx, "a/404.json", sampleEntry("GET /a", 404))

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 recordings, got %d", len(list))
	}
	if list[0].Path != "a/404.json" || list[0].Status != 404 {
		t.Errorf("Unexpected first summary: %+v", list[0])
	}

	if err := s.Delete(ctx, "a/404.json"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "a/404.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}

	list, _ = s.List(ctx)
	if len(list) != 1 {
		t.Errorf("Expected 1 recording after delete, got %d", len(list))
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := fmt.Sprintf("op/%d.json", i)
			_ = s.Write(ctx, p, sampleEntry("GET /op", 200))
			_, _ = s.Read(ctx, p)
			_, _ = s.List(ctx)
		}(i)
	}
	wg.Wait()

	list, _ := s.List(ctx)
	if len(list) != 50 {
		t.Errorf("Expected 50 recordings, got %d", len(list))
	}
}
