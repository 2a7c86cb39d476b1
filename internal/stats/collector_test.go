package stats

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasenjit/go-oasmock/internal/models"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c.operations == nil {
		t.Error("operations map not initialized")
	}
	if c.maxFallbacks != 100 {
		t.Errorf("expected maxFallbacks 100, got %d", c.maxFallbacks)
	}
	if c.maxHourlySlots != 168 {
		t.Errorf("expected maxHourlySlots 168, got %d", c.maxHourlySlots)
	}
}

func TestRecordRequest(t *testing.T) {
	c := NewCollector()

	c.RecordRequest("GET /books/{id}", "GET", "/books/{id}", models.OutcomeMocked, 100*time.Millisecond)
	c.RecordRequest("GET /books/{id}", "GET", "/books/{id}", models.OutcomeReplayed, 50*time.Millisecond)
	c.RecordRequest("GET /books/{id}", "GET", "/books/{id}", models.OutcomeMocked, 150*time.Millisecond)

	stat := c.GetOperationStats("GET /books/{id}")
	require.NotNil(t, stat)

	assert.Equal(t, int64(3), stat.TotalRequests)
	assert.Equal(t, int64(2), stat.ByOutcome[models.OutcomeMocked])
	assert.Equal(t, int64(1), stat.ByOutcome[models.OutcomeReplayed])
	assert.InDelta(t, 50.0, stat.MinResponseTimeMs, 0.001)
	assert.InDelta(t, 150.0, stat.MaxResponseTimeMs, 0.001)
	assert.InDelta(t, 100.0, stat.AvgResponseTimeMs, 0.001)
	assert.NotEmpty(t, stat.LastRequestTime)
}

func TestRecordRequest_UndeclaredRoute(t *testing.T) {
	c := NewCollector()

	c.RecordRequest("", "GET", "/health", models.OutcomePassthrough, time.Millisecond)

	stat := c.GetOperationStats("GET /health")
	require.NotNil(t, stat)
	assert.Equal(t, int64(1), stat.ByOutcome[models.OutcomePassthrough])
}

func TestGetOperationStats_Missing(t *testing.T) {
	c := NewCollector()
	if c.GetOperationStats("GET /nope") != nil {
		t.Error("expected nil for unknown operation")
	}
}

func TestGetGlobalStats(t *testing.T) {
	c := NewCollector()

	c.RecordRequest("GET /a", "GET", "/a", models.OutcomeMocked, 10*time.Millisecond)
	c.RecordRequest("GET /a", "GET", "/a", models.OutcomeMocked, 30*time.Millisecond)
	c.RecordRequest("GET /b", "GET", "/b", models.OutcomeCaptured, 20*time.Millisecond)
	c.RecordRequest("GET /b", "GET", "/b", models.OutcomeFallback, 20*time.Millisecond)
	c.RecordRequest("POST /c", "POST", "/c", models.OutcomeNotImplemented, 20*time.Millisecond)
	c.RecordFallback("GET /b", "GET", "/b", "boom")

	stats := c.GetGlobalStats(7)

	assert.Equal(t, int64(5), stats.TotalRequests)
	assert.Equal(t, 7, stats.TotalOperations)
	assert.Equal(t, int64(2), stats.ByOutcome[models.OutcomeMocked])
	assert.Equal(t, int64(1), stats.ByOutcome[models.OutcomeCaptured])
	assert.Equal(t, int64(1), stats.ByOutcome[models.OutcomeFallback])
	assert.Equal(t, int64(1), stats.ByOutcome[models.OutcomeNotImplemented])
	assert.InDelta(t, 20.0, stats.AvgResponseTimeMs, 0.001)

	require.Len(t, stats.TopOperations, 3)
	assert.Equal(t, "GET /a", stats.TopOperations[0].OperationKey)
	assert.Equal(t, "GET /b", stats.TopOperations[1].OperationKey)

	require.Len(t, stats.RecentFallbacks, 1)
	assert.Equal(t, "boom", stats.RecentFallbacks[0].Error)

	require.Len(t, stats.RequestsByHour, 24)
	current := stats.RequestsByHour[23]
	assert.Equal(t, int64(5), current.Requests)
	assert.Equal(t, int64(2), current.Mocked)
	assert.Equal(t, int64(1), current.Fallbacks)
}

func TestGetGlobalStats_TopOperationsCapped(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 15; i++ {
		key := fmt.Sprintf("GET /op%02d", i)
		for j := 0; j <= i; j++ {
			c.RecordRequest(key, "GET", key[4:], models.OutcomeMocked, time.Millisecond)
		}
	}

	stats := c.GetGlobalStats(15)
	require.Len(t, stats.TopOperations, 10)
	assert.Equal(t, "GET /op14", stats.TopOperations[0].OperationKey)
}

func TestRecordFallback_Ring(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 150; i++ {
		c.RecordFallback("GET /a", "GET", "/a", fmt.Sprintf("err-%d", i))
	}

	fallbacks := c.GetGlobalStats(1).RecentFallbacks
	if len(fallbacks) != 100 {
		t.Fatalf("expected 100 fallbacks (max), got %d", len(fallbacks))
	}
	if fallbacks[0].Error != "err-50" {
		t.Errorf("expected oldest kept fallback err-50, got %s", fallbacks[0].Error)
	}
}

func TestHourlyBuckets(t *testing.T) {
	c := NewCollector()
	clock := time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.RecordRequest("GET /a", "GET", "/a", models.OutcomeMocked, time.Millisecond)
	clock = clock.Add(2 * time.Hour)
	c.RecordRequest("GET /a", "GET", "/a", models.OutcomeFallback, time.Millisecond)

	hours := c.GetGlobalStats(1).RequestsByHour
	require.Len(t, hours, 24)
	assert.Equal(t, "12:00", hours[23].Hour)
	assert.Equal(t, int64(1), hours[23].Fallbacks)
	assert.Equal(t, "10:00", hours[21].Hour)
	assert.Equal(t, int64(1), hours[21].Mocked)
	assert.Equal(t, int64(0), hours[22].Requests)
}

func TestHourlyStatsCleanup(t *testing.T) {
	c := NewCollector()
	c.maxHourlySlots = 3

	c.mu.Lock()
	for h := 0; h < 5; h++ {
		key := fmt.Sprintf("2024-01-01-%02d", h)
		c.hourlyStats[key] = &hourlyCounter{Hour: key, Requests: 1}
	}
	c.mu.Unlock()

	c.RecordRequest("GET /a", "GET", "/a", models.OutcomeMocked, time.Millisecond)

	c.mu.RLock()
	count := len(c.hourlyStats)
	c.mu.RUnlock()

	if count != c.maxHourlySlots {
		t.Errorf("expected %d hourly slots, got %d", c.maxHourlySlots, count)
	}
}

func TestReset(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("GET /a", "GET", "/a", models.OutcomeMocked, time.Millisecond)
	c.RecordFallback("GET /a", "GET", "/a", "boom")

	c.Reset()

	stats := c.GetGlobalStats(1)
	assert.Zero(t, stats.TotalRequests)
	assert.Empty(t, stats.RecentFallbacks)
	assert.Empty(t, stats.TopOperations)
}

func TestConcurrentStatsAccess(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.RecordRequest("GET /a", "GET", "/a", models.OutcomeMocked, time.Duration(i)*time.Millisecond)
				if i%10 == 0 {
					c.RecordFallback("GET /a", "GET", "/a", "boom")
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = c.GetGlobalStats(1)
			_ = c.GetOperationStats("GET /a")
		}
	}()
	wg.Wait()

	if got := c.GetGlobalStats(1).TotalRequests; got != 400 {
		t.Errorf("expected 400 requests, got %d", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1500 * time.Microsecond, "2ms"},
		{30 * time.Second, "30s"},
		{5*time.Minute + 400*time.Millisecond, "5m0s"},
		{2*time.Hour + 20*time.Second, "2h0m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatDuration(tt.duration); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
