package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/prasenjit/go-oasmock/internal/models"
)

// Collector collects and aggregates statistics per operation and outcome
type Collector struct {
	mu              sync.RWMutex
	startTime       time.Time
	operations      map[string]*models.AtomicOperationStat // operation key -> stats
	recentFallbacks []models.FallbackStat
	hourlyStats     map[string]*hourlyCounter // "YYYY-MM-DD-HH" -> counter
	maxFallbacks    int
	maxHourlySlots  int
	now             func() time.Time
}

type hourlyCounter struct {
	Hour      string
	Requests  int64
	Mocked    int64
	Fallbacks int64
}

// NewCollector creates a new statistics collector
func NewCollector() *Collector {
	return &Collector{
		startTime:       time.Now(),
		operations:      make(map[string]*models.AtomicOperationStat),
		recentFallbacks: make([]models.FallbackStat, 0),
		hourlyStats:     make(map[string]*hourlyCounter),
		maxFallbacks:    100,
		maxHourlySlots:  168, // 7 days
		now:             time.Now,
	}
}

// RecordRequest records one intercepted request. Requests outside the
// document are keyed by "METHOD path".
func (c *Collector) RecordRequest(operationKey, method, path string, outcome models.Outcome, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if operationKey == "" {
		operationKey = models.OperationKey(method, path)
	}

	opStats, ok := c.operations[operationKey]
	if !ok {
		opStats = &models.AtomicOperationStat{
			OperationKey: operationKey,
			Method:       method,
			Path:         path,
		}
		opStats.MinTimeNs.Store(duration.Nanoseconds())
		c.operations[operationKey] = opStats
	}

	opStats.TotalRequests.Add(1)
	opStats.TotalTimeNs.Add(duration.Nanoseconds())
	opStats.LastRequestTime.Store(c.now())
	opStats.AddOutcome(outcome)

	durationNs := duration.Nanoseconds()
	for {
		currentMin := opStats.MinTimeNs.Load()
		if durationNs >= currentMin || opStats.MinTimeNs.CompareAndSwap(currentMin, durationNs) {
			break
		}
	}
	for {
		currentMax := opStats.MaxTimeNs.Load()
		if durationNs <= currentMax || opStats.MaxTimeNs.CompareAndSwap(currentMax, durationNs) {
			break
		}
	}

	hourKey := c.now().Format("2006-01-02-15")
	hourly, ok := c.hourlyStats[hourKey]
	if !ok {
		hourly = &hourlyCounter{Hour: hourKey}
		c.hourlyStats[hourKey] = hourly
		c.cleanupOldHourlyStats()
	}
	hourly.Requests++
	switch outcome {
	case models.OutcomeMocked, models.OutcomeReplayed:
		hourly.Mocked++
	case models.OutcomeFallback:
		hourly.Fallbacks++
	}
}

// RecordFallback remembers a generation failure that was served by the real handler
func (c *Collector) RecordFallback(operationKey, method, path, err string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recentFallbacks = append(c.recentFallbacks, models.FallbackStat{
		Timestamp:    c.now(),
		OperationKey: operationKey,
		Path:         path,
		Method:       method,
		Error:        err,
	})
	if len(c.recentFallbacks) > c.maxFallbacks {
		c.recentFallbacks = c.recentFallbacks[1:]
	}
}

// cleanupOldHourlyStats removes hourly stats older than maxHourlySlots
func (c *Collector) cleanupOldHourlyStats() {
	if len(c.hourlyStats) <= c.maxHourlySlots {
		return
	}

	keys := make([]string, 0, len(c.hourlyStats))
	for k := range c.hourlyStats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	toRemove := len(keys) - c.maxHourlySlots
	for i := 0; i < toRemove; i++ {
		delete(c.hourlyStats, keys[i])
	}
}

// GetGlobalStats returns global statistics. totalOperations is the number of
// operations declared in the document.
func (c *Collector) GetGlobalStats(totalOperations int) *models.GlobalStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var totalRequests, totalTimeNs int64
	byOutcome := make(map[models.Outcome]int64)

	opStats := make([]models.OperationStat, 0, len(c.operations))
	for _, op := range c.operations {
		stat := op.ToOperationStat()
		opStats = append(opStats, stat)
		totalRequests += stat.TotalRequests
		totalTimeNs += op.TotalTimeNs.Load()
		for o, n := range stat.ByOutcome {
			byOutcome[o] += n
		}
	}

	// busiest first, ties by key for a stable listing
	sort.Slice(opStats, func(i, j int) bool {
		if opStats[i].TotalRequests != opStats[j].TotalRequests {
			return opStats[i].TotalRequests > opStats[j].TotalRequests
		}
		return opStats[i].OperationKey < opStats[j].OperationKey
	})

	topOps := opStats
	if len(topOps) > 10 {
		topOps = topOps[:10]
	}

	var avgResponseTimeMs float64
	if totalRequests > 0 {
		avgResponseTimeMs = float64(totalTimeNs) / float64(totalRequests) / 1e6
	}

	uptime := c.now().Sub(c.startTime).Seconds()
	var requestsPerSecond float64
	if uptime > 0 {
		requestsPerSecond = float64(totalRequests) / uptime
	}

	fallbacks := make([]models.FallbackStat, len(c.recentFallbacks))
	copy(fallbacks, c.recentFallbacks)

	return &models.GlobalStats{
		TotalRequests:     totalRequests,
		ByOutcome:         byOutcome,
		TotalOperations:   totalOperations,
		AvgResponseTimeMs: avgResponseTimeMs,
		RequestsPerSecond: requestsPerSecond,
		StartTime:         c.startTime,
		Uptime:            formatDuration(c.now().Sub(c.startTime)),
		TopOperations:     topOps,
		RecentFallbacks:   fallbacks,
		RequestsByHour:    c.buildHourlyStats(),
	}
}

// GetOperationStats returns statistics for one operation key
func (c *Collector) GetOperationStats(operationKey string) *models.OperationStat {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if op, ok := c.operations[operationKey]; ok {
		stat := op.ToOperationStat()
		return &stat
	}

	return nil
}

// buildHourlyStats builds the last 24 hourly buckets, oldest first
func (c *Collector) buildHourlyStats() []models.HourlyStat {
	now := c.now()
	stats := make([]models.HourlyStat, 0, 24)

	for i := 23; i >= 0; i-- {
		hour := now.Add(-time.Duration(i) * time.Hour)
		hourKey := hour.Format("2006-01-02-15")

		stat := models.HourlyStat{
			Hour: hour.Format("15:00"),
		}

		if hourly, ok := c.hourlyStats[hourKey]; ok {
			stat.Requests = hourly.Requests
			stat.Mocked = hourly.Mocked
			stat.Fallbacks = hourly.Fallbacks
		}

		stats = append(stats, stat)
	}

	return stats
}

// Reset resets all statistics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = c.now()
	c.operations = make(map[string]*models.AtomicOperationStat)
	c.recentFallbacks = make([]models.FallbackStat, 0)
	c.hourlyStats = make(map[string]*hourlyCounter)
}

// formatDuration formats a duration in a human-readable format
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return d.Round(time.Minute).String()
	case d >= time.Minute:
		return d.Round(time.Second).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
