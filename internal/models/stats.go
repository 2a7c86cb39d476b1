package models

import (
	"sync/atomic"
	"time"
)

// Outcomes lists every outcome in reporting order
var Outcomes = []Outcome{
	OutcomeMocked,
	OutcomeReplayed,
	OutcomeNotImplemented,
	OutcomeCaptured,
	OutcomePassthrough,
	OutcomeFallback,
	OutcomeRejected,
}

// GlobalStats represents global statistics
type GlobalStats struct {
	TotalRequests     int64             `json:"totalRequests"`
	ByOutcome         map[Outcome]int64 `json:"byOutcome"`
	TotalOperations   int               `json:"totalOperations"`
	AvgResponseTimeMs float64           `json:"avgResponseTimeMs"`
	RequestsPerSecond float64           `json:"requestsPerSecond"`
	StartTime         time.Time         `json:"startTime"`
	Uptime            string            `json:"uptime"`
	TopOperations     []OperationStat   `json:"topOperations"`
	RecentFallbacks   []FallbackStat    `json:"recentFallbacks"`
	RequestsByHour    []HourlyStat      `json:"requestsByHour"`
}

// OperationStat represents statistics for a specific operation
type OperationStat struct {
	OperationKey      string            `json:"operationKey"`
	Method            string            `json:"method"`
	Path              string            `json:"path"`
	TotalRequests     int64             `json:"totalRequests"`
	ByOutcome         map[Outcome]int64 `json:"byOutcome"`
	AvgResponseTimeMs float64           `json:"avgResponseTimeMs"`
	MinResponseTimeMs float64           `json:"minResponseTimeMs"`
	MaxResponseTimeMs float64           `json:"maxResponseTimeMs"`
	LastRequestTime   string            `json:"lastRequestTime,omitempty"`
}

// FallbackStat records a generation failure that fell back to the real handler
type FallbackStat struct {
	Timestamp    time.Time `json:"timestamp"`
	OperationKey string    `json:"operationKey"`
	Path         string    `json:"path"`
	Method       string    `json:"method"`
	Error        string    `json:"error"`
}

// HourlyStat represents hourly request statistics
type HourlyStat struct {
	Hour      string `json:"hour"`
	Requests  int64  `json:"requests"`
	Mocked    int64  `json:"mocked"`
	Fallbacks int64  `json:"fallbacks"`
}

// AtomicOperationStat is a thread-safe version of operation statistics
type AtomicOperationStat struct {
	OperationKey    string
	Method          string
	Path            string
	TotalRequests   atomic.Int64
	TotalTimeNs     atomic.Int64
	MinTimeNs       atomic.Int64
	MaxTimeNs       atomic.Int64
	LastRequestTime atomic.Value // stores time.Time
	outcomes        [6]atomic.Int64
}

// AddOutcome increments the counter for o
func (a *AtomicOperationStat) AddOutcome(o Outcome) {
	for i, known := range Outcomes {
		if known == o {
			a.outcomes[i].Add(1)
			return
		}
	}
}

// OutcomeCount returns the counter for o
func (a *AtomicOperationStat) OutcomeCount(o Outcome) int64 {
	for i, known := range Outcomes {
		if known == o {
			return a.outcomes[i].Load()
		}
	}
	return 0
}

// ToOperationStat converts to a regular OperationStat
func (a *AtomicOperationStat) ToOperationStat() OperationStat {
	totalReqs := a.TotalRequests.Load()
	totalTimeNs := a.TotalTimeNs.Load()
	var avgMs float64
	if totalReqs > 0 {
		avgMs = float64(totalTimeNs) / float64(totalReqs) / 1e6
	}

	var lastReqTime string
	if t, ok := a.LastRequestTime.Load().(time.Time); ok && !t.IsZero() {
		lastReqTime = t.Format(time.RFC3339)
	}

	byOutcome := make(map[Outcome]int64)
	for _, o := range Outcomes {
		if n := a.OutcomeCount(o); n > 0 {
			byOutcome[o] = n
		}
	}

	return OperationStat{
		OperationKey:      a.OperationKey,
		Method:            a.Method,
		Path:              a.Path,
		TotalRequests:     totalReqs,
		ByOutcome:         byOutcome,
		AvgResponseTimeMs: avgMs,
		MinResponseTimeMs: float64(a.MinTimeNs.Load()) / 1e6,
		MaxResponseTimeMs: float64(a.MaxTimeNs.Load()) / 1e6,
		LastRequestTime:   lastReqTime,
	}
}
