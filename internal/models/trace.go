package models

import (
	"time"
)

// Trace represents a captured request/response exchange
type Trace struct {
	ID            string        `json:"id"`
	OperationKey  string        `json:"operationKey,omitempty"`
	OperationID   string        `json:"operationId,omitempty"`
	OperationPath string        `json:"operationPath,omitempty"`
	Outcome       Outcome       `json:"outcome"`
	Source        string        `json:"source,omitempty"` // strategy that produced a mocked body
	Timestamp     time.Time     `json:"timestamp"`
	Duration      int64         `json:"duration"` // Duration in nanoseconds
	Request       TraceRequest  `json:"request"`
	Response      TraceResponse `json:"response"`
	Error         string        `json:"error,omitempty"`
}

// TraceRequest represents the captured request
type TraceRequest struct {
	Method  string              `json:"method"`
	URL     string              `json:"url"`
	Path    string              `json:"path"`
	Query   map[string][]string `json:"query"`
	Headers map[string][]string `json:"headers"`
	Body    string              `json:"body"`
}

// TraceResponse represents the captured response
type TraceResponse struct {
	StatusCode int                 `json:"statusCode"`
	Headers    map[string][]string `json:"headers"`
	Body       string              `json:"body"`
}

// TraceFilter represents filters for querying traces
type TraceFilter struct {
	OperationKey string    `json:"operationKey,omitempty"`
	Outcome      Outcome   `json:"outcome,omitempty"`
	Method       string    `json:"method,omitempty"`
	Path         string    `json:"path,omitempty"`
	StatusCode   int       `json:"statusCode,omitempty"`
	StartTime    time.Time `json:"startTime,omitempty"`
	EndTime      time.Time `json:"endTime,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	Offset       int       `json:"offset,omitempty"`
}
