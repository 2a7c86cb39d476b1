package models

import (
	"encoding/json"
	"time"
)

// Body encodings of a recorded response
const (
	BodyTypeJSON   = "json"
	BodyTypeText   = "text"
	BodyTypeBase64 = "base64"
)

// RecordingVersion is the current recorded-exchange file format version
const RecordingVersion = 1

// RecordingEntry is one persisted exchange
type RecordingEntry struct {
	Request  RecordedRequest  `json:"request"`
	Response RecordedResponse `json:"response"`
	Meta     RecordingMeta    `json:"meta"`
}

// RecordedRequest is the redacted request fingerprint
type RecordedRequest struct {
	Method       string            `json:"method"`
	OperationKey string            `json:"operationKey"`
	URLPath      string            `json:"urlPath"`
	Query        map[string]any    `json:"query"`
	Headers      map[string]string `json:"headers"`
	BodyHash     *string           `json:"bodyHash,omitempty"`
}

// RecordedResponse is the captured response
type RecordedResponse struct {
	Status    int               `json:"status"`
	Headers   map[string]string `json:"headers"`
	MediaType string            `json:"mediaType"`
	BodyType  string            `json:"bodyType"`
	Body      json.RawMessage   `json:"body"`
}

// RecordingMeta carries bookkeeping data
type RecordingMeta struct {
	CreatedAt time.Time `json:"createdAt"`
	Version   int       `json:"version"`
}

// RecordingSummary is a lightweight version for listings
type RecordingSummary struct {
	Path         string    `json:"path"`
	OperationKey string    `json:"operationKey"`
	Method       string    `json:"method"`
	URLPath      string    `json:"urlPath"`
	Status       int       `json:"status"`
	MediaType    string    `json:"mediaType"`
	BodyType     string    `json:"bodyType"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary builds the listing view of an entry stored at path
func (e *RecordingEntry) Summary(path string) RecordingSummary {
	return RecordingSummary{
		Path:         path,
		OperationKey: e.Request.OperationKey,
		Method:       e.Request.Method,
		URLPath:      e.Request.URLPath,
		Status:       e.Response.Status,
		MediaType:    e.Response.MediaType,
		BodyType:     e.Response.BodyType,
		CreatedAt:    e.Meta.CreatedAt,
	}
}
