package models

import (
	"net/http"
	"net/url"
	"time"

	"github.com/prasenjit/go-oasmock/internal/schema"
)

// Request header hints
const (
	HeaderMockEnable        = "X-Mock-Enable"
	HeaderMockStatus        = "X-Mock-Status"
	HeaderMockMedia         = "X-Mock-Media"
	HeaderMockStrategyOrder = "X-Mock-Strategy-Order"
)

// Request is the framework-independent view of an inbound request
type Request struct {
	Method    string      `json:"method"`
	Path      string      `json:"path"`
	RoutePath string      `json:"routePath,omitempty"` // route template known to the router, if any
	Query     url.Values  `json:"query,omitempty"`
	Header    http.Header `json:"header,omitempty"`
	Body      []byte      `json:"-"`
	// PathParams are filled once the operation is resolved
	PathParams map[string]string `json:"pathParams,omitempty"`
}

// DelayFunc computes a delay for a request
type DelayFunc func(*Request) time.Duration

// FixedDelay returns a DelayFunc that always yields d
func FixedDelay(d time.Duration) DelayFunc {
	return func(*Request) time.Duration { return d }
}

// RecordingOptions overrides recording behaviour for one operation
type RecordingOptions struct {
	Capture *bool `json:"capture,omitempty"`
}

// OperationOptions is the per-operation override surface
type OperationOptions struct {
	Enable        *bool             `json:"enable,omitempty"`
	StrategyOrder []Strategy        `json:"strategyOrder,omitempty"`
	Delay         DelayFunc         `json:"-"`
	Status        int               `json:"status,omitempty"`
	MediaType     string            `json:"mediaType,omitempty"`
	Recording     *RecordingOptions `json:"recording,omitempty"`
}

// Plan is the resolved per-request decision of how to mock
type Plan struct {
	Enable        bool       `json:"enable"`
	Status        int        `json:"status"`
	MediaType     string     `json:"mediaType,omitempty"`
	StrategyOrder []Strategy `json:"strategyOrder"`
	Delay         DelayFunc  `json:"-"`
	OperationKey  string     `json:"operationKey"`
}

// ResolvedOperation is one declared operation matched against a request
type ResolvedOperation struct {
	OperationID    string            `json:"operationId,omitempty"`
	OpenAPIVersion string            `json:"openapiVersion"`
	Method         string            `json:"method"`
	PathTemplate   string            `json:"pathTemplate"`
	Responses      *schema.Node      `json:"responses,omitempty"`
	RequestBody    *schema.Node      `json:"requestBody,omitempty"`
	// Parameters merges path item and operation parameters; entries may be $refs
	Parameters []*schema.Node    `json:"parameters,omitempty"`
	PathParams map[string]string `json:"pathParams,omitempty"`
}

// Key returns the operation key, e.g. "GET /books/{id}"
func (o *ResolvedOperation) Key() string {
	return OperationKey(o.Method, o.PathTemplate)
}

// Outcome of one intercepted request
type Outcome string

const (
	OutcomeMocked         Outcome = "mocked"
	OutcomeReplayed       Outcome = "replayed"
	OutcomeNotImplemented Outcome = "not-implemented"
	OutcomeCaptured       Outcome = "captured"
	OutcomePassthrough    Outcome = "passthrough"
	OutcomeFallback       Outcome = "fallback"
	OutcomeRejected       Outcome = "rejected"
)
