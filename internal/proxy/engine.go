// Package proxy intercepts requests in front of the real handlers: it either
// answers with a mocked or replayed response, or lets the request through and
// optionally records what the real handler returned.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prasenjit/go-oasmock/internal/logging"
	"github.com/prasenjit/go-oasmock/internal/mock"
	"github.com/prasenjit/go-oasmock/internal/models"
	"github.com/prasenjit/go-oasmock/internal/stats"
	"github.com/prasenjit/go-oasmock/internal/storage"
	"github.com/prasenjit/go-oasmock/internal/tracing"
	"github.com/prasenjit/go-oasmock/internal/validation"
)

// maxTraceBody bounds the request and response bodies copied into traces
const maxTraceBody = 64 << 10

// outcomeKey is the gin context key holding the request outcome
const outcomeKey = "oasmock.outcome"

// Engine is the interception shell
type Engine struct {
	mock           *mock.Service
	statsCollector *stats.Collector
	tracingService *tracing.Service
	logger         *slog.Logger
	skipPrefixes   []string

	mu        sync.RWMutex
	overrides map[string]models.OperationOptions // operation key -> override
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

// WithSkipPrefixes leaves requests under these path prefixes alone
func WithSkipPrefixes(prefixes ...string) Option {
	return func(e *Engine) { e.skipPrefixes = append(e.skipPrefixes, prefixes...) }
}

// NewEngine creates the interception engine. A nil tracing service disables
// tracing; a nil collector gets a private one.
func NewEngine(svc *mock.Service, statsCollector *stats.Collector, tracingService *tracing.Service, opts ...Option) *Engine {
	if statsCollector == nil {
		statsCollector = stats.NewCollector()
	}
	e := &Engine{
		mock:           svc,
		statsCollector: statsCollector,
		tracingService: tracingService,
		logger:         logging.Nop(),
		overrides:      make(map[string]models.OperationOptions),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Override attaches per-operation options. path may use OpenAPI ("{id}") or
// gin (":id") parameter syntax.
func (e *Engine) Override(method, path string, opts models.OperationOptions) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides[models.OperationKey(method, TemplatePath(path))] = opts
}

// Overrides returns a copy of the registered overrides
func (e *Engine) Overrides() map[string]models.OperationOptions {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]models.OperationOptions, len(e.overrides))
	for k, v := range e.overrides {
		out[k] = v
	}
	return out
}

// lookupOverride tries the route the framework matched, then the resolved operation
func (e *Engine) lookupOverride(method, fullPath string, op *models.ResolvedOperation) *models.OperationOptions {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if fullPath != "" {
		if o, ok := e.overrides[models.OperationKey(method, TemplatePath(fullPath))]; ok {
			return &o
		}
	}
	if op != nil {
		if o, ok := e.overrides[op.Key()]; ok {
			return &o
		}
	}
	return nil
}

// TemplatePath converts gin parameters (":id", "*rest") to OpenAPI form
func TemplatePath(p string) string {
	if !strings.ContainsAny(p, ":*") {
		return p
	}
	segments := strings.Split(p, "/")
	for i, s := range segments {
		if len(s) > 1 && (s[0] == ':' || s[0] == '*') {
			segments[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(segments, "/")
}

// Middleware returns the gin handler implementing the interception state machine
func (e *Engine) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, prefix := range e.skipPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}
		e.intercept(c)
	}
}

func (e *Engine) intercept(c *gin.Context) {
	start := time.Now()
	req := newRequest(c)
	x := &exchange{engine: e, c: c, req: req, start: start}

	op := e.mock.Resolve(req)
	override := e.lookupOverride(req.Method, c.FullPath(), op)
	x.op = op

	if issues := e.mock.ValidateRequest(req, op); len(issues) > 0 {
		x.reject(issues)
		return
	}

	result, plan, err := e.generate(c.Request.Context(), req, op, override)
	if err != nil {
		e.logger.Warn("mock generation failed", "method", req.Method, "path", req.Path, "error", err)
		e.statsCollector.RecordFallback(x.operationKey(), req.Method, req.Path, err.Error())
		x.passThrough(false, models.OutcomeFallback, err.Error())
		return
	}

	if result == nil {
		capture := e.mock.ShouldCapture(override)
		outcome := models.OutcomePassthrough
		if capture {
			outcome = models.OutcomeCaptured
		}
		x.passThrough(capture, outcome, "")
		return
	}

	body, delay, err := prepare(result, plan, req)
	if err != nil {
		e.logger.Warn("mock response failed", "method", req.Method, "path", req.Path, "error", err)
		e.statsCollector.RecordFallback(x.operationKey(), req.Method, req.Path, err.Error())
		x.passThrough(false, models.OutcomeFallback, err.Error())
		return
	}

	if delay > 0 && !sleep(c.Request.Context(), delay) {
		e.logger.Debug("request cancelled during mock delay", "method", req.Method, "path", req.Path)
		c.Abort()
		return
	}

	writeResult(c, result, body)
	c.Abort()

	outcome := models.OutcomeMocked
	switch result.Source {
	case mock.SourceRecords:
		outcome = models.OutcomeReplayed
	case mock.SourceNoExample:
		outcome = models.OutcomeNotImplemented
	}
	x.source = string(result.Source)
	x.finish(outcome, result.Status, c.Writer.Header(), body, "")
}

// generate plans and runs generation. Panics anywhere on this path surface
// as an error so the request can still reach the real handler.
func (e *Engine) generate(ctx context.Context, req *models.Request, op *models.ResolvedOperation, override *models.OperationOptions) (result *mock.Result, plan *models.Plan, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, plan, err = nil, nil, fmt.Errorf("mock planning panicked: %v", r)
		}
	}()

	plan = e.mock.TryPlan(req, op, override)
	if plan == nil {
		return nil, nil, nil
	}
	result, err = e.mock.Generate(ctx, req, op, plan)
	return result, plan, err
}

// prepare encodes the body and evaluates the delay callback, turning panics
// into errors
func prepare(result *mock.Result, plan *models.Plan, req *models.Request) (body []byte, delay time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			body, delay, err = nil, 0, fmt.Errorf("mock response panicked: %v", r)
		}
	}()

	if body, err = result.Encode(); err != nil {
		return nil, 0, fmt.Errorf("encode mock body: %w", err)
	}
	if plan.Delay != nil {
		delay = plan.Delay(req)
	}
	return body, delay, nil
}

// exchange carries one intercepted request through to stats and traces
type exchange struct {
	engine *Engine
	c      *gin.Context
	req    *models.Request
	op     *models.ResolvedOperation
	start  time.Time
	source string
}

func (x *exchange) operationKey() string {
	if x.op != nil {
		return x.op.Key()
	}
	route := x.req.RoutePath
	if route == "" {
		route = x.req.Path
	}
	if route == "" {
		route = "/"
	}
	return models.OperationKey(x.req.Method, route)
}

// passThrough runs the real handler, recording its response when capture is set
func (x *exchange) passThrough(capture bool, outcome models.Outcome, errMsg string) {
	c := x.c
	w := newCaptureWriter(c.Writer, capture || x.engine.tracingService != nil)
	c.Writer = w
	defer func() { c.Writer = w.ResponseWriter }()

	c.Next()

	status := w.Status()
	if capture {
		x.engine.mock.Recorder().Save(c.Request.Context(), x.req, storage.Capture{
			OperationKey: x.operationKey(),
			Status:       status,
			MediaType:    storage.BaseMediaType(w.Header().Get("Content-Type")),
			Headers:      w.Header().Clone(),
			Body:         w.Bytes(),
		})
	}
	x.finish(outcome, status, w.Header(), w.Bytes(), errMsg)
}

// reject answers 400 with the validation issues without running the real handler
func (x *exchange) reject(issues []validation.Issue) {
	x.engine.logger.Debug("request failed validation",
		"operation", x.operationKey(), "issues", len(issues), "first", issues[0].String())

	body, _ := json.Marshal(gin.H{"message": "Validation failed", "errors": issues})
	x.c.Data(http.StatusBadRequest, "application/json", body)
	x.c.Abort()
	x.finish(models.OutcomeRejected, http.StatusBadRequest, x.c.Writer.Header(), body, "")
}

func (x *exchange) finish(outcome models.Outcome, status int, header http.Header, body []byte, errMsg string) {
	duration := time.Since(x.start)
	c := x.c
	c.Set(outcomeKey, outcome)

	opPath := x.req.Path
	if x.op != nil {
		opPath = x.op.PathTemplate
	}
	x.engine.statsCollector.RecordRequest(x.operationKey(), x.req.Method, opPath, outcome, duration)

	if x.engine.tracingService == nil {
		return
	}
	tr := &models.Trace{
		OperationKey: x.operationKey(),
		Outcome:      outcome,
		Source:       x.source,
		Timestamp:    x.start,
		Duration:     duration.Nanoseconds(),
		Request: models.TraceRequest{
			Method:  x.req.Method,
			URL:     c.Request.URL.String(),
			Path:    x.req.Path,
			Query:   x.req.Query,
			Headers: x.req.Header,
			Body:    truncate(x.req.Body),
		},
		Response: models.TraceResponse{
			StatusCode: status,
			Headers:    header.Clone(),
			Body:       truncate(body),
		},
		Error: errMsg,
	}
	if x.op != nil {
		tr.OperationID = x.op.OperationID
		tr.OperationPath = x.op.PathTemplate
	}
	x.engine.tracingService.RecordTrace(tr)
}

// Outcome returns the outcome recorded for a request, for access logging
func Outcome(c *gin.Context) (models.Outcome, bool) {
	v, ok := c.Get(outcomeKey)
	if !ok {
		return "", false
	}
	o, ok := v.(models.Outcome)
	return o, ok
}

func newRequest(c *gin.Context) *models.Request {
	r := c.Request
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}
	return &models.Request{
		Method:    r.Method,
		Path:      r.URL.Path,
		RoutePath: c.FullPath(),
		Query:     r.URL.Query(),
		Header:    r.Header,
		Body:      body,
	}
}

// sleep waits for d and reports false when ctx ends first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func writeResult(c *gin.Context, r *mock.Result, body []byte) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, "content-type") {
			continue
		}
		c.Header(k, v)
	}
	if !bodyAllowed(r.Status) {
		c.Status(r.Status)
		c.Writer.WriteHeaderNow()
		return
	}
	contentType := r.MediaType
	if ct, ok := r.Headers["content-type"]; ok && ct != "" {
		contentType = ct
	}
	c.Data(r.Status, contentType, body)
}

func bodyAllowed(status int) bool {
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}

func truncate(b []byte) string {
	if len(b) > maxTraceBody {
		return string(b[:maxTraceBody])
	}
	return string(b)
}
