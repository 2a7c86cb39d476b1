package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prasenjit/go-oasmock/internal/mock"
	"github.com/prasenjit/go-oasmock/internal/models"
	"github.com/prasenjit/go-oasmock/internal/proxy"
	"github.com/prasenjit/go-oasmock/internal/stats"
	"github.com/prasenjit/go-oasmock/internal/storage"
	"github.com/prasenjit/go-oasmock/internal/tracing"
)

// Handler handles admin API requests
type Handler struct {
	mock           *mock.Service
	statsCollector *stats.Collector
	tracingService *tracing.Service
	proxyEngine    *proxy.Engine
	wsHandler      *tracing.WebSocketHandler
	settings       any
	startTime      time.Time
}

// NewHandler creates a new API handler. settings is served as-is by
// GET /config; tracingService may be nil when tracing is disabled.
func NewHandler(svc *mock.Service, statsCollector *stats.Collector, tracingService *tracing.Service, proxyEngine *proxy.Engine, settings any, logger *slog.Logger) *Handler {
	h := &Handler{
		mock:           svc,
		statsCollector: statsCollector,
		tracingService: tracingService,
		proxyEngine:    proxyEngine,
		settings:       settings,
		startTime:      time.Now(),
	}
	if tracingService != nil {
		h.wsHandler = tracing.NewWebSocketHandler(tracingService, logger)
	}
	return h
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *gin.Context) {
	doc := h.mock.Document()
	health := gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().Format(time.RFC3339),
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
		"spec":       doc.Title(),
		"openapi":    doc.Version(),
		"operations": len(h.mock.Resolver().Operations()),
		"mocking":    h.mock.Enabled(),
		"recording":  h.mock.Recorder().Enabled(),
	}
	if h.tracingService != nil {
		health["tracing"] = h.tracingService.GetStats()
	}
	c.JSON(http.StatusOK, health)
}

// operationView is an operation with its override, if any
type operationView struct {
	models.Operation
	Override *models.OperationOptions `json:"override,omitempty"`
}

// ListOperations returns every declared operation in declaration order
func (h *Handler) ListOperations(c *gin.Context) {
	overrides := h.proxyEngine.Overrides()
	tag := c.Query("tag")

	ops := h.mock.Resolver().Operations()
	result := make([]operationView, 0, len(ops))
	for _, op := range ops {
		if tag != "" && !containsString(op.Tags, tag) {
			continue
		}
		view := operationView{Operation: op}
		if o, ok := overrides[op.Key]; ok {
			view.Override = &o
		}
		result = append(result, view)
	}

	c.JSON(http.StatusOK, result)
}

// ListRecordings returns recorded exchanges, optionally for one operation
func (h *Handler) ListRecordings(c *gin.Context) {
	recorder := h.mock.Recorder()
	if !recorder.Enabled() {
		c.JSON(http.StatusOK, []models.RecordingSummary{})
		return
	}

	recs, err := recorder.Store().List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if key := c.Query("operationKey"); key != "" {
		filtered := recs[:0]
		for _, r := range recs {
			if r.OperationKey == key {
				filtered = append(filtered, r)
			}
		}
		recs = filtered
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Path < recs[j].Path })

	c.JSON(http.StatusOK, recs)
}

// GetRecording returns one recorded exchange
func (h *Handler) GetRecording(c *gin.Context) {
	store, ok := h.recordingStore(c)
	if !ok {
		return
	}

	entry, err := store.Read(c.Request.Context(), recordingPath(c))
	if err != nil {
		recordingError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// DeleteRecording removes one recorded exchange
func (h *Handler) DeleteRecording(c *gin.Context) {
	store, ok := h.recordingStore(c)
	if !ok {
		return
	}

	if err := store.Delete(c.Request.Context(), recordingPath(c)); err != nil {
		recordingError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) recordingStore(c *gin.Context) (storage.Storage, bool) {
	recorder := h.mock.Recorder()
	if !recorder.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recording is not configured"})
		return nil, false
	}
	return recorder.Store(), true
}

func recordingPath(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("path"), "/")
}

func recordingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Recording not found"})
	case errors.Is(err, storage.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetGlobalStats returns global statistics
func (h *Handler) GetGlobalStats(c *gin.Context) {
	stats := h.statsCollector.GetGlobalStats(len(h.mock.Resolver().Operations()))
	c.JSON(http.StatusOK, stats)
}

// GetOperationStats returns statistics for the operation named by ?key=
func (h *Handler) GetOperationStats(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key query parameter is required"})
		return
	}

	stats := h.statsCollector.GetOperationStats(key)
	if stats == nil {
		c.JSON(http.StatusOK, gin.H{"message": "No statistics available"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ResetStats resets all statistics
func (h *Handler) ResetStats(c *gin.Context) {
	h.statsCollector.Reset()
	c.JSON(http.StatusOK, gin.H{"message": "Statistics reset"})
}

// ListTraces returns traces, newest first
func (h *Handler) ListTraces(c *gin.Context) {
	if !h.tracingEnabled(c) {
		return
	}

	filter, err := traceFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	c.JSON(http.StatusOK, h.tracingService.GetTraces(filter))
}

// GetTrace returns a single trace
func (h *Handler) GetTrace(c *gin.Context) {
	if !h.tracingEnabled(c) {
		return
	}

	trace := h.tracingService.GetTrace(c.Param("id"))
	if trace == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trace not found"})
		return
	}

	c.JSON(http.StatusOK, trace)
}

// ClearTraces clears all traces, or those of ?operationKey=
func (h *Handler) ClearTraces(c *gin.Context) {
	if !h.tracingEnabled(c) {
		return
	}

	if key := c.Query("operationKey"); key != "" {
		h.tracingService.ClearTracesByOperation(key)
	} else {
		h.tracingService.ClearTraces()
	}
	c.JSON(http.StatusOK, gin.H{"message": "Traces cleared"})
}

// StreamTraces upgrades to a websocket carrying live traces
func (h *Handler) StreamTraces(c *gin.Context) {
	if !h.tracingEnabled(c) {
		return
	}

	filter, err := traceFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.wsHandler.Stream(c.Writer, c.Request, filter)
}

func (h *Handler) tracingEnabled(c *gin.Context) bool {
	if h.tracingService == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tracing is disabled"})
		return false
	}
	return true
}

// GetConfig returns the effective configuration
func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"settings":  h.settings,
		"overrides": h.proxyEngine.Overrides(),
	})
}

// traceFilter reads filter query parameters shared by the list and stream endpoints
func traceFilter(c *gin.Context) (*models.TraceFilter, error) {
	filter := &models.TraceFilter{
		OperationKey: c.Query("operationKey"),
		Outcome:      models.Outcome(c.Query("outcome")),
		Method:       strings.ToUpper(c.Query("method")),
		Path:         c.Query("path"),
	}

	ints := map[string]*int{
		"status": &filter.StatusCode,
		"limit":  &filter.Limit,
		"offset": &filter.Offset,
	}
	for name, dst := range ints {
		if v := c.Query(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return nil, errors.New("invalid " + name + " parameter")
			}
			*dst = n
		}
	}

	times := map[string]*time.Time{
		"since": &filter.StartTime,
		"until": &filter.EndTime,
	}
	for name, dst := range times {
		if v := c.Query(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, errors.New("invalid " + name + " parameter, expected RFC3339")
			}
			*dst = t
		}
	}

	return filter, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
