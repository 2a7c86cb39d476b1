package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasenjit/go-oasmock/internal/mock"
	"github.com/prasenjit/go-oasmock/internal/models"
	"github.com/prasenjit/go-oasmock/internal/parser"
	"github.com/prasenjit/go-oasmock/internal/resolver"
	"github.com/prasenjit/go-oasmock/internal/stats"
	"github.com/prasenjit/go-oasmock/internal/storage"
	"github.com/prasenjit/go-oasmock/internal/tracing"
)

const petsSpec = `
openapi: 3.0.3
info: {title: Pets, version: "1"}
paths:
  /pets/{id}:
    get:
      operationId: getPet
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: object
                required: [id, name]
                properties:
                  id: {type: integer, example: 7}
                  name: {type: string, example: Rex}
  /pets:
    get:
      responses:
        "200":
          description: ok
          content:
            application/json:
              examples:
                one: {value: [{id: 1, name: Tom}]}
  /notes:
    get:
      responses:
        "200":
          description: text
          content:
            text/plain:
              schema: {type: string}
`

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	engine    *Engine
	router    *gin.Engine
	stats     *stats.Collector
	traces    *tracing.Service
	recorder  *storage.Recorder
	realCalls int
}

func setupTestEngine(t *testing.T, cfg mock.Config, capture bool) *testEnv {
	t.Helper()

	doc, err := parser.Parse(context.Background(), []byte(petsSpec))
	require.NoError(t, err)

	recorder := storage.NewRecorder(storage.NewMemoryStorage(), storage.RecorderConfig{Capture: capture}, nil)
	svc := mock.NewService(doc, resolver.New(doc, ""), cfg, mock.WithRecorder(recorder))

	env := &testEnv{
		stats:    stats.NewCollector(),
		traces:   tracing.NewService(100),
		recorder: recorder,
	}
	env.engine = NewEngine(svc, env.stats, env.traces, WithSkipPrefixes("/_api"))

	r := gin.New()
	r.Use(env.engine.Middleware())
	r.GET("/pets/:id", func(c *gin.Context) {
		env.realCalls++
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "source": "real"})
	})
	r.GET("/_api/health", func(c *gin.Context) {
		env.realCalls++
		c.String(http.StatusOK, "ok")
	})
	r.NoRoute(func(c *gin.Context) {
		env.realCalls++
		c.JSON(http.StatusNotFound, gin.H{"error": "real 404"})
	})
	env.router = r
	return env
}

func (env *testEnv) do(t *testing.T, method, target string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func mockByDefault() mock.Config {
	cfg := mock.DefaultConfig()
	cfg.MockByDefault = true
	return cfg
}

func TestNewEngine(t *testing.T) {
	e := NewEngine(nil, nil, nil)
	if e.statsCollector == nil {
		t.Error("expected a private stats collector")
	}
	if e.overrides == nil {
		t.Error("expected overrides map to be initialized")
	}
}

func TestMiddleware_Mocked(t *testing.T) {
	env := setupTestEngine(t, mockByDefault(), false)

	w := env.do(t, "GET", "/pets/3")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id": 7, "name": "Rex"}`, w.Body.String())
	assert.Equal(t, 0, env.realCalls, "real handler must not run for mocked requests")

	stat := env.stats.GetOperationStats("GET /pets/{id}")
	require.NotNil(t, stat)
	assert.Equal(t, int64(1), stat.ByOutcome[models.OutcomeMocked])

	traces := env.traces.GetTraces(nil)
	require.Len(t, traces, 1)
	assert.Equal(t, models.OutcomeMocked, traces[0].Outcome)
	assert.Equal(t, "getPet", traces[0].OperationID)
	assert.Equal(t, "schema", traces[0].Source)
}

func TestMiddleware_MediaTypeExample(t *testing.T) {
	env := setupTestEngine(t, mockByDefault(), false)

	w := env.do(t, "GET", "/pets")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id": 1, "name": "Tom"}]`, w.Body.String())
	assert.Equal(t, 0, env.realCalls)
}

func TestMiddleware_TextBody(t *testing.T) {
	env := setupTestEngine(t, mockByDefault(), false)

	w := env.do(t, "GET", "/notes")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "mock", w.Body.String())
}

func TestMiddleware_PassthroughWithoutPlan(t *testing.T) {
	env := setupTestEngine(t, mock.DefaultConfig(), false)

	w := env.do(t, "GET", "/pets/3")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id": "3", "source": "real"}`, w.Body.String())
	assert.Equal(t, 1, env.realCalls)

	stat := env.stats.GetOperationStats("GET /pets/{id}")
	require.NotNil(t, stat)
	assert.Equal(t, int64(1), stat.ByOutcome[models.OutcomePassthrough])
	assert.Empty(t, listRecordings(t, env), "nothing is captured when capture is off")
}

func TestMiddleware_HeaderHints(t *testing.T) {
	env := setupTestEngine(t, mock.DefaultConfig(), false)

	w := env.do(t, "GET", "/pets/3", models.HeaderMockEnable, "true")
	assert.Equal(t, 0, env.realCalls)
	assert.JSONEq(t, `{"id": 7, "name": "Rex"}`, w.Body.String())

	w = env.do(t, "GET", "/pets/3", models.HeaderMockEnable, "true", models.HeaderMockStrategyOrder, "passthrough")
	assert.Equal(t, 1, env.realCalls)
	assert.Contains(t, w.Body.String(), "real")
}

func TestMiddleware_Override(t *testing.T) {
	env := setupTestEngine(t, mock.DefaultConfig(), false)
	env.engine.Override("GET", "/pets/:id", models.OperationOptions{Enable: boolPtr(true)})

	env.do(t, "GET", "/pets/3")
	assert.Equal(t, 0, env.realCalls)

	assert.Contains(t, env.engine.Overrides(), "GET /pets/{id}")
}

func TestMiddleware_OverrideByOperation(t *testing.T) {
	env := setupTestEngine(t, mock.DefaultConfig(), false)
	// /pets has no gin route, so the override is found through the resolved operation
	env.engine.Override("get", "/pets", models.OperationOptions{Enable: boolPtr(true)})

	w := env.do(t, "GET", "/pets")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.realCalls)
}

func TestMiddleware_NotImplemented(t *testing.T) {
	env := setupTestEngine(t, mockByDefault(), false)

	// field examples exist but only media-type examples are allowed
	w := env.do(t, "GET", "/pets/3", models.HeaderMockStrategyOrder, "mediatype-examples")

	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.JSONEq(t, `{"error": "No example for mocked route"}`, w.Body.String())
	assert.Equal(t, 0, env.realCalls)

	traces := env.traces.GetTraces(nil)
	require.Len(t, traces, 1)
	assert.Equal(t, models.OutcomeNotImplemented, traces[0].Outcome)
}

func TestMiddleware_CaptureThenReplay(t *testing.T) {
	env := setupTestEngine(t, mock.DefaultConfig(), true)

	w := env.do(t, "GET", "/pets/5")
	assert.Equal(t, 1, env.realCalls)
	real := w.Body.String()

	recs := listRecordings(t, env)
	require.Len(t, recs, 1)
	assert.Equal(t, "GET /pets/{id}", recs[0].OperationKey)
	assert.Equal(t, 200, recs[0].Status)
	assert.Equal(t, "application/json", recs[0].MediaType)

	w = env.do(t, "GET", "/pets/5", models.HeaderMockEnable, "true", models.HeaderMockStrategyOrder, "records")
	assert.Equal(t, 1, env.realCalls, "replay must not reach the real handler")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, real, w.Body.String())

	stat := env.stats.GetOperationStats("GET /pets/{id}")
	require.NotNil(t, stat)
	assert.Equal(t, int64(1), stat.ByOutcome[models.OutcomeCaptured])
	assert.Equal(t, int64(1), stat.ByOutcome[models.OutcomeReplayed])
}

func TestMiddleware_ReplayWithMediaParameters(t *testing.T) {
	env := setupTestEngine(t, mock.DefaultConfig(), true)

	env.do(t, "GET", "/pets/5")
	require.Len(t, listRecordings(t, env), 1)

	w := env.do(t, "GET", "/pets/5",
		models.HeaderMockEnable, "true",
		models.HeaderMockStrategyOrder, "records",
		models.HeaderMockMedia, "application/json; charset=utf-8")

	assert.Equal(t, 1, env.realCalls)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id": "5", "source": "real"}`, w.Body.String())
	if got := env.traces.GetTraces(nil)[0].Outcome; got != models.OutcomeReplayed {
		t.Errorf("expected outcome %s, got %s", models.OutcomeReplayed, got)
	}
}

func TestMiddleware_RejectsInvalidRequests(t *testing.T) {
	doc, err := parser.Parse(context.Background(), []byte(`
openapi: 3.0.3
info: {title: Shelves, version: "1"}
paths:
  /shelves/{id}:
    get:
      parameters:
        - {name: id, in: path, required: true, schema: {type: integer}}
      responses:
        "200":
          description: ok
          content:
            application/json:
              example: {id: 1}
`))
	require.NoError(t, err)

	cfg := mock.DefaultConfig()
	cfg.ValidateRequests = true
	svc := mock.NewService(doc, resolver.New(doc, ""), cfg)
	statsCollector := stats.NewCollector()
	engine := NewEngine(svc, statsCollector, nil)

	realCalls := 0
	r := gin.New()
	r.Use(engine.Middleware())
	r.GET("/shelves/:id", func(c *gin.Context) {
		realCalls++
		c.JSON(http.StatusOK, gin.H{"source": "real"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/shelves/abc", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, realCalls)
	var resp struct {
		Message string `json:"message"`
		Errors  []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Validation failed", resp.Message)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "path.id", resp.Errors[0].Field)

	stat := statsCollector.GetOperationStats("GET /shelves/{id}")
	require.NotNil(t, stat)
	assert.Equal(t, int64(1), stat.ByOutcome[models.OutcomeRejected])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/shelves/3", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, realCalls, "valid requests pass through")
}

func TestMiddleware_MockedResponsesAreNotCaptured(t *testing.T) {
	env := setupTestEngine(t, mockByDefault(), true)

	env.do(t, "GET", "/pets/5")
	assert.Empty(t, listRecordings(t, env))
}

func TestMiddleware_CaptureUndeclaredRoute(t *testing.T) {
	env := setupTestEngine(t, mockByDefault(), true)

	w := env.do(t, "GET", "/unknown?x=1")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, env.realCalls)

	recs := listRecordings(t, env)
	require.Len(t, recs, 1)
	assert.Equal(t, "GET /unknown", recs[0].OperationKey)
	assert.Equal(t, 404, recs[0].Status)
}

func TestMiddleware_FallbackOnFailure(t *testing.T) {
	env := setupTestEngine(t, mockByDefault(), true)
	env.engine.Override("GET", "/pets/{id}", models.OperationOptions{
		Delay: func(*models.Request) time.Duration { panic("boom") },
	})

	w := env.do(t, "GET", "/pets/9")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "real")
	assert.Equal(t, 1, env.realCalls)
	assert.Empty(t, listRecordings(t, env), "fallback pass-through is never captured")

	global := env.stats.GetGlobalStats(3)
	assert.Equal(t, int64(1), global.ByOutcome[models.OutcomeFallback])
	require.Len(t, global.RecentFallbacks, 1)
	assert.Contains(t, global.RecentFallbacks[0].Error, "boom")
}

func TestMiddleware_Delay(t *testing.T) {
	cfg := mockByDefault()
	cfg.Delay = models.FixedDelay(30 * time.Millisecond)
	env := setupTestEngine(t, cfg, false)

	start := time.Now()
	w := env.do(t, "GET", "/pets/1")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestMiddleware_DelayCancelled(t *testing.T) {
	cfg := mockByDefault()
	cfg.Delay = models.FixedDelay(time.Hour)
	env := setupTestEngine(t, cfg, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("GET", "/pets/1", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		env.router.ServeHTTP(w, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delay ignored request cancellation")
	}
	assert.Equal(t, 0, env.realCalls)
	assert.Empty(t, w.Body.String())
}

func TestMiddleware_SkipPrefix(t *testing.T) {
	env := setupTestEngine(t, mockByDefault(), true)

	w := env.do(t, "GET", "/_api/health")
	assert.Equal(t, "ok", w.Body.String())
	assert.Empty(t, env.traces.GetTraces(nil))
	assert.Empty(t, listRecordings(t, env))
}

func TestMiddleware_RequestBodyStillReadable(t *testing.T) {
	env := setupTestEngine(t, mock.DefaultConfig(), false)
	var seen string
	env.router.POST("/echo", func(c *gin.Context) {
		b, _ := c.GetRawData()
		seen = string(b)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest("POST", "/echo", strings.NewReader(`{"a":1}`))
	env.router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, `{"a":1}`, seen)
	traces := env.traces.GetTraces(nil)
	require.Len(t, traces, 1)
	assert.Equal(t, `{"a":1}`, traces[0].Request.Body)
	assert.Equal(t, http.StatusNoContent, traces[0].Response.StatusCode)
}

func TestTemplatePath(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"/pets", "/pets"},
		{"/pets/:id", "/pets/{id}"},
		{"/pets/{id}", "/pets/{id}"},
		{"/a/:x/b/:y", "/a/{x}/b/{y}"},
		{"/files/*path", "/files/{path}"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := TemplatePath(tt.in); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestUpstream(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path, "q": r.URL.RawQuery})
	}))
	defer backend.Close()

	handler, err := Upstream(backend.URL, time.Second, nil)
	require.NoError(t, err)

	r := gin.New()
	r.NoRoute(handler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/pets/1?x=2", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"path": "/pets/1", "q": "x=2"}`, w.Body.String())
}

func TestUpstream_NotConfigured(t *testing.T) {
	handler, err := Upstream("", 0, nil)
	require.NoError(t, err)

	r := gin.New()
	r.NoRoute(handler)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/anything", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error": "no upstream configured"}`, w.Body.String())
}

func TestUpstream_Invalid(t *testing.T) {
	_, err := Upstream("ftp://example.com", 0, nil)
	assert.Error(t, err)
	_, err = Upstream("://bad", 0, nil)
	assert.Error(t, err)
}

func TestUpstream_Unavailable(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	handler, err := Upstream(url, time.Second, nil)
	require.NoError(t, err)

	r := gin.New()
	r.NoRoute(handler)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func listRecordings(t *testing.T, env *testEnv) []models.RecordingSummary {
	t.Helper()
	recs, err := env.recorder.Store().List(context.Background())
	require.NoError(t, err)
	return recs
}

func boolPtr(b bool) *bool { return &b }
