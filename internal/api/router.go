package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prasenjit/go-oasmock/internal/logging"
	"github.com/prasenjit/go-oasmock/internal/mock"
	"github.com/prasenjit/go-oasmock/internal/proxy"
	"github.com/prasenjit/go-oasmock/internal/stats"
	"github.com/prasenjit/go-oasmock/internal/tracing"
)

// Options configures a Router
type Options struct {
	// AdminPrefix mounts the admin API; defaults to /_api
	AdminPrefix string
	// Upstream handles requests no route matched. Nil answers 404.
	Upstream gin.HandlerFunc
	// Settings is reported by GET {AdminPrefix}/config
	Settings any
	Logger   *slog.Logger
}

// Router handles HTTP routing
type Router struct {
	engine      *gin.Engine
	handler     *Handler
	proxyEngine *proxy.Engine
	adminPrefix string
	logger      *slog.Logger
}

// NewRouter creates a new router. The proxy engine should be built with
// WithSkipPrefixes(AdminPrefix) so admin calls are never mocked.
func NewRouter(svc *mock.Service, statsCollector *stats.Collector, tracingService *tracing.Service, proxyEngine *proxy.Engine, opts Options) *Router {
	gin.SetMode(gin.ReleaseMode)

	if opts.AdminPrefix == "" {
		opts.AdminPrefix = "/_api"
	}
	logger := logging.OrNop(opts.Logger)

	r := &Router{
		engine:      gin.New(),
		proxyEngine: proxyEngine,
		adminPrefix: strings.TrimSuffix(opts.AdminPrefix, "/"),
		logger:      logger,
	}
	r.handler = NewHandler(svc, statsCollector, tracingService, proxyEngine, opts.Settings, logger)

	// Setup middleware
	r.engine.Use(gin.Recovery())
	r.engine.Use(accessLog(logger))
	r.engine.Use(proxyEngine.Middleware())

	r.setupRoutes()

	upstream := opts.Upstream
	if upstream == nil {
		upstream = func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no upstream configured"})
		}
	}
	r.engine.NoRoute(upstream)

	return r
}

// setupRoutes configures all routes
func (r *Router) setupRoutes() {
	api := r.engine.Group(r.adminPrefix)
	api.Use(corsMiddleware())
	{
		api.GET("/health", r.handler.HealthCheck)
		api.GET("/config", r.handler.GetConfig)

		// Operations
		api.GET("/operations", r.handler.ListOperations)

		// Recordings
		api.GET("/recordings", r.handler.ListRecordings)
		api.GET("/recordings/*path", r.handler.GetRecording)
		api.DELETE("/recordings/*path", r.handler.DeleteRecording)

		// Statistics
		api.GET("/stats", r.handler.GetGlobalStats)
		api.GET("/stats/operations", r.handler.GetOperationStats)
		api.POST("/stats/reset", r.handler.ResetStats)

		// Tracing
		api.GET("/traces", r.handler.ListTraces)
		api.GET("/traces/stream", r.handler.StreamTraces)
		api.GET("/traces/:id", r.handler.GetTrace)
		api.DELETE("/traces", r.handler.ClearTraces)
	}
}

// Engine exposes the gin engine so applications can mount their real handlers
// behind the interception middleware.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Handler returns the http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
