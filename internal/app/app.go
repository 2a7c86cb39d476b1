// Package app assembles the server from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/prasenjit/go-oasmock/internal/api"
	"github.com/prasenjit/go-oasmock/internal/config"
	"github.com/prasenjit/go-oasmock/internal/jsf"
	"github.com/prasenjit/go-oasmock/internal/logging"
	"github.com/prasenjit/go-oasmock/internal/mock"
	"github.com/prasenjit/go-oasmock/internal/models"
	"github.com/prasenjit/go-oasmock/internal/parser"
	"github.com/prasenjit/go-oasmock/internal/proxy"
	"github.com/prasenjit/go-oasmock/internal/resolver"
	"github.com/prasenjit/go-oasmock/internal/stats"
	"github.com/prasenjit/go-oasmock/internal/storage"
	"github.com/prasenjit/go-oasmock/internal/template"
	"github.com/prasenjit/go-oasmock/internal/tracing"
)

// App is a fully wired server
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Mock    *mock.Service
	Stats   *stats.Collector
	Tracing *tracing.Service
	Proxy   *proxy.Engine
	Router  *api.Router

	store storage.Storage
}

// NewLogger builds the logger described by cfg
func NewLogger(cfg *config.Config) *slog.Logger {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(cfg.LogLevel())
	lc.Format = logging.ParseFormat(cfg.Logging.Format)
	return logging.New(lc)
}

// NewMockService loads the spec and builds the mock service with its
// recording backend. The returned storage may be nil.
func NewMockService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mock.Service, storage.Storage, error) {
	doc, err := parser.Load(ctx, cfg.Spec.Source,
		parser.WithValidation(cfg.Spec.Validate),
		parser.WithHTTPTimeout(cfg.Spec.Timeout),
		parser.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	res := resolver.New(doc, cfg.Spec.BasePath)

	mockCfg, err := MockConfig(cfg, TemplateEngine(cfg))
	if err != nil {
		return nil, nil, err
	}

	opts := []mock.Option{mock.WithLogger(logger)}
	store, err := newStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	if store != nil {
		recorder := storage.NewRecorder(store, storage.RecorderConfig{
			Capture:   cfg.Recording.Capture,
			MatchBody: cfg.Recording.MatchBody,
			Redact:    cfg.Recording.Redact,
		}, logger)
		opts = append(opts, mock.WithRecorder(recorder))
	}

	svc := mock.NewService(doc, res, mockCfg, opts...)
	svc.Init(ctx)

	logger.Info("spec loaded",
		"source", cfg.Spec.Source,
		"title", doc.Title(),
		"openapi", doc.Version(),
		"operations", len(res.Operations()),
	)
	return svc, store, nil
}

// New builds every component and the router
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger = logging.OrNop(logger)

	svc, store, err := NewMockService(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Mock:   svc,
		Stats:  stats.NewCollector(),
		store:  store,
	}
	if cfg.Tracing.Enabled {
		a.Tracing = tracing.NewService(cfg.Tracing.MaxTraces)
	}

	a.Proxy = proxy.NewEngine(svc, a.Stats, a.Tracing,
		proxy.WithLogger(logger),
		proxy.WithSkipPrefixes(cfg.Server.AdminPrefix),
	)
	if err := ApplyRoutes(a.Proxy, cfg, TemplateEngine(cfg)); err != nil {
		a.Close()
		return nil, err
	}

	upstream, err := proxy.Upstream(cfg.Upstream.URL, cfg.Upstream.Timeout, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Router = api.NewRouter(svc, a.Stats, a.Tracing, a.Proxy, api.Options{
		AdminPrefix: cfg.Server.AdminPrefix,
		Upstream:    upstream,
		Settings:    cfg,
		Logger:      logger,
	})
	return a, nil
}

// Handler returns the root http.Handler
func (a *App) Handler() http.Handler {
	return a.Router.Handler()
}

// Close releases the recording store
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Recording.Type {
	case "file":
		s, err := storage.NewFileStorage(cfg.Recording.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize recording storage: %w", err)
		}
		return s, nil
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, nil
	}
}

// TemplateEngine returns a template engine, seeded when mock.seed is set
func TemplateEngine(cfg *config.Config) *template.Engine {
	if cfg.Mock.Seed == "" {
		return template.NewEngine()
	}
	return template.NewSeededEngine(math.Float64bits(jsf.ParseSeed(cfg.Mock.Seed)))
}

// MockConfig converts the mock section to the service configuration
func MockConfig(cfg *config.Config, tmpl *template.Engine) (mock.Config, error) {
	order, err := models.ParseStrategyOrder(cfg.Mock.StrategyOrder)
	if err != nil {
		return mock.Config{}, fmt.Errorf("mock.strategyOrder: %w", err)
	}
	if len(order) == 0 {
		order = append(order, models.DefaultStrategyOrder...)
	}

	delay, err := tmpl.DelayFunc(cfg.Mock.Delay)
	if err != nil {
		return mock.Config{}, fmt.Errorf("mock.delay: %w", err)
	}

	jsfOpts := jsf.DefaultOptions()
	jsfOpts.AlwaysFakeOptionals = cfg.Mock.JSF.AlwaysFakeOptionals
	jsfOpts.UseDefaultValue = cfg.Mock.JSF.UseDefaultValue
	jsfOpts.MinItems = cfg.Mock.JSF.MinItems
	jsfOpts.MaxItems = cfg.Mock.JSF.MaxItems

	return mock.Config{
		Enable:              cfg.Mock.Enable,
		MockByDefault:       cfg.Mock.MockByDefault,
		StrategyOrder:       order,
		DefaultStatus:       cfg.Mock.DefaultStatus,
		Seed:                cfg.Mock.Seed,
		Delay:               delay,
		ValidateSynthesized: cfg.Mock.ValidateSynthesized,
		ValidateRequests:    cfg.Mock.ValidateRequests,
		JSF:                 jsfOpts,
	}, nil
}

// RouteOptions converts one route override
func RouteOptions(r config.RouteConfig, tmpl *template.Engine) (models.OperationOptions, error) {
	order, err := models.ParseStrategyOrder(r.StrategyOrder)
	if err != nil {
		return models.OperationOptions{}, err
	}
	delay, err := tmpl.DelayFunc(r.Delay)
	if err != nil {
		return models.OperationOptions{}, err
	}

	opts := models.OperationOptions{
		Enable:        r.Enable,
		StrategyOrder: order,
		Delay:         delay,
		Status:        r.Status,
		MediaType:     r.MediaType,
	}
	if r.Recording != nil {
		opts.Recording = &models.RecordingOptions{Capture: r.Recording.Capture}
	}
	return opts, nil
}

// ApplyRoutes registers every configured route override on the engine
func ApplyRoutes(e *proxy.Engine, cfg *config.Config, tmpl *template.Engine) error {
	var errs []error
	for i, r := range cfg.Mock.Routes {
		opts, err := RouteOptions(r, tmpl)
		if err != nil {
			errs = append(errs, fmt.Errorf("mock.routes[%d] %s %s: %w", i, strings.ToUpper(r.Method), r.Path, err))
			continue
		}
		e.Override(r.Method, r.Path, opts)
	}
	return errors.Join(errs...)
}
