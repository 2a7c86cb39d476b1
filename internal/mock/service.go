// Package mock plans and synthesizes mocked responses for operations declared
// in an OpenAPI document.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/prasenjit/go-oasmock/internal/jsf"
	"github.com/prasenjit/go-oasmock/internal/logging"
	"github.com/prasenjit/go-oasmock/internal/models"
	"github.com/prasenjit/go-oasmock/internal/parser"
	"github.com/prasenjit/go-oasmock/internal/resolver"
	"github.com/prasenjit/go-oasmock/internal/schema"
	"github.com/prasenjit/go-oasmock/internal/storage"
	"github.com/prasenjit/go-oasmock/internal/validation"
)

// Config is the global mock configuration, the lowest precedence tier
type Config struct {
	// Enable is the master switch; when false nothing is ever mocked
	Enable bool
	// MockByDefault mocks every resolvable operation unless overridden
	MockByDefault bool
	StrategyOrder []models.Strategy
	// DefaultStatus is used when no declared status can be chosen (0 means 200)
	DefaultStatus int
	// Seed makes synthesized values deterministic; empty means unseeded
	Seed  string
	Delay models.DelayFunc
	// ValidateSynthesized checks schema-derived bodies and logs mismatches
	ValidateSynthesized bool
	// ValidateRequests checks parameters and bodies of inbound requests
	ValidateRequests bool
	JSF              jsf.Options
}

// DefaultConfig returns the defaults of every global setting
func DefaultConfig() Config {
	return Config{
		Enable:        true,
		StrategyOrder: append([]models.Strategy(nil), models.DefaultStrategyOrder...),
		DefaultStatus: 200,
		JSF:           jsf.DefaultOptions(),
	}
}

// Synthesizer generates a random value for a schema whose components are
// bundled onto its root
type Synthesizer interface {
	Generate(root *schema.Node, rnd jsf.Random) (any, error)
}

// Source names what produced a mocked body
type Source string

const (
	SourceRecords           Source = "records"
	SourceMediaTypeExamples Source = "mediatype-examples"
	SourceSchema            Source = "schema"
	SourceDefault           Source = "default"
	SourceNoExample         Source = "no-example"
)

// Result is a mocked response
type Result struct {
	Status    int
	Headers   map[string]string
	MediaType string
	// Body is a tree value (*schema.Node, []any, scalar) or []byte
	Body   any
	Source Source
}

// Encode serializes the body: JSON media types are marshalled, raw bytes and
// non-JSON strings are returned as they are.
func (r *Result) Encode() ([]byte, error) {
	switch b := r.Body.(type) {
	case []byte:
		return b, nil
	case string:
		if !storage.IsJSONMediaType(r.MediaType) {
			return []byte(b), nil
		}
	}
	if r.Body == nil && !storage.IsJSONMediaType(r.MediaType) {
		return nil, nil
	}
	return json.Marshal(r.Body)
}

// noExampleMessage is the 501 diagnostic for an examples-only order that found nothing
const noExampleMessage = "No example for mocked route"

// Option configures a Service
type Option func(*Service)

// WithRecorder enables the records strategy and capture
func WithRecorder(r *storage.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

// WithSynthesizer replaces the built-in generation engine
func WithSynthesizer(synth Synthesizer) Option {
	return func(s *Service) { s.synth = synth }
}

// WithValidator sets the validator used by ValidateSynthesized and ValidateRequests
func WithValidator(v *validation.Validator) Option {
	return func(s *Service) { s.validator = v }
}

// Service turns requests into mock plans and plans into responses.
// It is safe for concurrent use.
type Service struct {
	doc       *parser.Document
	resolver  *resolver.Resolver
	recorder  *storage.Recorder
	validator *validation.Validator
	config    Config
	logger    *slog.Logger
	leaves    map[models.Strategy]leafFunc

	synthOnce sync.Once
	synth     Synthesizer
}

// NewService creates a mock service over a loaded document
func NewService(doc *parser.Document, res *resolver.Resolver, config Config, opts ...Option) *Service {
	s := &Service{
		doc:      doc,
		resolver: res,
		config:   config,
		logger:   logging.Nop(),
	}
	s.leaves = map[models.Strategy]leafFunc{
		models.StrategySchemaExamples: s.schemaExampleLeaf,
		models.StrategyJSF:            s.jsfLeaf,
		models.StrategyPrimitive:      s.primitiveLeaf,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recorder == nil {
		s.recorder = storage.NewRecorder(nil, storage.RecorderConfig{}, s.logger)
	}
	if s.validator == nil && (config.ValidateSynthesized || config.ValidateRequests) {
		s.validator = validation.NewValidator()
	}
	return s
}

// Init prepares the generation engine when the global order uses it and
// warns about a records strategy without a recording backend.
func (s *Service) Init(_ context.Context) {
	if models.ContainsStrategy(s.config.StrategyOrder, models.StrategyJSF) {
		s.synthesizer()
	}
	if models.ContainsStrategy(s.config.StrategyOrder, models.StrategyRecords) && !s.recorder.Enabled() {
		s.logger.Warn(`strategy "records" is in strategyOrder but no recording storage is configured`)
	}
}

// Enabled reports the master switch
func (s *Service) Enabled() bool {
	return s.config.Enable
}

// Config returns the global configuration
func (s *Service) Config() Config {
	return s.config
}

// Document returns the loaded document
func (s *Service) Document() *parser.Document {
	return s.doc
}

// Resolver returns the operation resolver
func (s *Service) Resolver() *resolver.Resolver {
	return s.resolver
}

// Recorder returns the recorder; it is never nil
func (s *Service) Recorder() *storage.Recorder {
	return s.recorder
}

// Resolve finds the declared operation for the request and fills its path
// parameters. It returns nil when the request is not described by the document.
func (s *Service) Resolve(req *models.Request) *models.ResolvedOperation {
	op := s.resolver.Resolve(req.Method, req.Path)
	if op != nil {
		req.PathParams = op.PathParams
	}
	return op
}

// OperationKey returns "METHOD /template" for a resolvable request, else ""
func (s *Service) OperationKey(req *models.Request) string {
	op := s.resolver.Resolve(req.Method, req.Path)
	if op == nil {
		return ""
	}
	return op.Key()
}

// TryPlan merges header hints, the per-operation override and the global
// configuration. It returns nil when the request should not be mocked.
func (s *Service) TryPlan(req *models.Request, op *models.ResolvedOperation, override *models.OperationOptions) *models.Plan {
	if !s.Enabled() || op == nil {
		return nil
	}
	if override == nil {
		override = &models.OperationOptions{}
	}

	enable := s.config.MockByDefault
	if override.Enable != nil {
		enable = *override.Enable
	}
	if values := req.Header.Values(models.HeaderMockEnable); len(values) > 0 {
		enable = strings.EqualFold(strings.TrimSpace(values[0]), "true")
	}
	if !enable {
		return nil
	}

	status := override.Status
	if status == 0 {
		status = s.config.DefaultStatus
	}
	if status == 0 {
		status = 200
	}
	if n, err := strconv.Atoi(strings.TrimSpace(req.Header.Get(models.HeaderMockStatus))); err == nil && n != 0 {
		status = n
	}

	mediaType := override.MediaType
	if h := req.Header.Get(models.HeaderMockMedia); h != "" {
		mediaType = h
	}

	order := s.config.StrategyOrder
	if len(override.StrategyOrder) > 0 {
		order = override.StrategyOrder
	}
	if h := models.SplitStrategyHeader(req.Header.Get(models.HeaderMockStrategyOrder)); len(h) > 0 {
		order = h
	}

	delay := s.config.Delay
	if override.Delay != nil {
		delay = override.Delay
	}

	return &models.Plan{
		Enable:        true,
		Status:        status,
		MediaType:     mediaType,
		StrategyOrder: order,
		Delay:         delay,
		OperationKey:  op.Key(),
	}
}

// ShouldCapture reports whether real responses for this operation are
// recorded: the override wins over the global switch.
func (s *Service) ShouldCapture(override *models.OperationOptions) bool {
	if !s.recorder.Enabled() {
		return false
	}
	if override != nil && override.Recording != nil && override.Recording.Capture != nil {
		return *override.Recording.Capture
	}
	return s.recorder.CaptureEnabled()
}

// Generate produces the mocked response for a plan. A nil result with a nil
// error means the request must reach the real handler. Panics raised while
// generating are returned as errors.
func (s *Service) Generate(ctx context.Context, req *models.Request, op *models.ResolvedOperation, plan *models.Plan) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("mock generation panicked: %v", r)
		}
	}()

	if op == nil || plan == nil {
		return nil, nil
	}

	status, mediaType := s.pickVariant(op, plan)
	if mediaType == "" {
		mediaType = s.firstMediaType(op, status)
	}
	if mediaType == "" {
		mediaType = "application/json"
	}

	order := plan.StrategyOrder
	if len(order) == 0 {
		order = models.DefaultStrategyOrder
	}
	key := op.Key()

	if models.ContainsStrategy(order, models.StrategyPassthrough) {
		return nil, nil
	}

	if order[0] == models.StrategyRecords {
		if replay := s.recorder.Load(ctx, req, key, status, mediaType); replay != nil {
			return replayResult(replay), nil
		}
	}

	body, source, ok := s.generateBody(op, status, mediaType, order)

	if !ok && order[0] != models.StrategyRecords && models.ContainsStrategy(order, models.StrategyRecords) {
		if replay := s.recorder.Load(ctx, req, key, status, mediaType); replay != nil {
			return replayResult(replay), nil
		}
	}

	if !ok {
		if models.IsExamplesOnly(order) {
			return &Result{
				Status:    501,
				Headers:   map[string]string{"content-type": "application/json"},
				MediaType: "application/json",
				Body:      map[string]any{"error": noExampleMessage},
				Source:    SourceNoExample,
			}, nil
		}
		return nil, nil
	}

	return &Result{
		Status:    status,
		Headers:   map[string]string{"content-type": mediaType},
		MediaType: mediaType,
		Body:      body,
		Source:    source,
	}, nil
}

func replayResult(r *storage.Replay) *Result {
	headers := make(map[string]string, len(r.Headers)+1)
	for k, v := range r.Headers {
		headers[strings.ToLower(k)] = v
	}
	if r.MediaType != "" {
		headers["content-type"] = r.MediaType
	}
	return &Result{
		Status:    r.Status,
		Headers:   headers,
		MediaType: r.MediaType,
		Body:      r.Body,
		Source:    SourceRecords,
	}
}

// generateBody runs media-type examples then field-by-field generation, and
// finally the simple defaults for non-JSON media types.
func (s *Service) generateBody(op *models.ResolvedOperation, status int, mediaType string, order []models.Strategy) (any, Source, bool) {
	media := s.mediaObject(s.responseFor(op, status), mediaType)

	if models.ContainsStrategy(order, models.StrategyMediaTypeExamples) {
		if v, ok := s.mediaTypeExample(media); ok {
			return v, SourceMediaTypeExamples, true
		}
	}

	if storage.IsJSONMediaType(mediaType) {
		if root := s.doc.Deref(media.Node("schema")); root != nil {
			g := s.fieldByField(root, order, op.OpenAPIVersion, 0)
			if g.ok {
				s.validate(op, status, mediaType, root, g.value)
			}
			return g.value, SourceSchema, g.ok
		}
	}

	mt := strings.ToLower(mediaType)
	switch {
	case strings.HasPrefix(mt, "text/"):
		return "mock", SourceDefault, true
	case mt == "application/octet-stream":
		return []byte("mock"), SourceDefault, true
	}
	return nil, "", false
}

func (s *Service) validate(op *models.ResolvedOperation, status int, mediaType string, root *schema.Node, value any) {
	if !s.config.ValidateSynthesized || s.validator == nil {
		return
	}
	key := fmt.Sprintf("%s %d %s", op.Key(), status, mediaType)
	issues, err := s.validator.Validate(key, s.prepare(root, op.OpenAPIVersion), op.OpenAPIVersion, value)
	if err != nil {
		s.logger.Warn("failed to compile response schema", "operation", op.Key(), "error", err)
		return
	}
	if len(issues) > 0 {
		s.logger.Warn("synthesized body does not match its schema",
			"operation", op.Key(), "status", status, "issues", len(issues), "first", issues[0].String())
	}
}
