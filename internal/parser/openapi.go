package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/prasenjit/go-oasmock/internal/schema"
)

// Settings configures loader behaviour
type Settings struct {
	// Validate runs kin-openapi document validation after parsing
	Validate bool
	// HTTPTimeout bounds the fetch of a URL source
	HTTPTimeout time.Duration
	Logger      *slog.Logger
}

// DefaultSettings returns the loader defaults
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 10 * time.Second,
	}
}

// Option mutates Settings
type Option func(*Settings)

func WithValidation(v bool) Option           { return func(s *Settings) { s.Validate = v } }
func WithHTTPTimeout(d time.Duration) Option { return func(s *Settings) { s.HTTPTimeout = d } }
func WithLogger(l *slog.Logger) Option       { return func(s *Settings) { s.Logger = l } }

// Load reads an OpenAPI document from a file path or an http(s) URL
func Load(ctx context.Context, source string, opts ...Option) (*Document, error) {
	if strings.TrimSpace(source) == "" {
		return nil, &SpecError{Code: InputError, Message: "spec: source is empty"}
	}

	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	var (
		data []byte
		err  error
	)
	u, uerr := url.Parse(source)
	if uerr == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https") {
		data, err = fetch(ctx, source, settings.HTTPTimeout)
		if err != nil {
			return nil, &SpecError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", source, err), Location: source, Cause: err}
		}
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("read %s: %v", source, err), Location: source, Cause: err}
		}
	}

	doc, err := parse(ctx, data, settings)
	if err != nil {
		if se, ok := err.(*SpecError); ok {
			se.Location = source
		}
		return nil, err
	}
	return doc, nil
}

// Parse builds a Document from in-memory YAML or JSON
func Parse(ctx context.Context, data []byte, opts ...Option) (*Document, error) {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	return parse(ctx, data, settings)
}

func parse(ctx context.Context, data []byte, settings Settings) (*Document, error) {
	tree, err := schema.Decode(data)
	if err != nil {
		return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("failed to parse OpenAPI spec: %v", err), Cause: err}
	}
	root, ok := tree.(*schema.Node)
	if !ok {
		return nil, &SpecError{Code: ParseError, Message: "failed to parse OpenAPI spec: document is not a mapping"}
	}

	if settings.Validate {
		loader := openapi3.NewLoader()
		kdoc, err := loader.LoadFromData(data)
		if err != nil {
			return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("failed to parse OpenAPI spec: %v", err), Cause: err}
		}
		if err := kdoc.Validate(ctx); err != nil {
			return nil, &SpecError{Code: ValidationError, Message: fmt.Sprintf("invalid OpenAPI spec: %v", err), Cause: err}
		}
	}

	return NewDocument(root, settings.Logger), nil
}

func fetch(ctx context.Context, source string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// NormalizeBasePath ensures the base path starts with / and has no trailing /
func NormalizeBasePath(basePath string) string {
	if basePath == "" || basePath == "/" {
		return ""
	}

	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	return strings.TrimSuffix(basePath, "/")
}
