package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/prasenjit/go-oasmock/internal/models"
)

// EnvPrefix is the prefix of environment overrides, e.g. OASMOCK_SERVER_PORT
const EnvPrefix = "OASMOCK"

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server" json:"server"`
	Spec      SpecConfig      `mapstructure:"spec" yaml:"spec" json:"spec"`
	Upstream  UpstreamConfig  `mapstructure:"upstream" yaml:"upstream" json:"upstream"`
	Mock      MockConfig      `mapstructure:"mock" yaml:"mock" json:"mock"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording" json:"recording"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing" json:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int       `mapstructure:"port" yaml:"port" json:"port"`
	Host        string    `mapstructure:"host" yaml:"host" json:"host"`
	AdminPrefix string    `mapstructure:"adminPrefix" yaml:"adminPrefix" json:"adminPrefix"`
	TLS         TLSConfig `mapstructure:"tls" yaml:"tls" json:"tls"`
}

// TLSConfig serves HTTP and HTTPS on the same port when enabled
type TLSConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	CertFile     string `mapstructure:"certFile" yaml:"certFile" json:"certFile,omitempty"`
	KeyFile      string `mapstructure:"keyFile" yaml:"keyFile" json:"keyFile,omitempty"`
	AutoGenerate bool   `mapstructure:"autoGenerate" yaml:"autoGenerate" json:"autoGenerate"` // self-signed when no files are configured
	StoreDir     string `mapstructure:"storeDir" yaml:"storeDir" json:"storeDir"`             // where generated certificates live
}

// SpecConfig points at the OpenAPI document
type SpecConfig struct {
	Source   string        `mapstructure:"source" yaml:"source" json:"source"` // file path or http(s) URL
	BasePath string        `mapstructure:"basePath" yaml:"basePath" json:"basePath"`
	Validate bool          `mapstructure:"validate" yaml:"validate" json:"validate"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// UpstreamConfig is the real API that unmocked requests are forwarded to
type UpstreamConfig struct {
	URL     string        `mapstructure:"url" yaml:"url" json:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// MockConfig holds the global mock settings
type MockConfig struct {
	Enable              bool          `mapstructure:"enable" yaml:"enable" json:"enable"`
	MockByDefault       bool          `mapstructure:"mockByDefault" yaml:"mockByDefault" json:"mockByDefault"`
	StrategyOrder       []string      `mapstructure:"strategyOrder" yaml:"strategyOrder" json:"strategyOrder"`
	DefaultStatus       int           `mapstructure:"defaultStatus" yaml:"defaultStatus" json:"defaultStatus"`
	Seed                string        `mapstructure:"seed" yaml:"seed" json:"seed,omitempty"`
	Delay               string        `mapstructure:"delay" yaml:"delay" json:"delay,omitempty"` // ms, Go duration or template
	Debug               bool          `mapstructure:"debug" yaml:"debug" json:"debug"`
	ValidateSynthesized bool          `mapstructure:"validateSynthesized" yaml:"validateSynthesized" json:"validateSynthesized"`
	ValidateRequests    bool          `mapstructure:"validateRequests" yaml:"validateRequests" json:"validateRequests"`
	JSF                 JSFConfig     `mapstructure:"jsf" yaml:"jsf" json:"jsf"`
	Routes              []RouteConfig `mapstructure:"routes" yaml:"routes" json:"routes,omitempty"`
}

// JSFConfig tunes the generation engine
type JSFConfig struct {
	AlwaysFakeOptionals bool `mapstructure:"alwaysFakeOptionals" yaml:"alwaysFakeOptionals" json:"alwaysFakeOptionals"`
	UseDefaultValue     bool `mapstructure:"useDefaultValue" yaml:"useDefaultValue" json:"useDefaultValue"`
	MinItems            int  `mapstructure:"minItems" yaml:"minItems" json:"minItems"`
	MaxItems            int  `mapstructure:"maxItems" yaml:"maxItems" json:"maxItems"`
}

// RouteConfig overrides mock behaviour for one operation
type RouteConfig struct {
	Method        string              `mapstructure:"method" yaml:"method" json:"method"`
	Path          string              `mapstructure:"path" yaml:"path" json:"path"`
	Enable        *bool               `mapstructure:"enable" yaml:"enable,omitempty" json:"enable,omitempty"`
	StrategyOrder []string            `mapstructure:"strategyOrder" yaml:"strategyOrder,omitempty" json:"strategyOrder,omitempty"`
	Status        int                 `mapstructure:"status" yaml:"status,omitempty" json:"status,omitempty"`
	MediaType     string              `mapstructure:"mediaType" yaml:"mediaType,omitempty" json:"mediaType,omitempty"`
	Delay         string              `mapstructure:"delay" yaml:"delay,omitempty" json:"delay,omitempty"`
	Recording     *RouteRecordingConf `mapstructure:"recording" yaml:"recording,omitempty" json:"recording,omitempty"`
}

// RouteRecordingConf overrides capture for one operation
type RouteRecordingConf struct {
	Capture *bool `mapstructure:"capture" yaml:"capture,omitempty" json:"capture,omitempty"`
}

// RecordingConfig configures the recording store
type RecordingConfig struct {
	Type      string   `mapstructure:"type" yaml:"type" json:"type"` // "file", "memory" or "none"
	Dir       string   `mapstructure:"dir" yaml:"dir" json:"dir"`
	Capture   bool     `mapstructure:"capture" yaml:"capture" json:"capture"`
	MatchBody bool     `mapstructure:"matchBody" yaml:"matchBody" json:"matchBody"`
	Redact    []string `mapstructure:"redact" yaml:"redact" json:"redact"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled   bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MaxTraces int  `mapstructure:"maxTraces" yaml:"maxTraces" json:"maxTraces"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			AdminPrefix: "/_api",
			TLS: TLSConfig{
				AutoGenerate: true,
				StoreDir:     "./certs",
			},
		},
		Spec: SpecConfig{
			Source:  "openapi.yaml",
			Timeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			Timeout: 30 * time.Second,
		},
		Mock: MockConfig{
			Enable:        true,
			StrategyOrder: strategyNames(models.DefaultStrategyOrder),
			DefaultStatus: 200,
			JSF: JSFConfig{
				UseDefaultValue: true,
				MinItems:        1,
				MaxItems:        10,
			},
		},
		Recording: RecordingConfig{
			Type:   "file",
			Dir:    "./recordings",
			Redact: []string{"authorization", "cookie"},
		},
		Tracing: TracingConfig{
			Enabled:   true,
			MaxTraces: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers every default on v. Registering each key also lets
// environment variables override keys that are absent from the file.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.adminPrefix", d.Server.AdminPrefix)
	v.SetDefault("server.tls.enabled", d.Server.TLS.Enabled)
	v.SetDefault("server.tls.certFile", d.Server.TLS.CertFile)
	v.SetDefault("server.tls.keyFile", d.Server.TLS.KeyFile)
	v.SetDefault("server.tls.autoGenerate", d.Server.TLS.AutoGenerate)
	v.SetDefault("server.tls.storeDir", d.Server.TLS.StoreDir)

	v.SetDefault("spec.source", d.Spec.Source)
	v.SetDefault("spec.basePath", d.Spec.BasePath)
	v.SetDefault("spec.validate", d.Spec.Validate)
	v.SetDefault("spec.timeout", d.Spec.Timeout.String())

	v.SetDefault("upstream.url", d.Upstream.URL)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout.String())

	v.SetDefault("mock.enable", d.Mock.Enable)
	v.SetDefault("mock.mockByDefault", d.Mock.MockByDefault)
	v.SetDefault("mock.strategyOrder", d.Mock.StrategyOrder)
	v.SetDefault("mock.defaultStatus", d.Mock.DefaultStatus)
	v.SetDefault("mock.seed", d.Mock.Seed)
	v.SetDefault("mock.delay", d.Mock.Delay)
	v.SetDefault("mock.debug", d.Mock.Debug)
	v.SetDefault("mock.validateSynthesized", d.Mock.ValidateSynthesized)
	v.SetDefault("mock.validateRequests", d.Mock.ValidateRequests)
	v.SetDefault("mock.jsf.alwaysFakeOptionals", d.Mock.JSF.AlwaysFakeOptionals)
	v.SetDefault("mock.jsf.useDefaultValue", d.Mock.JSF.UseDefaultValue)
	v.SetDefault("mock.jsf.minItems", d.Mock.JSF.MinItems)
	v.SetDefault("mock.jsf.maxItems", d.Mock.JSF.MaxItems)

	v.SetDefault("recording.type", d.Recording.Type)
	v.SetDefault("recording.dir", d.Recording.Dir)
	v.SetDefault("recording.capture", d.Recording.Capture)
	v.SetDefault("recording.matchBody", d.Recording.MatchBody)
	v.SetDefault("recording.redact", d.Recording.Redact)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.maxTraces", d.Tracing.MaxTraces)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// NewViper returns a viper instance with defaults and environment binding
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// FromViper decodes and validates the configuration held by v
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from a YAML file, applying defaults and
// environment overrides
func Load(path string) (*Config, error) {
	v := NewViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return FromViper(v)
}

// Validate checks values that would otherwise fail later at request time
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.AdminPrefix != "" && !strings.HasPrefix(c.Server.AdminPrefix, "/") {
		errs = append(errs, fmt.Errorf("server.adminPrefix %q must start with /", c.Server.AdminPrefix))
	}
	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls: certFile and keyFile must be set together"))
	}
	if c.Server.TLS.Enabled && c.Server.TLS.CertFile == "" && c.Server.TLS.StoreDir == "" {
		errs = append(errs, errors.New("server.tls.storeDir is required without certFile"))
	}
	if c.Spec.Source == "" {
		errs = append(errs, errors.New("spec.source is required"))
	}
	if _, err := models.ParseStrategyOrder(c.Mock.StrategyOrder); err != nil {
		errs = append(errs, fmt.Errorf("mock.strategyOrder: %w", err))
	}
	if c.Mock.DefaultStatus != 0 && (c.Mock.DefaultStatus < 100 || c.Mock.DefaultStatus > 599) {
		errs = append(errs, fmt.Errorf("mock.defaultStatus %d is not an HTTP status", c.Mock.DefaultStatus))
	}
	if c.Mock.JSF.MinItems < 0 || c.Mock.JSF.MaxItems < c.Mock.JSF.MinItems {
		errs = append(errs, fmt.Errorf("mock.jsf: invalid item bounds %d..%d", c.Mock.JSF.MinItems, c.Mock.JSF.MaxItems))
	}
	for i, r := range c.Mock.Routes {
		if r.Method == "" || r.Path == "" {
			errs = append(errs, fmt.Errorf("mock.routes[%d]: method and path are required", i))
		}
		if _, err := models.ParseStrategyOrder(r.StrategyOrder); err != nil {
			errs = append(errs, fmt.Errorf("mock.routes[%d].strategyOrder: %w", i, err))
		}
	}
	switch c.Recording.Type {
	case "file", "memory", "none", "":
	default:
		errs = append(errs, fmt.Errorf("recording.type %q must be file, memory or none", c.Recording.Type))
	}
	if c.Recording.Type == "file" && c.Recording.Dir == "" {
		errs = append(errs, errors.New("recording.dir is required for file recordings"))
	}

	return errors.Join(errs...)
}

// LogLevel is the effective log level: mock.debug forces debug
func (c *Config) LogLevel() string {
	if c.Mock.Debug {
		return "debug"
	}
	return c.Logging.Level
}

// RecordingEnabled reports whether a recording backend should be built
func (c *Config) RecordingEnabled() bool {
	return c.Recording.Type != "" && c.Recording.Type != "none"
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func strategyNames(order []models.Strategy) []string {
	names := make([]string, len(order))
	for i, s := range order {
		names[i] = string(s)
	}
	return names
}
