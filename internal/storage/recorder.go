package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prasenjit/go-oasmock/internal/logging"
	"github.com/prasenjit/go-oasmock/internal/models"
	"github.com/prasenjit/go-oasmock/internal/schema"
)

// RecorderConfig controls matching and capture
type RecorderConfig struct {
	Capture   bool     `json:"capture"`
	MatchBody bool     `json:"matchBody"`
	Redact    []string `json:"redact,omitempty"`
}

// Replay is a stored response ready to be sent again
type Replay struct {
	Status    int
	Headers   map[string]string
	MediaType string
	// Body is *schema.Node, []any or a scalar for JSON recordings and
	// []byte for text and binary recordings.
	Body any
}

// Capture is a live response to be persisted
type Capture struct {
	OperationKey string
	Status       int
	MediaType    string
	Headers      http.Header
	Body         []byte
}

// Recorder reads and writes recordings keyed by request fingerprint
type Recorder struct {
	store  Storage
	config RecorderConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder. A nil store disables recording.
func NewRecorder(store Storage, config RecorderConfig, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		config: config,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// Enabled reports whether a backend is configured
func (r *Recorder) Enabled() bool {
	return r != nil && r.store != nil
}

// CaptureEnabled reports the global capture switch
func (r *Recorder) CaptureEnabled() bool {
	return r.Enabled() && r.config.Capture
}

// Config returns the recorder configuration
func (r *Recorder) Config() RecorderConfig {
	return r.config
}

// Store returns the backing storage
func (r *Recorder) Store() Storage {
	return r.store
}

// Path computes where a recording for this request would live
func (r *Recorder) Path(req *models.Request, operationKey string, status int, mediaType string) string {
	tuple := Fingerprint(req, operationKey, r.config.MatchBody, r.config.Redact)
	return RecordingPath(operationKey, status, mediaType, tuple)
}

// Load returns the stored response for the request, or nil when there is
// none or it cannot be decoded.
func (r *Recorder) Load(ctx context.Context, req *models.Request, operationKey string, status int, mediaType string) *Replay {
	if !r.Enabled() {
		return nil
	}

	p := r.Path(req, operationKey, status, mediaType)
	entry, err := r.store.Read(ctx, p)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.logger.Debug("no recording", "path", p)
		} else {
			r.logger.Warn("failed to read recording", "path", p, "error", err)
		}
		return nil
	}

	body, err := decodeBody(entry.Response.BodyType, entry.Response.Body)
	if err != nil {
		r.logger.Warn("failed to decode recording", "path", p, "error", err)
		return nil
	}

	headers := make(map[string]string, len(entry.Response.Headers))
	for k, v := range entry.Response.Headers {
		switch strings.ToLower(k) {
		case "content-length", "transfer-encoding":
			continue
		}
		headers[k] = v
	}

	mt := entry.Response.MediaType
	if mt == "" {
		mt = mediaType
	}

	return &Replay{
		Status:    entry.Response.Status,
		Headers:   headers,
		MediaType: mt,
		Body:      body,
	}
}

// Save persists a live response. Write failures are logged and swallowed.
func (r *Recorder) Save(ctx context.Context, req *models.Request, c Capture) {
	if !r.Enabled() {
		return
	}

	tuple := Fingerprint(req, c.OperationKey, r.config.MatchBody, r.config.Redact)
	p := RecordingPath(c.OperationKey, c.Status, c.MediaType, tuple)

	bodyType, body := encodeBody(c.MediaType, c.Body)

	headers := make(map[string]string, len(c.Headers))
	for k, vals := range c.Headers {
		headers[strings.ToLower(k)] = strings.Join(vals, ", ")
	}

	entry := &models.RecordingEntry{
		Request: tuple.Request(),
		Response: models.RecordedResponse{
			Status:    c.Status,
			Headers:   headers,
			MediaType: c.MediaType,
			BodyType:  bodyType,
			Body:      body,
		},
		Meta: models.RecordingMeta{
			CreatedAt: r.now().UTC(),
			Version:   models.RecordingVersion,
		},
	}

	if err := r.store.Write(ctx, p, entry); err != nil {
		r.logger.Warn("failed to write recording", "path", p, "error", err)
		return
	}
	r.logger.Debug("recorded response", "path", p, "status", c.Status)
}

// IsJSONMediaType reports application/json, its parameterized forms and
// +json suffixes.
func IsJSONMediaType(mediaType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	return strings.HasPrefix(mt, "application/json") || strings.HasSuffix(mt, "+json")
}

func isTextMediaType(mediaType string) bool {
	mt := strings.ToLower(mediaType)
	return strings.HasPrefix(mt, "text/") || strings.Contains(mt, "xml")
}

func encodeBody(mediaType string, body []byte) (string, json.RawMessage) {
	asText := func() (string, json.RawMessage) {
		if !utf8.Valid(body) {
			return asBase64(body)
		}
		data, _ := json.Marshal(string(body))
		return models.BodyTypeText, data
	}

	switch {
	case isTextMediaType(mediaType):
		return asText()
	case IsJSONMediaType(mediaType):
		if len(body) > 0 && json.Valid(body) {
			return models.BodyTypeJSON, json.RawMessage(body)
		}
		return asText()
	case strings.HasPrefix(strings.ToLower(mediaType), "application/octet-stream"):
		return asBase64(body)
	default:
		if len(body) > 0 && json.Valid(body) {
			return models.BodyTypeJSON, json.RawMessage(body)
		}
		return asText()
	}
}

func asBase64(body []byte) (string, json.RawMessage) {
	data, _ := json.Marshal(base64.StdEncoding.EncodeToString(body))
	return models.BodyTypeBase64, data
}

func decodeBody(bodyType string, raw json.RawMessage) (any, error) {
	switch bodyType {
	case models.BodyTypeText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []byte(s), nil
	case models.BodyTypeBase64:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(s)
	default:
		if len(raw) == 0 {
			return nil, nil
		}
		return schema.Decode(raw)
	}
}
