package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"mime"
	"regexp"
	"strconv"
	"strings"

	"github.com/prasenjit/go-oasmock/internal/models"
)

// MatchTuple is the request fingerprint a recording is keyed by
type MatchTuple struct {
	OperationKey string            `json:"operationKey"`
	Method       string            `json:"method"`
	URLPath      string            `json:"urlPath"`
	Query        map[string]any    `json:"query"`
	Headers      map[string]string `json:"headers"`
	BodyHash     *string           `json:"bodyHash,omitempty"`
}

// Request returns the persisted form of the fingerprint
func (m MatchTuple) Request() models.RecordedRequest {
	return models.RecordedRequest{
		Method:       m.Method,
		OperationKey: m.OperationKey,
		URLPath:      m.URLPath,
		Query:        m.Query,
		Headers:      m.Headers,
		BodyHash:     m.BodyHash,
	}
}

// Fingerprint derives the match tuple of a request. Header names are
// lower-cased; redacted names and x-mock-* hints are left out. The body
// participates only when matchBody is set.
func Fingerprint(req *models.Request, operationKey string, matchBody bool, redact []string) MatchTuple {
	urlPath := req.RoutePath
	if urlPath == "" {
		urlPath = req.Path
	}
	if i := strings.IndexByte(urlPath, '?'); i >= 0 {
		urlPath = urlPath[:i]
	}
	if urlPath == "" {
		urlPath = "/"
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = "GET"
	}

	query := make(map[string]any, len(req.Query))
	for k, vals := range req.Query {
		if len(vals) == 1 {
			query[k] = vals[0]
			continue
		}
		list := make([]any, len(vals))
		for i, v := range vals {
			list[i] = v
		}
		query[k] = list
	}

	redacted := make(map[string]bool, len(redact))
	for _, name := range redact {
		redacted[strings.ToLower(strings.TrimSpace(name))] = true
	}
	headers := make(map[string]string, len(req.Header))
	for k, vals := range req.Header {
		name := strings.ToLower(k)
		if redacted[name] || strings.HasPrefix(name, "x-mock-") {
			continue
		}
		headers[name] = strings.Join(vals, ", ")
	}

	tuple := MatchTuple{
		OperationKey: operationKey,
		Method:       method,
		URLPath:      urlPath,
		Query:        query,
		Headers:      headers,
	}
	if matchBody {
		h := BodyHash(req.Body)
		tuple.BodyHash = &h
	}
	return tuple
}

// BodyHash hashes a request body: JSON bodies by their canonical form, other
// bodies as a JSON string, and an empty body as null.
func BodyHash(body []byte) string {
	var value any
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0:
		value = nil
	case json.Valid(trimmed):
		value = json.RawMessage(trimmed)
	default:
		value = string(body)
	}
	return HashHex(value)
}

// CanonicalJSON marshals v with object keys sorted at every level
func CanonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// HashHex returns the hex SHA-256 of the canonical JSON of v
func HashHex(v any) string {
	data, err := CanonicalJSON(v)
	if err != nil {
		data = []byte("null")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Hash12 returns the first 12 hex characters of HashHex
func Hash12(v any) string {
	return HashHex(v)[:12]
}

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	unsafeDirChars = regexp.MustCompile(`[^a-zA-Z0-9_\-{}]`)
	underscoreRun  = regexp.MustCompile(`_+`)
	nonAlnumRun    = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// SafeDir converts an operation key such as "GET /books/{id}" into a
// directory name such as "GET_books_{id}".
func SafeDir(operationKey string) string {
	s := whitespaceRun.ReplaceAllString(operationKey, "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = unsafeDirChars.ReplaceAllString(s, "_")
	s = underscoreRun.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// BaseMediaType strips parameters from a content type. Empty means JSON.
func BaseMediaType(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return "application/json"
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
}

// FileName builds "${status}_${mediaSlug}_${hash}.json". Media type
// parameters and case do not take part in the slug.
func FileName(status int, mediaType, hash string) string {
	slug := nonAlnumRun.ReplaceAllString(BaseMediaType(mediaType), "-")
	return strconv.Itoa(status) + "_" + slug + "_" + hash + ".json"
}

// RecordingPath is the storage path of a recording
func RecordingPath(operationKey string, status int, mediaType string, tuple MatchTuple) string {
	return SafeDir(operationKey) + "/" + FileName(status, mediaType, Hash12(tuple))
}
