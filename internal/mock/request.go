package mock

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/prasenjit/go-oasmock/internal/models"
	"github.com/prasenjit/go-oasmock/internal/schema"
	"github.com/prasenjit/go-oasmock/internal/storage"
	"github.com/prasenjit/go-oasmock/internal/validation"
)

// ValidateRequest checks the path, query and header parameters and the body
// of req against op. It returns nil when request validation is off.
// Parameter values are coerced to the declared scalar type before checking.
// Schemas that fail to compile are logged and skipped.
func (s *Service) ValidateRequest(req *models.Request, op *models.ResolvedOperation) []validation.Issue {
	if !s.config.ValidateRequests || s.validator == nil || op == nil {
		return nil
	}

	var issues []validation.Issue
	for _, p := range op.Parameters {
		issues = append(issues, s.validateParameter(req, op, s.doc.Deref(p))...)
	}
	return append(issues, s.validateBody(req, op)...)
}

func (s *Service) validateParameter(req *models.Request, op *models.ResolvedOperation, p *schema.Node) []validation.Issue {
	if p == nil {
		return nil
	}
	name, in := p.String("name"), p.String("in")

	var raw []string
	switch in {
	case "path":
		if v, ok := op.PathParams[name]; ok {
			raw = []string{v}
		}
	case "query":
		raw = req.Query[name]
	case "header":
		switch strings.ToLower(name) {
		case "accept", "content-type", "authorization":
			return nil
		}
		raw = req.Header.Values(name)
	default:
		return nil
	}

	field := in + "." + name
	if len(raw) == 0 || (len(raw) == 1 && raw[0] == "") {
		if p.Bool("required") || in == "path" {
			return []validation.Issue{{Field: field, Message: "is required"}}
		}
		return nil
	}

	sch := s.doc.Deref(p.Node("schema"))
	if sch == nil {
		return nil
	}
	value := s.coerce(sch, raw)
	return s.check(op, field, "param "+field, sch, value)
}

func (s *Service) validateBody(req *models.Request, op *models.ResolvedOperation) []validation.Issue {
	rb := s.doc.Deref(op.RequestBody)
	if rb == nil {
		return nil
	}
	if len(bytes.TrimSpace(req.Body)) == 0 {
		if rb.Bool("required") {
			return []validation.Issue{{Field: "body", Message: "request body is required"}}
		}
		return nil
	}

	content := rb.Node("content")
	if content.Len() == 0 {
		return nil
	}
	mediaType := storage.BaseMediaType(req.Header.Get("Content-Type"))
	media := content.Node(mediaType)
	if media == nil {
		return []validation.Issue{{Field: "body", Message: "unsupported media type " + mediaType}}
	}

	sch := media.Node("schema")
	if sch == nil || !storage.IsJSONMediaType(mediaType) {
		return nil
	}
	if !json.Valid(req.Body) {
		return []validation.Issue{{Field: "body", Message: "body is not valid JSON"}}
	}
	value, err := schema.Decode(req.Body)
	if err != nil {
		return []validation.Issue{{Field: "body", Message: err.Error()}}
	}
	return s.check(op, "body", "body "+mediaType, sch, value)
}

// check validates value against sch and prefixes issue fields with field
func (s *Service) check(op *models.ResolvedOperation, field, what string, sch *schema.Node, value any) []validation.Issue {
	key := op.Key() + " request " + what
	found, err := s.validator.Validate(key, s.prepare(sch, op.OpenAPIVersion), op.OpenAPIVersion, value)
	if err != nil {
		s.logger.Warn("failed to compile request schema", "operation", op.Key(), "field", field, "error", err)
		return nil
	}
	for i := range found {
		if found[i].Field == "" {
			found[i].Field = field
		} else {
			found[i].Field = field + "." + found[i].Field
		}
	}
	return found
}

// coerce turns raw parameter strings into the declared type. Arrays take
// every occurrence, or a single comma-separated value. Values that do not
// parse stay strings and fail validation.
func (s *Service) coerce(sch *schema.Node, raw []string) any {
	if schema.EffectiveType(sch) != schema.TypeArray {
		return coerceScalar(schema.EffectiveType(sch), raw[0])
	}
	items := s.doc.Deref(sch.Node("items"))
	itemType := ""
	if items != nil {
		itemType = schema.EffectiveType(items)
	}
	if len(raw) == 1 {
		raw = strings.Split(raw[0], ",")
	}
	out := make([]any, len(raw))
	for i, v := range raw {
		out[i] = coerceScalar(itemType, v)
	}
	return out
}

func coerceScalar(typ, v string) any {
	switch typ {
	case schema.TypeInteger:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case schema.TypeNumber:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case schema.TypeBoolean:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return v
}
