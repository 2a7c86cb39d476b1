// Package resolver maps inbound requests to operations declared in an OpenAPI document.
package resolver

import (
	"path"
	"regexp"
	"strings"

	"github.com/prasenjit/go-oasmock/internal/models"
	"github.com/prasenjit/go-oasmock/internal/parser"
	"github.com/prasenjit/go-oasmock/internal/schema"
)

// HTTP methods an OpenAPI path item may declare
var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

var paramPattern = regexp.MustCompile(`\\\{([^}]+)\\\}`)

// route is one compiled path template
type route struct {
	template  string
	fullPath  string
	pattern   *regexp.Regexp
	paramKeys []string
	item      *schema.Node
}

// Resolver matches requests against the document's path templates.
// Routes are compiled once and are read-only afterwards.
type Resolver struct {
	doc      *parser.Document
	basePath string
	routes   []*route // declaration order
}

// New compiles every path template of doc
func New(doc *parser.Document, basePath string) *Resolver {
	r := &Resolver{
		doc:      doc,
		basePath: parser.NormalizeBasePath(basePath),
	}

	paths := doc.Paths()
	for _, tmpl := range paths.Keys() {
		item := doc.Deref(paths.Node(tmpl))
		if item == nil {
			continue
		}
		pattern, keys := buildPathPattern(r.basePath, tmpl)
		if pattern == nil {
			continue
		}
		r.routes = append(r.routes, &route{
			template:  tmpl,
			fullPath:  path.Join("/", r.basePath, tmpl),
			pattern:   pattern,
			paramKeys: keys,
			item:      item,
		})
	}

	return r
}

// buildPathPattern converts an OpenAPI path template to an anchored regex
func buildPathPattern(basePath, pathTemplate string) (*regexp.Regexp, []string) {
	fullPath := basePath + pathTemplate

	var paramKeys []string

	escaped := regexp.QuoteMeta(fullPath)
	result := paramPattern.ReplaceAllStringFunc(escaped, func(match string) string {
		paramKeys = append(paramKeys, strings.ReplaceAll(match[2:len(match)-2], `\`, ""))
		return `([^/]+)`
	})

	pattern, err := regexp.Compile("^" + result + "$")
	if err != nil {
		return nil, nil
	}
	return pattern, paramKeys
}

// Resolve finds the operation for method and rawPath. The first declared
// template that matches wins; if that path item lacks the method the result
// is nil. A query string on rawPath is ignored.
func (r *Resolver) Resolve(method, rawPath string) *models.ResolvedOperation {
	if i := strings.IndexByte(rawPath, '?'); i >= 0 {
		rawPath = rawPath[:i]
	}

	for _, rt := range r.routes {
		matches := rt.pattern.FindStringSubmatch(rawPath)
		if matches == nil {
			continue
		}

		op := rt.item.Node(strings.ToLower(method))
		if op == nil {
			return nil
		}

		params := make(map[string]string, len(rt.paramKeys))
		for i, key := range rt.paramKeys {
			if i+1 < len(matches) {
				params[key] = matches[i+1]
			}
		}

		return &models.ResolvedOperation{
			OperationID:    op.String("operationId"),
			OpenAPIVersion: r.doc.Version(),
			Method:         strings.ToUpper(method),
			PathTemplate:   rt.template,
			Responses:      op.Node("responses"),
			RequestBody:    op.Node("requestBody"),
			Parameters:     r.parameters(rt.item, op),
			PathParams:     params,
		}
	}

	return nil
}

// Lookup returns the operation declared for method on an exact path template
func (r *Resolver) Lookup(method, pathTemplate string) *models.ResolvedOperation {
	for _, rt := range r.routes {
		if rt.template != pathTemplate {
			continue
		}
		op := rt.item.Node(strings.ToLower(method))
		if op == nil {
			return nil
		}
		return &models.ResolvedOperation{
			OperationID:    op.String("operationId"),
			OpenAPIVersion: r.doc.Version(),
			Method:         strings.ToUpper(method),
			PathTemplate:   rt.template,
			Responses:      op.Node("responses"),
			RequestBody:    op.Node("requestBody"),
			Parameters:     r.parameters(rt.item, op),
		}
	}
	return nil
}

// parameters merges path item and operation parameters. An operation
// parameter replaces the path item one with the same name and location.
func (r *Resolver) parameters(item, op *schema.Node) []*schema.Node {
	var out []*schema.Node
	index := make(map[string]int)
	for _, list := range [][]any{item.Slice("parameters"), op.Slice("parameters")} {
		for _, raw := range list {
			p, ok := raw.(*schema.Node)
			if !ok {
				continue
			}
			resolved := r.doc.Deref(p)
			if resolved == nil {
				continue
			}
			id := resolved.String("in") + ":" + resolved.String("name")
			if i, seen := index[id]; seen {
				out[i] = p
				continue
			}
			index[id] = len(out)
			out = append(out, p)
		}
	}
	return out
}

// Operations lists every declared operation in declaration order
func (r *Resolver) Operations() []models.Operation {
	var ops []models.Operation
	for _, rt := range r.routes {
		for _, key := range rt.item.Keys() {
			if !httpMethods[key] {
				continue
			}
			op := rt.item.Node(key)
			if op == nil {
				continue
			}
			ops = append(ops, r.summarize(rt, key, op))
		}
	}
	return ops
}

func (r *Resolver) summarize(rt *route, method string, op *schema.Node) models.Operation {
	summary := models.Operation{
		Key:         models.OperationKey(method, rt.template),
		Method:      strings.ToUpper(method),
		Path:        rt.template,
		FullPath:    rt.fullPath,
		OperationID: op.String("operationId"),
		Summary:     op.String("summary"),
		Statuses:    []string{},
		MediaTypes:  []string{},
	}
	for _, tag := range op.Slice("tags") {
		if s, ok := tag.(string); ok {
			summary.Tags = append(summary.Tags, s)
		}
	}

	responses := op.Node("responses")
	summary.Statuses = append(summary.Statuses, responses.Keys()...)
	if keys := responses.Keys(); len(keys) > 0 {
		first := r.doc.Deref(responses.Node(keys[0]))
		summary.MediaTypes = append(summary.MediaTypes, first.Node("content").Keys()...)
	}
	return summary
}
