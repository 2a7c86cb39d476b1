package parser

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/prasenjit/go-oasmock/internal/logging"
	"github.com/prasenjit/go-oasmock/internal/schema"
)

// Document is a loaded OpenAPI document. It is read-only after construction
// and safe for concurrent use.
type Document struct {
	root   *schema.Node
	logger *slog.Logger
}

// NewDocument wraps an already decoded root node
func NewDocument(root *schema.Node, logger *slog.Logger) *Document {
	if root == nil {
		root = schema.NewNode()
	}
	return &Document{root: root, logger: logging.OrNop(logger)}
}

// Root returns the whole document tree
func (d *Document) Root() *schema.Node { return d.root }

// Version returns the "openapi" version string, "3.0" when absent
func (d *Document) Version() string {
	raw, _ := d.root.Get("openapi")
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case int:
		return strconv.Itoa(v) + ".0"
	}
	return "3.0"
}

// Title returns info.title
func (d *Document) Title() string {
	return d.root.Node("info").String("title")
}

// Paths returns the paths object in declaration order
func (d *Document) Paths() *schema.Node {
	return d.root.Node("paths")
}

// Components returns the components object, or nil
func (d *Document) Components() *schema.Node {
	return d.root.Node("components")
}

// ResolveRef looks up a local JSON pointer such as "#/components/schemas/Pet".
// The second result is false when any segment is missing.
func (d *Document) ResolveRef(ref string) (any, bool) {
	if !strings.HasPrefix(ref, "#") {
		return nil, false
	}
	pointer := strings.TrimPrefix(ref, "#")
	if pointer == "" {
		return d.root, true
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, false
	}

	var cur any = d.root
	for _, segment := range strings.Split(pointer[1:], "/") {
		segment = strings.ReplaceAll(segment, "~1", "/")
		segment = strings.ReplaceAll(segment, "~0", "~")

		switch node := cur.(type) {
		case *schema.Node:
			next, ok := node.Get(segment)
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// ResolveSchema dereferences a single-level $ref. Nodes without $ref are
// returned unchanged. A dangling reference logs a warning and yields nil.
func (d *Document) ResolveSchema(node *schema.Node) *schema.Node {
	if node == nil {
		return nil
	}
	ref, ok := node.Get("$ref")
	if !ok {
		return node
	}
	refStr, _ := ref.(string)
	target, found := d.ResolveRef(refStr)
	if !found {
		d.logger.Warn("unresolvable $ref", "ref", refStr)
		return nil
	}
	resolved, isNode := target.(*schema.Node)
	if !isNode {
		d.logger.Warn("$ref does not point to an object", "ref", refStr)
		return nil
	}
	return resolved
}

// Deref follows $ref chains until a node without $ref is reached.
// Chains longer than maxRefHops are treated as unresolvable.
func (d *Document) Deref(node *schema.Node) *schema.Node {
	for i := 0; i < maxRefHops && node != nil; i++ {
		if !node.Has("$ref") {
			return node
		}
		node = d.ResolveSchema(node)
	}
	if node != nil && node.Has("$ref") {
		d.logger.Warn("$ref chain too long", "ref", node.String("$ref"))
		return nil
	}
	return node
}

const maxRefHops = 32
