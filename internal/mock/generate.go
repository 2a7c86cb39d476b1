package mock

import (
	"github.com/prasenjit/go-oasmock/internal/jsf"
	"github.com/prasenjit/go-oasmock/internal/models"
	"github.com/prasenjit/go-oasmock/internal/schema"
)

// generated is the outcome of generating one schema node. ok is false when
// no value was produced; example is true when an example was used anywhere
// in the subtree.
type generated struct {
	value   any
	ok      bool
	example bool
}

var absent = generated{}

// fieldByField walks a schema and fills it strategy by strategy. Object and
// array examples short-circuit their subtree; leaves go through the strategy
// chain. With an examples-only order a subtree without any example is absent.
func (s *Service) fieldByField(node *schema.Node, order []models.Strategy, version string, depth int) generated {
	if depth > jsf.MaxDepth {
		return absent
	}
	node = s.doc.Deref(node)
	if node == nil {
		return absent
	}

	examplesOnly := models.IsExamplesOnly(order)
	useExamples := models.ContainsStrategy(order, models.StrategySchemaExamples)

	switch schema.EffectiveType(node) {
	case schema.TypeObject:
		if useExamples {
			if v, ok := schema.Example(node); ok {
				return generated{value: v, ok: true, example: true}
			}
		}
		return s.object(node, order, version, depth, examplesOnly)

	case schema.TypeArray:
		if useExamples {
			if v, ok := schema.Example(node); ok {
				return generated{value: v, ok: true, example: true}
			}
		}
		items := node.Node("items")
		if items == nil {
			items = schema.NewNode()
		}
		item := s.fieldByField(items, order, version, depth+1)
		if !item.ok {
			if examplesOnly {
				return absent
			}
			if p := s.primitive(items, depth+1); p != nil {
				return generated{value: []any{p}, ok: true}
			}
			return generated{value: []any{}, ok: true}
		}
		return generated{value: []any{item.value}, ok: true, example: item.example}

	default:
		g := s.leaf(node, order, version)
		if examplesOnly && !g.example {
			return absent
		}
		return g
	}
}

func (s *Service) object(node *schema.Node, order []models.Strategy, version string, depth int, examplesOnly bool) generated {
	props := node.Node("properties")
	required := schema.Required(node)
	out := schema.NewNode()
	foundExample := false

	for _, key := range props.Keys() {
		raw := props.Node(key)
		prop := s.doc.Deref(raw)
		if raw == nil || raw.Bool("writeOnly") || prop.Bool("writeOnly") {
			continue
		}

		var g generated
		switch schema.EffectiveType(prop) {
		case schema.TypeObject, schema.TypeArray:
			g = s.fieldByField(prop, order, version, depth+1)
		default:
			if prop != nil {
				g = s.leaf(prop, order, version)
			}
		}

		if g.example {
			foundExample = true
		}
		switch {
		case g.ok:
			out.Set(key, g.value)
		case required[key]:
			out.Set(key, s.primitive(prop, depth+1))
		}
	}

	if examplesOnly && !foundExample {
		return absent
	}
	return generated{value: out, ok: true, example: foundExample}
}

// leaf tries each strategy meaningful at field granularity, in order
func (s *Service) leaf(node *schema.Node, order []models.Strategy, version string) generated {
	for _, strategy := range order {
		fn, ok := s.leaves[strategy]
		if !ok {
			continue
		}
		if v, ok := s.tryLeaf(strategy, fn, node, version); ok {
			return generated{value: v, ok: true, example: strategy == models.StrategySchemaExamples}
		}
	}
	return absent
}

// primitive synthesizes a deterministic value by declared type. It returns
// nil for null types and unresolvable nodes.
func (s *Service) primitive(node *schema.Node, depth int) any {
	if depth > jsf.MaxDepth {
		return nil
	}
	node = s.doc.Deref(node)
	if node == nil {
		return nil
	}

	if v, ok := node.Get("const"); ok {
		return v
	}
	if enum := node.Slice("enum"); len(enum) > 0 {
		return enum[0]
	}

	switch schema.EffectiveType(node) {
	case schema.TypeString:
		switch node.String("format") {
		case "date-time":
			return "1970-01-01T00:00:00.000Z"
		case "date":
			return "1970-01-01"
		case "uuid":
			return "00000000-0000-0000-0000-000000000000"
		}
		return "string"
	case schema.TypeNumber, schema.TypeInteger:
		return 0
	case schema.TypeBoolean:
		return false
	case schema.TypeNull:
		return nil
	case schema.TypeArray:
		items := node.Node("items")
		if items == nil {
			items = schema.NewNode()
		}
		return []any{s.primitive(items, depth+1)}
	default:
		out := schema.NewNode()
		props := node.Node("properties")
		for _, key := range props.Keys() {
			prop := props.Node(key)
			if prop.Bool("writeOnly") {
				continue
			}
			out.Set(key, s.primitive(prop, depth+1))
		}
		return out
	}
}
