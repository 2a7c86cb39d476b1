package mock

import (
	"fmt"
	"strings"

	"github.com/prasenjit/go-oasmock/internal/jsf"
	"github.com/prasenjit/go-oasmock/internal/models"
	"github.com/prasenjit/go-oasmock/internal/schema"
)

// leafFunc produces a value for one schema node. ok is false when the
// strategy has nothing to offer for the node.
type leafFunc func(node *schema.Node, version string) (value any, ok bool, err error)

// tryLeaf runs one strategy. Errors and panics fall through to the next
// strategy and are only logged at debug level.
func (s *Service) tryLeaf(strategy models.Strategy, fn leafFunc, node *schema.Node, version string) (value any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("strategy panicked", "strategy", strategy, "error", fmt.Sprint(r))
			value, ok = nil, false
		}
	}()

	v, ok, err := fn(node, version)
	if err != nil {
		s.logger.Debug("strategy failed", "strategy", strategy, "error", err)
		return nil, false
	}
	return v, ok
}

func (s *Service) schemaExampleLeaf(node *schema.Node, _ string) (any, bool, error) {
	v, ok := schema.Example(node)
	return v, ok, nil
}

func (s *Service) primitiveLeaf(node *schema.Node, _ string) (any, bool, error) {
	v := s.primitive(node, 0)
	return v, v != nil, nil
}

func (s *Service) jsfLeaf(node *schema.Node, version string) (any, bool, error) {
	synth := s.synthesizer()
	if synth == nil {
		return nil, false, nil
	}
	v, err := synth.Generate(s.prepare(node, version), s.random())
	if err != nil {
		return nil, false, err
	}
	return v, v != nil, nil
}

// synthesizer builds the generation engine once. A failed build is logged
// and leaves the jsf strategy unavailable.
func (s *Service) synthesizer() Synthesizer {
	s.synthOnce.Do(func() {
		if s.synth != nil {
			return
		}
		engine, err := jsf.New(s.config.JSF)
		if err != nil {
			s.logger.Error("failed to initialize generation engine", "error", err)
			return
		}
		s.synth = engine
		s.logger.Debug("generation engine initialized")
	})
	return s.synth
}

// random returns a fresh generator per call so that a configured seed yields
// identical output for identical schemas
func (s *Service) random() jsf.Random {
	if s.config.Seed == "" {
		return jsf.Unseeded()
	}
	return jsf.NewSeeded(jsf.ParseSeed(s.config.Seed))
}

// prepare copies node for generation: writeOnly markers are stripped, 3.0
// nullable is rewritten as a null type, and the document's components are
// bundled onto the copy so local references resolve.
func (s *Service) prepare(node *schema.Node, version string) *schema.Node {
	root := node.Clone()
	if root == nil {
		root = schema.NewNode()
	}

	schema.Walk(root, func(n *schema.Node) {
		n.Delete("writeOnly")
	})
	if !strings.HasPrefix(version, "3.1") {
		schema.Walk(root, normalizeNullable)
	}

	components := s.doc.Components()
	if components.Len() > 0 {
		bundled := root.Node("components")
		if bundled == nil {
			bundled = schema.NewNode()
		}
		for _, k := range components.Keys() {
			v, _ := components.Get(k)
			bundled.Set(k, schema.CloneValue(v))
		}
		root.Set("components", bundled)
	}
	return root
}

// normalizeNullable rewrites "nullable: true" as a type union with null, or
// an anyOf alternative when no type is declared. The keyword is removed.
func normalizeNullable(n *schema.Node) {
	nullable, ok := n.Get("nullable")
	if !ok {
		return
	}
	if nullable == true {
		t, hasType := n.Get("type")
		switch typ := t.(type) {
		case []any:
			if !containsValue(typ, schema.TypeNull) {
				n.Set("type", append(append([]any(nil), typ...), schema.TypeNull))
			}
		case string:
			n.Set("type", []any{typ, schema.TypeNull})
		default:
			if !hasType {
				anyOf := append([]any(nil), n.Slice("anyOf")...)
				null := schema.NewNode()
				null.Set("type", schema.TypeNull)
				n.Set("anyOf", append(anyOf, null))
			}
		}
	}
	n.Delete("nullable")
}

func containsValue(list []any, want any) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
