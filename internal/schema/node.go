// Package schema holds the order-preserving tree that every OpenAPI fragment is
// decoded into. Mapping keys keep their document order so that "first declared"
// rules (paths, statuses, media types, properties) can be honoured.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Node is a mapping whose keys keep their declaration order.
// Values are *Node, []any, string, int, int64, uint64, float64, bool or nil.
// JSON integers too large for uint64 stay json.Number.
type Node struct {
	keys   []string
	values map[string]any
}

// NewNode creates an empty node
func NewNode() *Node {
	return &Node{values: make(map[string]any)}
}

// FromMap builds a node from a plain map. Keys are sorted since Go maps carry no order.
func FromMap(m map[string]any) *Node {
	n := NewNode()
	for _, k := range sortedKeys(m) {
		n.Set(k, FromValue(m[k]))
	}
	return n
}

// FromValue converts plain Go values (maps, slices) into tree values.
func FromValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return FromMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = FromValue(item)
		}
		return out
	default:
		return v
	}
}

// Set stores a value, appending the key if it is new
func (n *Node) Set(key string, value any) {
	if n.values == nil {
		n.values = make(map[string]any)
	}
	if _, ok := n.values[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.values[key] = value
}

// Get returns the value for key and whether the key is present.
// A present key may hold nil (an explicit YAML/JSON null).
func (n *Node) Get(key string) (any, bool) {
	if n == nil || n.values == nil {
		return nil, false
	}
	v, ok := n.values[key]
	return v, ok
}

// Has reports whether key is present
func (n *Node) Has(key string) bool {
	_, ok := n.Get(key)
	return ok
}

// Delete removes key, keeping the order of the remaining keys
func (n *Node) Delete(key string) {
	if n == nil || n.values == nil {
		return
	}
	if _, ok := n.values[key]; !ok {
		return
	}
	delete(n.values, key)
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i:i], n.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in declaration order
func (n *Node) Keys() []string {
	if n == nil {
		return nil
	}
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

// Len returns the number of keys
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	return len(n.keys)
}

// Node returns the child mapping stored under key, or nil
func (n *Node) Node(key string) *Node {
	v, _ := n.Get(key)
	child, _ := v.(*Node)
	return child
}

// String returns the string stored under key, or ""
func (n *Node) String(key string) string {
	v, _ := n.Get(key)
	s, _ := v.(string)
	return s
}

// Bool returns the bool stored under key, or false
func (n *Node) Bool(key string) bool {
	v, _ := n.Get(key)
	b, _ := v.(bool)
	return b
}

// Slice returns the sequence stored under key, or nil
func (n *Node) Slice(key string) []any {
	v, _ := n.Get(key)
	s, _ := v.([]any)
	return s
}

// Clone returns a deep copy
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		keys:   make([]string, len(n.keys)),
		values: make(map[string]any, len(n.values)),
	}
	copy(out.keys, n.keys)
	for k, v := range n.values {
		out.values[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a tree value
func CloneValue(v any) any {
	switch val := v.(type) {
	case *Node:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Plain converts a tree value into plain Go values (map[string]any, []any).
// It is used whenever a value leaves the spec, e.g. an example returned as a body.
func Plain(v any) any {
	switch val := v.(type) {
	case *Node:
		if val == nil {
			return nil
		}
		out := make(map[string]any, len(val.keys))
		for _, k := range val.keys {
			out[k] = Plain(val.values[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Plain(item)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON writes the mapping with keys in declaration order
func (n *Node) MarshalJSON() ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range n.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(n.values[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML decodes a mapping node. JSON documents decode the same way.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	v, err := decode(value)
	if err != nil {
		return err
	}
	decoded, ok := v.(*Node)
	if !ok {
		return fmt.Errorf("expected a mapping, got %s", kindName(value))
	}
	*n = *decoded
	return nil
}

// Decode parses YAML or JSON bytes into a tree value. Input that is valid
// JSON goes through encoding/json, everything else is read as YAML. In both
// cases a repeated mapping key keeps its first position and its last value.
func Decode(data []byte) (any, error) {
	if json.Valid(data) {
		return decodeJSON(data)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return decode(&doc)
}

func decode(value *yaml.Node) (any, error) {
	switch value.Kind {
	case yaml.DocumentNode:
		if len(value.Content) == 0 {
			return nil, nil
		}
		return decode(value.Content[0])
	case yaml.AliasNode:
		return decode(value.Alias)
	case yaml.MappingNode:
		n := NewNode()
		for i := 0; i+1 < len(value.Content); i += 2 {
			keyNode := value.Content[i]
			if keyNode.Kind == yaml.ScalarNode && keyNode.Tag == "!!merge" {
				merged, err := decode(value.Content[i+1])
				if err != nil {
					return nil, err
				}
				if m, ok := merged.(*Node); ok {
					for _, k := range m.keys {
						if !n.Has(k) {
							n.Set(k, m.values[k])
						}
					}
				}
				continue
			}
			child, err := decode(value.Content[i+1])
			if err != nil {
				return nil, err
			}
			n.Set(keyNode.Value, child)
		}
		return n, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(value.Content))
		for _, item := range value.Content {
			child, err := decode(item)
			if err != nil {
				return nil, err
			}
			out = append(out, child)
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := value.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", value.Line, err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported yaml node kind %d", value.Kind)
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return decodeJSONValue(dec)
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			n := NewNode()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("offset %d: expected an object key", dec.InputOffset())
				}
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				n.Set(key, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			out := make([]any, 0)
			for dec.More() {
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				out = append(out, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return out, nil
		}
		return nil, fmt.Errorf("offset %d: unexpected %q", dec.InputOffset(), t)
	case json.Number:
		return jsonNumber(t), nil
	}
	return tok, nil
}

// jsonNumber narrows a number the way the YAML path does: int, then int64,
// then uint64, then float64.
func jsonNumber(num json.Number) any {
	s := num.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 0); err == nil {
			return int(i)
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u
		}
		return num
	}
	if f, err := num.Float64(); err == nil {
		return f
	}
	return num
}

func kindName(value *yaml.Node) string {
	switch value.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	}
	return "mapping"
}
