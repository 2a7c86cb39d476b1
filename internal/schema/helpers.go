package schema

import "sort"

// Schema type names
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeNull    = "null"
)

// Types returns the declared type list. A single string type yields a one-element slice.
func Types(n *Node) []string {
	v, ok := n.Get("type")
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// EffectiveType returns the explicit type, or "object" when properties are present,
// or "array" when items are present. For type unions the first non-null entry wins.
func EffectiveType(n *Node) string {
	types := Types(n)
	for _, t := range types {
		if t != TypeNull {
			return t
		}
	}
	if len(types) > 0 {
		return types[0]
	}
	if n.Has("properties") {
		return TypeObject
	}
	if n.Has("items") {
		return TypeArray
	}
	return ""
}

// Required returns the required property names as a set
func Required(n *Node) map[string]bool {
	out := make(map[string]bool)
	for _, item := range n.Slice("required") {
		if s, ok := item.(string); ok {
			out[s] = true
		}
	}
	return out
}

// Example returns examples[0] when examples is a non-empty sequence, else example when present.
func Example(n *Node) (any, bool) {
	if examples := n.Slice("examples"); len(examples) > 0 {
		return examples[0], true
	}
	return n.Get("example")
}

// Walk calls fn for n and every mapping nested below it, depth first.
func Walk(v any, fn func(*Node)) {
	switch val := v.(type) {
	case *Node:
		if val == nil {
			return
		}
		fn(val)
		for _, k := range val.keys {
			Walk(val.values[k], fn)
		}
	case []any:
		for _, item := range val {
			Walk(item, fn)
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
