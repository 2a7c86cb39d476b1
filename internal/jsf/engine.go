// Package jsf synthesizes random JSON values that satisfy a JSON Schema.
//
// Objects are returned as *schema.Node so that property order follows the
// declaration order of the schema.
package jsf

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/prasenjit/go-oasmock/internal/schema"
)

// FormatFunc generates a string for a custom format
type FormatFunc func(r Random) any

// Options tunes generation
type Options struct {
	// AlwaysFakeOptionals includes every optional property instead of a coin flip
	AlwaysFakeOptionals bool
	// UseDefaultValue returns a schema's default when present
	UseDefaultValue bool
	// MinItems and MaxItems bound arrays that do not declare their own bounds
	MinItems int
	MaxItems int
	// Formats registers custom string formats
	Formats map[string]FormatFunc
	// Extend runs once against the engine after construction
	Extend func(*Engine) error
}

// DefaultOptions returns the default tuning
func DefaultOptions() Options {
	return Options{
		UseDefaultValue: true,
		MinItems:        1,
		MaxItems:        10,
	}
}

// MaxDepth bounds schema recursion
const MaxDepth = 16

// ErrUnresolvedRef is returned when a $ref cannot be followed
var ErrUnresolvedRef = errors.New("unresolved $ref")

// Engine generates values. It is read-only after New and safe for concurrent use.
type Engine struct {
	opts    Options
	formats map[string]FormatFunc
	ignored map[string]bool
}

// New builds an engine
func New(opts Options) (*Engine, error) {
	if opts.MinItems < 0 || opts.MaxItems < 0 {
		return nil, fmt.Errorf("jsf: negative array bounds")
	}
	if opts.MaxItems > 0 && opts.MinItems > opts.MaxItems {
		return nil, fmt.Errorf("jsf: minItems %d exceeds maxItems %d", opts.MinItems, opts.MaxItems)
	}

	e := &Engine{
		opts:    opts,
		formats: make(map[string]FormatFunc),
		ignored: make(map[string]bool),
	}
	for name, fn := range opts.Formats {
		e.Format(name, fn)
	}
	if opts.Extend != nil {
		if err := opts.Extend(e); err != nil {
			return nil, fmt.Errorf("jsf: extend: %w", err)
		}
	}
	return e, nil
}

// Format registers a custom string format
func (e *Engine) Format(name string, fn FormatFunc) {
	e.formats[name] = fn
}

// IgnoreProperties drops the named properties from every generated object
func (e *Engine) IgnoreProperties(names ...string) {
	for _, n := range names {
		e.ignored[n] = true
	}
}

// Options returns the engine tuning
func (e *Engine) Options() Options { return e.opts }

// Generate produces a value for root. Local references ("#/...") resolve
// against root itself, so components must be bundled onto it beforehand.
// A nil Random uses the global math/rand source.
func (e *Engine) Generate(root *schema.Node, rnd Random) (any, error) {
	if rnd == nil {
		rnd = Unseeded()
	}
	g := &generation{engine: e, root: root, rnd: rnd}
	return g.generate(root, 0)
}

// generation carries the state of one Generate call
type generation struct {
	engine *Engine
	root   *schema.Node
	rnd    Random
}

func (g *generation) generate(node *schema.Node, depth int) (any, error) {
	if node == nil || depth > MaxDepth {
		return nil, nil
	}

	if ref, ok := node.Get("$ref"); ok {
		target, err := g.resolve(fmt.Sprint(ref))
		if err != nil {
			return nil, err
		}
		return g.generate(target, depth+1)
	}

	if v, ok := node.Get("const"); ok {
		return schema.CloneValue(v), nil
	}
	if enum := node.Slice("enum"); len(enum) > 0 {
		return schema.CloneValue(enum[intn(g.rnd, len(enum))]), nil
	}
	if g.engine.opts.UseDefaultValue {
		if v, ok := node.Get("default"); ok {
			return schema.CloneValue(v), nil
		}
	}

	if all := node.Slice("allOf"); len(all) > 0 {
		return g.allOf(node, all, depth)
	}
	if one := node.Slice("oneOf"); len(one) > 0 {
		return g.pick(one, depth)
	}
	if anyOf := node.Slice("anyOf"); len(anyOf) > 0 {
		return g.pick(anyOf, depth)
	}

	switch g.pickType(node) {
	case schema.TypeObject:
		return g.object(node, depth)
	case schema.TypeArray:
		return g.array(node, depth)
	case schema.TypeString:
		return g.string(node), nil
	case schema.TypeInteger:
		return g.integer(node), nil
	case schema.TypeNumber:
		return g.number(node), nil
	case schema.TypeBoolean:
		return g.rnd.Float64() < 0.5, nil
	}
	return nil, nil
}

// resolve follows a local JSON pointer against the root node
func (g *generation) resolve(ref string) (*schema.Node, error) {
	if !strings.HasPrefix(ref, "#") {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedRef, ref)
	}
	var cur any = g.root
	pointer := strings.TrimPrefix(ref, "#")
	if pointer != "" {
		for _, segment := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
			segment = strings.ReplaceAll(segment, "~1", "/")
			segment = strings.ReplaceAll(segment, "~0", "~")
			n, ok := cur.(*schema.Node)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnresolvedRef, ref)
			}
			if cur, ok = n.Get(segment); !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnresolvedRef, ref)
			}
		}
	}
	target, ok := cur.(*schema.Node)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedRef, ref)
	}
	return target, nil
}

func (g *generation) pickType(node *schema.Node) string {
	types := schema.Types(node)
	switch len(types) {
	case 0:
		if node.Has("properties") {
			return schema.TypeObject
		}
		if node.Has("items") {
			return schema.TypeArray
		}
		return ""
	case 1:
		return types[0]
	}
	return types[intn(g.rnd, len(types))]
}

func (g *generation) pick(variants []any, depth int) (any, error) {
	sub, _ := variants[intn(g.rnd, len(variants))].(*schema.Node)
	return g.generate(sub, depth+1)
}

// allOf merges object results; for non-object results the last one wins
func (g *generation) allOf(node *schema.Node, all []any, depth int) (any, error) {
	merged := schema.NewNode()
	var last any
	isObject := false

	for _, item := range all {
		sub, _ := item.(*schema.Node)
		v, err := g.generate(sub, depth+1)
		if err != nil {
			return nil, err
		}
		if obj, ok := v.(*schema.Node); ok {
			isObject = true
			for _, k := range obj.Keys() {
				val, _ := obj.Get(k)
				merged.Set(k, val)
			}
			continue
		}
		if v != nil {
			last = v
		}
	}

	if node.Has("properties") {
		rest := node.Clone()
		rest.Delete("allOf")
		v, err := g.object(rest, depth)
		if err != nil {
			return nil, err
		}
		if obj, ok := v.(*schema.Node); ok {
			isObject = true
			for _, k := range obj.Keys() {
				val, _ := obj.Get(k)
				merged.Set(k, val)
			}
		}
	}

	if isObject {
		return merged, nil
	}
	return last, nil
}

func (g *generation) object(node *schema.Node, depth int) (any, error) {
	out := schema.NewNode()
	props := node.Node("properties")
	required := schema.Required(node)

	for _, key := range props.Keys() {
		if g.engine.ignored[key] {
			continue
		}
		if !required[key] && !g.engine.opts.AlwaysFakeOptionals && g.rnd.Float64() >= 0.5 {
			continue
		}
		v, err := g.generate(props.Node(key), depth+1)
		if err != nil {
			return nil, err
		}
		if v == nil && !required[key] {
			continue
		}
		out.Set(key, v)
	}
	return out, nil
}

func (g *generation) array(node *schema.Node, depth int) (any, error) {
	// Tuple form
	if tuple := node.Slice("items"); tuple != nil {
		out := make([]any, 0, len(tuple))
		for _, item := range tuple {
			sub, _ := item.(*schema.Node)
			v, err := g.generate(sub, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	lo, hi := g.engine.opts.MinItems, g.engine.opts.MaxItems
	if n, ok := intValue(node, "minItems"); ok {
		lo = n
	}
	if n, ok := intValue(node, "maxItems"); ok {
		hi = n
	} else if hi == 0 {
		hi = lo
	}
	if max := g.engine.opts.MaxItems; max > 0 && hi > max && lo <= max {
		hi = max
	}
	if hi < lo {
		hi = lo
	}

	count := between(g.rnd, lo, hi)
	items := node.Node("items")
	out := make([]any, 0, count)
	for i := 0; i < count; i++ {
		v, err := g.generate(items, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (g *generation) string(node *schema.Node) any {
	if format := node.String("format"); format != "" {
		if fn, ok := g.engine.formats[format]; ok {
			return fn(g.rnd)
		}
		if v, ok := builtinFormat(format, g.rnd); ok {
			return v
		}
	}

	lo, hasMin := intValue(node, "minLength")
	hi, hasMax := intValue(node, "maxLength")
	if !hasMin {
		lo = 1
	}
	if !hasMax {
		hi = lo + 15
	}
	if hi < lo {
		hi = lo
	}
	return randomWords(g.rnd, between(g.rnd, lo, hi))
}

func (g *generation) integer(node *schema.Node) any {
	lo, hi := g.bounds(node, -1000, 1000)
	ilo, ihi := int64(math.Ceil(lo)), int64(math.Floor(hi))
	if m, ok := floatValue(node, "multipleOf"); ok && m >= 1 {
		step := int64(m)
		first := ceilDiv(ilo, step)
		last := floorDiv(ihi, step)
		if last < first {
			return first * step
		}
		return (first + int64(g.rnd.Float64()*float64(last-first+1))) * step
	}
	if ihi < ilo {
		return ilo
	}
	return ilo + int64(g.rnd.Float64()*float64(ihi-ilo+1))
}

func (g *generation) number(node *schema.Node) any {
	lo, hi := g.bounds(node, -1000, 1000)
	if m, ok := floatValue(node, "multipleOf"); ok && m > 0 {
		first := math.Ceil(lo / m)
		last := math.Floor(hi / m)
		if last < first {
			return first * m
		}
		return (first + math.Floor(g.rnd.Float64()*(last-first+1))) * m
	}
	v := lo + g.rnd.Float64()*(hi-lo)
	return math.Round(v*100) / 100
}

// bounds applies minimum/maximum and both exclusive forms. OpenAPI 3.0 uses
// booleans for exclusiveMinimum/Maximum; JSON Schema 2020-12 uses numbers.
func (g *generation) bounds(node *schema.Node, lo, hi float64) (float64, float64) {
	isInt := schema.EffectiveType(node) == schema.TypeInteger
	step := 0.01
	if isInt {
		step = 1
	}

	minSet, maxSet := false, false
	if v, ok := floatValue(node, "minimum"); ok {
		lo, minSet = v, true
		if node.Bool("exclusiveMinimum") {
			lo += step
		}
	}
	if v, ok := floatValue(node, "exclusiveMinimum"); ok {
		lo, minSet = v+step, true
	}
	if v, ok := floatValue(node, "maximum"); ok {
		hi, maxSet = v, true
		if node.Bool("exclusiveMaximum") {
			hi -= step
		}
	}
	if v, ok := floatValue(node, "exclusiveMaximum"); ok {
		hi, maxSet = v-step, true
	}

	if minSet && !maxSet && hi < lo {
		hi = lo + 1000
	}
	if maxSet && !minSet && lo > hi {
		lo = hi - 1000
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func intValue(node *schema.Node, key string) (int, bool) {
	f, ok := floatValue(node, key)
	return int(f), ok
}

func floatValue(node *schema.Node, key string) (float64, bool) {
	v, ok := node.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a > 0) == (b > 0) {
		q++
	}
	return q
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
