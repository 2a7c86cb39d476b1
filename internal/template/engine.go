// Package template renders request-dependent values such as dynamic mock
// delays ("{{query.delay}}", "{{random.int(50,200)}}").
package template

import (
	"fmt"
	mathrand "math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/prasenjit/go-oasmock/internal/models"
)

// Engine processes template strings with variable substitution.
// It is safe for concurrent use.
type Engine struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

// NewEngine creates a new template engine
func NewEngine() *Engine {
	now := uint64(time.Now().UnixNano())
	return &Engine{
		rng: mathrand.New(mathrand.NewPCG(now, now>>7)),
	}
}

// NewSeededEngine creates an engine whose random values are reproducible
func NewSeededEngine(seed uint64) *Engine {
	return &Engine{
		rng: mathrand.New(mathrand.NewPCG(seed, seed)),
	}
}

// Context contains all data available for template rendering
type Context struct {
	PathParams  map[string]string
	QueryParams map[string][]string
	Headers     map[string][]string
	Body        string
}

// NewContext builds a template context from an intercepted request
func NewContext(req *models.Request) *Context {
	if req == nil {
		return &Context{}
	}
	return &Context{
		PathParams:  req.PathParams,
		QueryParams: req.Query,
		Headers:     req.Header,
		Body:        string(req.Body),
	}
}

// templateVarPattern matches template variables like {{variable}}
var templateVarPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// IsTemplate reports whether s contains at least one variable
func IsTemplate(s string) bool {
	return templateVarPattern.MatchString(s)
}

// Process replaces every variable in template
func (e *Engine) Process(template string, ctx *Context) string {
	if ctx == nil {
		ctx = &Context{}
	}
	return templateVarPattern.ReplaceAllStringFunc(template, func(match string) string {
		varName := strings.TrimSpace(match[2 : len(match)-2])
		return e.resolveVariable(varName, ctx)
	})
}

// Duration renders expr and reads the result as milliseconds, or as a Go
// duration such as "1.5s". Unparseable and negative results are zero.
func (e *Engine) Duration(expr string, ctx *Context) time.Duration {
	rendered := strings.TrimSpace(e.Process(expr, ctx))
	if rendered == "" {
		return 0
	}
	if ms, err := strconv.ParseFloat(rendered, 64); err == nil {
		if ms <= 0 {
			return 0
		}
		return time.Duration(ms * float64(time.Millisecond))
	}
	if d, err := time.ParseDuration(rendered); err == nil && d > 0 {
		return d
	}
	return 0
}

// DelayFunc compiles a delay expression. A plain number of milliseconds or a
// Go duration gives a fixed delay; anything with variables is evaluated per
// request. An empty expression means no delay.
func (e *Engine) DelayFunc(expr string) (models.DelayFunc, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	if IsTemplate(expr) {
		return func(req *models.Request) time.Duration {
			return e.Duration(expr, NewContext(req))
		}, nil
	}

	if ms, err := strconv.ParseFloat(expr, 64); err == nil {
		if ms < 0 {
			return nil, fmt.Errorf("negative delay %q", expr)
		}
		return models.FixedDelay(time.Duration(ms * float64(time.Millisecond))), nil
	}
	if d, err := time.ParseDuration(expr); err == nil {
		if d < 0 {
			return nil, fmt.Errorf("negative delay %q", expr)
		}
		return models.FixedDelay(d), nil
	}
	return nil, fmt.Errorf("invalid delay %q", expr)
}

// resolveVariable resolves a single variable to its value
func (e *Engine) resolveVariable(varName string, ctx *Context) string {
	// both "path.id" and ".path.id" are valid
	varName = strings.TrimPrefix(varName, ".")

	source, key, _ := strings.Cut(varName, ".")

	switch source {
	case "path":
		if key != "" && ctx.PathParams != nil {
			if val, ok := ctx.PathParams[key]; ok {
				return val
			}
		}
	case "query":
		if key != "" && ctx.QueryParams != nil {
			if vals, ok := ctx.QueryParams[key]; ok && len(vals) > 0 {
				return vals[0]
			}
		}
	case "header":
		if key != "" && ctx.Headers != nil {
			// Headers are case-insensitive
			for k, vals := range ctx.Headers {
				if strings.EqualFold(k, key) && len(vals) > 0 {
					return vals[0]
				}
			}
		}
	case "body":
		if key != "" && ctx.Body != "" {
			result := gjson.Get(ctx.Body, key)
			if result.Exists() {
				return result.String()
			}
		}
	case "random":
		return e.resolveRandom(key)
	}

	return ""
}

// resolveRandom resolves random value generators
func (e *Engine) resolveRandom(key string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case key == "uuid":
		return uuid.New().String()
	case key == "int":
		return strconv.Itoa(e.rng.IntN(1000))
	case strings.HasPrefix(key, "int("):
		params := parseParams(key, "int")
		if len(params) == 2 {
			lo, err1 := strconv.Atoi(strings.TrimSpace(params[0]))
			hi, err2 := strconv.Atoi(strings.TrimSpace(params[1]))
			if err1 == nil && err2 == nil {
				if hi < lo {
					lo, hi = hi, lo
				}
				return strconv.Itoa(lo + e.rng.IntN(hi-lo+1))
			}
		}
		return strconv.Itoa(e.rng.IntN(1000))
	case strings.HasPrefix(key, "float("):
		params := parseParams(key, "float")
		if len(params) == 2 {
			lo, _ := strconv.ParseFloat(strings.TrimSpace(params[0]), 64)
			hi, _ := strconv.ParseFloat(strings.TrimSpace(params[1]), 64)
			if hi > lo {
				return strconv.FormatFloat(lo+e.rng.Float64()*(hi-lo), 'f', 2, 64)
			}
		}
		return strconv.FormatFloat(e.rng.Float64()*1000, 'f', 2, 64)
	case key == "bool":
		return strconv.FormatBool(e.rng.IntN(2) == 1)
	}

	return ""
}

// parseParams extracts parameters from a function call like "func(param1,param2)"
func parseParams(key, funcName string) []string {
	prefix := funcName + "("
	if !strings.HasPrefix(key, prefix) {
		return nil
	}

	paramsStr := strings.TrimPrefix(key, prefix)
	paramsStr = strings.TrimSuffix(paramsStr, ")")

	if paramsStr == "" {
		return nil
	}

	return strings.Split(paramsStr, ",")
}
