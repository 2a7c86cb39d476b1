// Package validation checks synthesized bodies against the schema they were
// generated from. Findings are advisory; they never change a response.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/prasenjit/go-oasmock/internal/schema"
)

// Issue is one schema violation
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return i.Field + ": " + i.Message
}

type compiled struct {
	schema *jsonschema.Schema
	err    error
}

// Validator compiles each schema once per key and caches the result
type Validator struct {
	mu    sync.Mutex
	cache map[string]*compiled
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{cache: make(map[string]*compiled)}
}

// Validate checks value against root. root must already carry the components
// its references point to. OpenAPI 3.1 documents compile as draft 2020-12,
// older ones as draft 4.
func (v *Validator) Validate(key string, root *schema.Node, openapiVersion string, value any) ([]Issue, error) {
	s, err := v.compile(key, root, openapiVersion)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}

	if err := s.Validate(instance); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			var issues []Issue
			collect(ve, &issues)
			return issues, nil
		}
		return []Issue{{Message: err.Error()}}, nil
	}
	return nil, nil
}

func (v *Validator) compile(key string, root *schema.Node, openapiVersion string) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if c, ok := v.cache[key]; ok {
		return c.schema, c.err
	}

	c := &compiled{}
	c.schema, c.err = compileSchema(root, openapiVersion)
	v.cache[key] = c
	return c.schema, c.err
}

func compileSchema(root *schema.Node, openapiVersion string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if strings.HasPrefix(openapiVersion, "3.1") {
		compiler.Draft = jsonschema.Draft2020
	} else {
		compiler.Draft = jsonschema.Draft4
	}

	data, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	if err := compiler.AddResource("schema.json", bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	return compiler.Compile("schema.json")
}

func collect(err *jsonschema.ValidationError, issues *[]Issue) {
	if len(err.Causes) == 0 {
		*issues = append(*issues, Issue{
			Field:   strings.ReplaceAll(strings.TrimPrefix(err.InstanceLocation, "/"), "/", "."),
			Message: err.Message,
		})
		return
	}
	for _, cause := range err.Causes {
		collect(cause, issues)
	}
}
