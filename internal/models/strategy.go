package models

import (
	"fmt"
	"strings"
)

// Strategy is one named technique for producing a value
type Strategy string

const (
	StrategyRecords           Strategy = "records"
	StrategyMediaTypeExamples Strategy = "mediatype-examples"
	StrategySchemaExamples    Strategy = "schema-examples"
	StrategyJSF               Strategy = "jsf"
	StrategyPrimitive         Strategy = "primitive"
	StrategyPassthrough       Strategy = "passthrough"
)

// DefaultStrategyOrder is used when no tier configures an order
var DefaultStrategyOrder = []Strategy{
	StrategyMediaTypeExamples,
	StrategySchemaExamples,
	StrategyJSF,
}

// Valid reports whether s is one of the known strategies
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRecords, StrategyMediaTypeExamples, StrategySchemaExamples,
		StrategyJSF, StrategyPrimitive, StrategyPassthrough:
		return true
	}
	return false
}

// ParseStrategyOrder parses a list of strategy names, trimming whitespace and
// dropping empty entries. Unknown names are an error.
func ParseStrategyOrder(names []string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s := Strategy(name)
		if !s.Valid() {
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}

// SplitStrategyHeader splits a comma-separated header value. Entries are kept
// verbatim after trimming so unknown names simply never match a handler.
func SplitStrategyHeader(value string) []Strategy {
	var out []Strategy
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, Strategy(part))
		}
	}
	return out
}

// ContainsStrategy reports whether order includes s
func ContainsStrategy(order []Strategy, s Strategy) bool {
	for _, o := range order {
		if o == s {
			return true
		}
	}
	return false
}

// IsExamplesOnly reports whether every entry of order is an example strategy.
// An empty order is vacuously examples-only.
func IsExamplesOnly(order []Strategy) bool {
	for _, s := range order {
		if s != StrategyMediaTypeExamples && s != StrategySchemaExamples {
			return false
		}
	}
	return true
}
