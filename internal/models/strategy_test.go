package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategyOrder(t *testing.T) {
	order, err := ParseStrategyOrder([]string{" records", "", "jsf ", "primitive"})
	require.NoError(t, err)
	assert.Equal(t, []Strategy{StrategyRecords, StrategyJSF, StrategyPrimitive}, order)

	_, err = ParseStrategyOrder([]string{"records", "magic"})
	assert.Error(t, err)
}

func TestSplitStrategyHeader(t *testing.T) {
	assert.Equal(t,
		[]Strategy{StrategySchemaExamples, StrategyPrimitive},
		SplitStrategyHeader(" schema-examples , ,primitive,"))
	assert.Nil(t, SplitStrategyHeader(" , "))
}

func TestIsExamplesOnly(t *testing.T) {
	tests := []struct {
		order    []Strategy
		expected bool
	}{
		{[]Strategy{StrategySchemaExamples}, true},
		{[]Strategy{StrategyMediaTypeExamples, StrategySchemaExamples}, true},
		{[]Strategy{StrategySchemaExamples, StrategyPrimitive}, false},
		{[]Strategy{StrategyRecords, StrategySchemaExamples}, false},
		{[]Strategy{StrategyPassthrough}, false},
		{DefaultStrategyOrder, false},
	}

	for _, tt := range tests {
		if got := IsExamplesOnly(tt.order); got != tt.expected {
			t.Errorf("IsExamplesOnly(%v): expected %v, got %v", tt.order, tt.expected, got)
		}
	}
}

func TestOperationKey(t *testing.T) {
	assert.Equal(t, "GET /books/{id}", OperationKey("get", "/books/{id}"))
	op := &ResolvedOperation{Method: "post", PathTemplate: "/books"}
	assert.Equal(t, "POST /books", op.Key())
}
