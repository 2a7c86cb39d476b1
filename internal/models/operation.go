package models

import "strings"

// Operation represents an API operation declared in the loaded spec
type Operation struct {
	Key         string   `json:"key"`         // e.g. "GET /users/{id}"
	Method      string   `json:"method"`      // GET, POST, PUT, DELETE, PATCH, etc.
	Path        string   `json:"path"`        // Path template e.g., /users/{id}
	FullPath    string   `json:"fullPath"`    // BasePath + Path
	OperationID string   `json:"operationId"` // From OpenAPI spec
	Summary     string   `json:"summary,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Statuses    []string `json:"statuses"`   // declared response keys in order
	MediaTypes  []string `json:"mediaTypes"` // media types of the first declared response
}

// OperationKey builds the key used for overrides, stats and recordings
func OperationKey(method, pathTemplate string) string {
	return strings.ToUpper(method) + " " + pathTemplate
}
