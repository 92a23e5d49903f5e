// Package tools provides the registry of named, typed, cacheable operations
// the pipeline calls for ingestion: search, URL collection, trending feeds.
// Tools are values (name, description, schema, callable) held in a single
// mapping; dispatch is by string name, not by subclass.
package tools

import (
	"context"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array").
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// Schema defines the JSON schema for tool arguments. This enables LLM tool
// calling with proper validation.
type Schema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution. The result is
// tool-specific; ingestion tools return []*types.Paper.
type ExecuteFunc func(ctx context.Context, args map[string]any) (any, error)

// Tool is one registered operation.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does. Used for LLM tool calling
	// and the planner prompt.
	Description string

	// Tags classify the tool for filtering (e.g. "ingest", "collect").
	Tags []string

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema Schema

	// Cacheable marks tools whose results may be memoized by the cache
	// layer.
	Cacheable bool
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// HasTag reports whether the tool carries the given tag.
func (t *Tool) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// Result wraps the result of tool execution with metadata.
type Result struct {
	ToolName   string
	Value      any
	Err        error
	DurationMs int64
	CacheHit   bool
}

// IsSuccess returns true if the tool executed without error.
func (r *Result) IsSuccess() bool { return r.Err == nil }

// FunctionSpec is the OpenAI function-calling shape exported for LLMs.
type FunctionSpec struct {
	Type     string       `json:"type"`
	Function FunctionBody `json:"function"`
}

// FunctionBody carries the name/description/parameters triple.
type FunctionBody struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
