package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"deepscholar/internal/logging"
)

// Registry holds all available tools and provides lookup functionality.
// It is thread-safe and supports registration at runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the registry.
// Returns an error if a tool with the same name already exists.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool

	logging.ToolsDebug("registered tool: %s (tags=%v cacheable=%v)", tool.Name, tool.Tags, tool.Cacheable)
	return nil
}

// MustRegister registers a tool and panics on error.
// Use this for static tool registration at startup.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has returns true if a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	return r.Get(name) != nil
}

// List returns all registered tools, optionally filtered by tag. An empty
// tag returns everything. Results are sorted by name.
func (r *Registry) List(tag string) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		if tag == "" || tool.HasTag(tag) {
			result = append(result, tool)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool by name with the given arguments.
// Returns ErrToolNotFound if the tool doesn't exist.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*Result, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	start := time.Now()
	if err := validateArgs(tool, args); err != nil {
		return &Result{ToolName: name, Err: err, DurationMs: time.Since(start).Milliseconds()}, err
	}

	logging.ToolsDebug("executing tool: %s", name)
	value, err := tool.Execute(ctx, args)
	duration := time.Since(start)
	logging.ToolsDebug("tool %s completed in %v (success=%v)", name, duration, err == nil)

	if err != nil {
		err = &ExecutionError{ToolName: name, Cause: err}
	}
	return &Result{
		ToolName:   name,
		Value:      value,
		Err:        err,
		DurationMs: duration.Milliseconds(),
	}, err
}

// validateArgs checks that all required arguments are present.
func validateArgs(tool *Tool, args map[string]any) error {
	for _, required := range tool.Schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
		}
	}
	return nil
}

// ForLLM exports all tools in OpenAI function-calling shape.
func (r *Registry) ForLLM() []FunctionSpec {
	all := r.List("")
	specs := make([]FunctionSpec, 0, len(all))
	for _, tool := range all {
		props := make(map[string]any, len(tool.Schema.Properties))
		for name, p := range tool.Schema.Properties {
			props[name] = p
		}
		specs = append(specs, FunctionSpec{
			Type: "function",
			Function: FunctionBody{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": props,
					"required":   tool.Schema.Required,
				},
			},
		})
	}
	return specs
}

// Global registry instance. Initialized once at startup, safe under
// concurrent reads.
var globalRegistry = NewRegistry()

// Global returns the global tool registry.
func Global() *Registry { return globalRegistry }
