package tools

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound means no tool with the requested name is registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolAlreadyRegistered means a tool name collision at registration.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrToolNameEmpty means a tool was defined without a name.
	ErrToolNameEmpty = errors.New("tool name is empty")

	// ErrToolExecuteNil means a tool was defined without an Execute func.
	ErrToolExecuteNil = errors.New("tool execute function is nil")

	// ErrMissingRequiredArg means a required argument was not provided.
	ErrMissingRequiredArg = errors.New("missing required argument")
)

// ExecutionError wraps a failure inside a tool implementation, keeping the
// tool name for step-level failure records.
type ExecutionError struct {
	ToolName string
	Cause    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.ToolName, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }
