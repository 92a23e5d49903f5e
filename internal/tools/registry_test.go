package tools

import (
	"context"
	"errors"
	"testing"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echoes its query argument",
		Tags:        []string{"ingest"},
		Schema: Schema{
			Required:   []string{"query"},
			Properties: map[string]Property{"query": {Type: "string", Description: "text"}},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return args["query"], nil
		},
	}
}

func TestRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatal(err)
	}

	result, err := r.Execute(context.Background(), "echo", map[string]any{"query": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Value != "hi" {
		t.Errorf("value = %v", result.Value)
	}
	if !result.IsSuccess() {
		t.Error("result should be success")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"))
	if err := r.Register(echoTool("echo")); !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Errorf("got %v, want ErrToolAlreadyRegistered", err)
	}
}

func TestRegisterInvalid(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Tool{Name: ""}); err == nil {
		t.Error("nameless tool accepted")
	}
	if err := r.Register(&Tool{Name: "x"}); err == nil {
		t.Error("tool without Execute accepted")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), "nope", nil); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("got %v, want ErrToolNotFound", err)
	}
}

func TestExecuteMissingRequiredArg(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"))
	_, err := r.Execute(context.Background(), "echo", map[string]any{})
	if !errors.Is(err, ErrMissingRequiredArg) {
		t.Errorf("got %v, want ErrMissingRequiredArg", err)
	}
}

func TestExecuteWrapsToolError(t *testing.T) {
	r := NewRegistry()
	cause := errors.New("upstream down")
	r.MustRegister(&Tool{
		Name: "flaky",
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, cause
		},
	})

	_, err := r.Execute(context.Background(), "flaky", nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("got %T, want *ExecutionError", err)
	}
	if execErr.ToolName != "flaky" || !errors.Is(err, cause) {
		t.Errorf("execution error not wrapping cause: %v", err)
	}
}

func TestListAndNames(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("b_tool"))
	r.MustRegister(echoTool("a_tool"))

	names := r.Names()
	if len(names) != 2 || names[0] != "a_tool" || names[1] != "b_tool" {
		t.Errorf("Names = %v, want sorted", names)
	}
	if got := len(r.List("ingest")); got != 2 {
		t.Errorf("List(ingest) = %d tools", got)
	}
	if got := len(r.List("absent")); got != 0 {
		t.Errorf("List(absent) = %d tools", got)
	}
}

func TestForLLM(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"))

	specs := r.ForLLM()
	if len(specs) != 1 {
		t.Fatalf("got %d specs", len(specs))
	}
	if specs[0].Type != "function" || specs[0].Function.Name != "echo" {
		t.Errorf("spec = %+v", specs[0])
	}
	params := specs[0].Function.Parameters
	if params["type"] != "object" {
		t.Errorf("parameters type = %v", params["type"])
	}
}
