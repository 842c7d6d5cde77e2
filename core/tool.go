package core

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a callable tool for the generation model.
// InputSchema is a JSON Schema object (see the tools package helpers).
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Tool is a named operation the generation loop can invoke mid-stream.
// Execute returns the text fed back to the model as a tool result. A
// returned error becomes an error-result message for the model; it never
// aborts the surrounding loop.
type Tool interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// FuncTool adapts a plain function to the Tool interface.
type FuncTool struct {
	Def ToolDefinition
	Fn  func(ctx context.Context, input json.RawMessage) (string, error)
}

func (t FuncTool) Definition() ToolDefinition { return t.Def }

func (t FuncTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	return t.Fn(ctx, input)
}
