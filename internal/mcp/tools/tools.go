// Package tools defines the shared [Tool] type used by the built-in tool
// packages. Each sub-package exports a constructor returning a slice of Tool
// values ready for registration with the MCP host or for serving over stdio.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/talewind/pkg/types"
)

// Tool is a built-in tool: its model-facing schema plus the handler invoked
// when the model calls it.
type Tool struct {
	// Definition is the tool's name, description and JSON Schema parameters.
	Definition types.ToolDefinition

	// Handler executes the tool with JSON-encoded args. A returned error is
	// a user-facing message (e.g. "Inventory for bob does not exist.") that
	// is passed back to the model with the error flag set.
	// Implementations must be safe for concurrent use.
	Handler func(ctx context.Context, args string) (string, error)
}

// DecodeArgs unmarshals a JSON argument object into v. An empty string is
// treated as "{}".
func DecodeArgs(args string, v any) error {
	if args == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// Schema builds a JSON Schema object with the given string or integer
// properties, all of them required.
func Schema(props ...Property) map[string]any {
	properties := make(map[string]any, len(props))
	required := make([]any, 0, len(props))
	for _, p := range props {
		properties[p.Name] = map[string]any{"type": p.Type, "description": p.Description}
		required = append(required, p.Name)
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Property is one entry of a [Schema].
type Property struct {
	Name        string
	Type        string
	Description string
}
