// Package mcp defines the interface for the Model Context Protocol (MCP) host
// that gives the game master its tools.
//
// The host merges two kinds of tools into one catalogue: built-ins that run
// in-process (dice, inventory) and tools served by external MCP servers over
// stdio or streamable HTTP. The story orchestrator fetches the catalogue
// every turn and routes the model's tool calls back through the host.
//
// Lifecycle:
//
//  1. Call [Host.RegisterServer] for each MCP server to connect to.
//  2. Call [Host.ListTools] to refresh and enumerate the catalogue.
//  3. Call [Host.ExecuteTool] to run a tool the model asked for.
//  4. Call [Host.Close] to release all connections.
//
// All methods must be safe for concurrent use.
package mcp

import (
	"context"

	"github.com/MrWong99/talewind/pkg/types"
)

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name identifies the server in logs and errors. Must be unique within a
	// single [Host].
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	Transport Transport `yaml:"transport"`

	// Command is the executable and its arguments, used when Transport is
	// [TransportStdio]. Example: "talewind tools serve dice".
	Command string `yaml:"command"`

	// URL is the endpoint used when Transport is [TransportStreamableHTTP].
	URL string `yaml:"url"`

	// Env holds additional environment variables for stdio servers.
	Env map[string]string `yaml:"env"`
}

// ToolResult holds the outcome of a single tool execution.
type ToolResult struct {
	// Content is the tool's textual output, ready to be handed back to the
	// model.
	Content string

	// IsError is set when the tool reported an application-level failure
	// (unknown inventory, invalid dice). Content then holds the message.
	// Transport and protocol failures are returned as Go errors instead.
	IsError bool

	// DurationMs is the wall-clock execution time in milliseconds.
	DurationMs int64
}

// ToolStats captures the observed runtime behaviour of one tool.
type ToolStats struct {
	Name      string  `json:"name"`
	Server    string  `json:"server"`
	P50Ms     int64   `json:"p50_ms"`
	P99Ms     int64   `json:"p99_ms"`
	CallCount int     `json:"call_count"`
	ErrorRate float64 `json:"error_rate"`
}

// Host manages connections to MCP servers and routes tool calls.
//
// Implementations must be safe for concurrent use.
type Host interface {
	// RegisterServer connects to the MCP server described by cfg and imports
	// its tool catalogue. A server with the same Name is replaced.
	RegisterServer(ctx context.Context, cfg ServerConfig) error

	// ListTools refreshes the catalogue of every registered server and
	// returns all tools, built-ins first, sorted by name within each group.
	// When some servers fail, the tools that are still reachable are
	// returned together with a non-nil error describing the failures.
	ListTools(ctx context.Context) ([]types.ToolDefinition, error)

	// ExecuteTool calls the named tool with JSON-encoded args. A non-nil
	// *ToolResult is returned even when [ToolResult.IsError] is true; a Go
	// error means the tool could not be reached at all.
	ExecuteTool(ctx context.Context, name string, args string) (*ToolResult, error)

	// Close shuts down all server connections.
	Close() error
}
