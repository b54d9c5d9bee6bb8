// Package mcphost provides the concrete [mcp.Host].
//
// It connects to MCP servers over stdio, streamable HTTP or any other
// go-sdk transport, keeps a concurrent-safe registry of their tools next to
// in-process built-ins, and records a rolling window of latencies and
// failures per tool.
//
// Typical usage:
//
//	h := mcphost.New()
//	for _, t := range dice.Tools() {
//	    h.RegisterBuiltin(t)
//	}
//	err := h.RegisterServer(ctx, mcp.ServerConfig{
//	    Name:      "lore",
//	    Transport: mcp.TransportStdio,
//	    Command:   "/usr/local/bin/lore-server",
//	})
//	defs, err := h.ListTools(ctx)
//	result, err := h.ExecuteTool(ctx, "roll_dice", `{"n_sides":20}`)
//	h.Close()
package mcphost

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/talewind/internal/mcp"
	"github.com/MrWong99/talewind/pkg/types"
)

// builtinServerName is the pseudo server name used for in-process tools.
const builtinServerName = "builtin"

// DefaultListTimeout bounds how long [Host.ListTools] waits for one server.
const DefaultListTimeout = 5 * time.Second

// toolEntry holds all metadata for a single registered tool.
type toolEntry struct {
	def          types.ToolDefinition
	serverName   string
	measurements *rollingWindow

	// builtinFn is non-nil for in-process tools registered via RegisterBuiltin.
	builtinFn func(ctx context.Context, args string) (string, error)
}

// Host is the concrete implementation of [mcp.Host].
//
// The zero value is NOT usable; create instances with [New].
type Host struct {
	mu      sync.RWMutex
	tools   map[string]*toolEntry
	servers map[string]*mcpsdk.ClientSession

	// client is reused across all server connections.
	client *mcpsdk.Client

	listTimeout time.Duration
}

var _ mcp.Host = (*Host)(nil)

// Option is a functional option for [New].
type Option func(*Host)

// WithListTimeout sets the per-server deadline of [Host.ListTools]
// (default [DefaultListTimeout]). Non-positive values disable it.
func WithListTimeout(d time.Duration) Option {
	return func(h *Host) { h.listTimeout = d }
}

// New creates a ready-to-use Host.
func New(opts ...Option) *Host {
	h := &Host{
		tools:       make(map[string]*toolEntry),
		servers:     make(map[string]*mcpsdk.ClientSession),
		client:      mcpsdk.NewClient(&mcpsdk.Implementation{Name: "talewind", Version: "1.0.0"}, nil),
		listTimeout: DefaultListTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue. If a server with the same Name is already registered, the
// old connection is closed and replaced.
//
// For [mcp.TransportStdio], cfg.Command is split on whitespace into the
// executable and its arguments and cfg.Env is added to the inherited
// environment. For [mcp.TransportStreamableHTTP], cfg.URL is the endpoint.
func (h *Host) RegisterServer(ctx context.Context, cfg mcp.ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcp host: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case mcp.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcp host: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.Command(executable, args...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcp host: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	return h.Connect(ctx, cfg.Name, transport)
}

// Connect registers a server reachable over an already constructed transport,
// such as one half of [mcpsdk.NewInMemoryTransports].
func (h *Host) Connect(ctx context.Context, name string, transport mcpsdk.Transport) error {
	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp host: connect to server %q: %w", name, err)
	}
	discovered, err := listServerTools(ctx, session)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("mcp host: list tools of server %q: %w", name, err)
	}

	h.mu.Lock()
	old := h.servers[name]
	h.servers[name] = session
	h.replaceServerToolsLocked(name, discovered)
	h.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	slog.Info("mcp host: server registered", "server", name, "tools", len(discovered))
	return nil
}

// ListTools refreshes the catalogue of every registered server concurrently
// and returns all tool definitions: built-ins first, then server tools, each
// group sorted by name.
//
// A server that fails to answer within the list timeout is left out of the
// result, and its failure is joined into the returned error. The built-ins
// and the servers that answered are still returned alongside that error.
func (h *Host) ListTools(ctx context.Context) ([]types.ToolDefinition, error) {
	h.mu.RLock()
	names := make([]string, 0, len(h.servers))
	sessions := make([]*mcpsdk.ClientSession, 0, len(h.servers))
	for name, s := range h.servers {
		names = append(names, name)
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	results := make([][]types.ToolDefinition, len(sessions))
	failures := make([]error, len(sessions))
	var g errgroup.Group
	for i, s := range sessions {
		g.Go(func() error {
			lctx := ctx
			if h.listTimeout > 0 {
				var cancel context.CancelFunc
				lctx, cancel = context.WithTimeout(ctx, h.listTimeout)
				defer cancel()
			}
			defs, err := listServerTools(lctx, s)
			if err != nil {
				failures[i] = fmt.Errorf("mcp host: list tools of server %q: %w", names[i], err)
				return nil
			}
			results[i] = defs
			return nil
		})
	}
	_ = g.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	unavailable := make(map[string]bool)
	for i, name := range names {
		// Skip servers replaced or closed while we were listing.
		if h.servers[name] != sessions[i] {
			continue
		}
		if failures[i] != nil {
			unavailable[name] = true
			continue
		}
		h.replaceServerToolsLocked(name, results[i])
	}
	return h.definitionsLocked(unavailable), errors.Join(failures...)
}

// ExecuteTool calls the named tool with JSON-encoded args.
//
// A non-nil *ToolResult is returned even when [mcp.ToolResult.IsError] is
// true. A Go error is returned only for an unknown tool or a transport or
// protocol failure.
func (h *Host) ExecuteTool(ctx context.Context, name string, args string) (*mcp.ToolResult, error) {
	h.mu.RLock()
	entry, ok := h.tools[name]
	var session *mcpsdk.ClientSession
	if ok && entry.builtinFn == nil {
		session = h.servers[entry.serverName]
	}
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("mcp host: tool %q not found", name)
	}

	start := time.Now()
	var result *mcp.ToolResult
	var err error
	if entry.builtinFn != nil {
		result = executeBuiltin(ctx, entry, args)
	} else {
		result, err = executeMCPTool(ctx, session, entry, args)
	}
	durationMs := time.Since(start).Milliseconds()
	entry.measurements.Record(durationMs, err != nil || result.IsError)

	if err != nil {
		return nil, err
	}
	result.DurationMs = durationMs
	return result, nil
}

// Stats returns per-tool call statistics sorted by tool name.
func (h *Host) Stats() []mcp.ToolStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]mcp.ToolStats, 0, len(h.tools))
	for _, e := range h.tools {
		out = append(out, mcp.ToolStats{
			Name:      e.def.Name,
			Server:    e.serverName,
			P50Ms:     e.measurements.Percentile(0.5),
			P99Ms:     e.measurements.Percentile(0.99),
			CallCount: e.measurements.Count(),
			ErrorRate: e.measurements.ErrorRate(),
		})
	}
	slices.SortFunc(out, func(a, b mcp.ToolStats) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Ping checks that every registered server still answers.
func (h *Host) Ping(ctx context.Context) error {
	h.mu.RLock()
	sessions := make(map[string]*mcpsdk.ClientSession, len(h.servers))
	for name, s := range h.servers {
		sessions[name] = s
	}
	h.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for name, s := range sessions {
		g.Go(func() error {
			if err := s.Ping(gctx, nil); err != nil {
				return fmt.Errorf("mcp host: ping server %q: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close shuts down all server connections and drops their tools. Built-in
// tools stay registered.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, s := range h.servers {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcp host: close server %q: %w", name, err)
		}
		delete(h.servers, name)
		h.replaceServerToolsLocked(name, nil)
	}
	return firstErr
}

// replaceServerToolsLocked swaps the tools owned by server for defs, keeping
// the measurements of tools that survive. Built-ins shadow server tools of
// the same name. Must be called with h.mu held.
func (h *Host) replaceServerToolsLocked(server string, defs []types.ToolDefinition) {
	keep := make(map[string]bool, len(defs))
	for _, def := range defs {
		if e, ok := h.tools[def.Name]; ok && e.serverName != server {
			slog.Warn("mcp host: duplicate tool name, keeping the first registration",
				"tool", def.Name, "server", server, "registered_by", e.serverName)
			continue
		}
		keep[def.Name] = true
		if e, ok := h.tools[def.Name]; ok {
			e.def = def
			continue
		}
		h.tools[def.Name] = &toolEntry{def: def, serverName: server, measurements: newRollingWindow(defaultWindowSize)}
	}
	for name, e := range h.tools {
		if e.serverName == server && !keep[name] {
			delete(h.tools, name)
		}
	}
}

// definitionsLocked returns built-ins first, then server tools, each sorted
// by name. Tools of the skipped servers are left out. Must be called with
// h.mu held.
func (h *Host) definitionsLocked(skip map[string]bool) []types.ToolDefinition {
	entries := make([]*toolEntry, 0, len(h.tools))
	for _, e := range h.tools {
		if skip[e.serverName] {
			continue
		}
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *toolEntry) int {
		ab, bb := a.builtinFn != nil, b.builtinFn != nil
		if ab != bb {
			if ab {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.def.Name, b.def.Name)
	})
	defs := make([]types.ToolDefinition, len(entries))
	for i, e := range entries {
		defs[i] = e.def
	}
	return defs
}

// listServerTools drains the paginated tools/list iterator of a session.
func listServerTools(ctx context.Context, s *mcpsdk.ClientSession) ([]types.ToolDefinition, error) {
	var defs []types.ToolDefinition
	for tool, err := range s.Tools(ctx, nil) {
		if err != nil {
			return nil, err
		}
		defs = append(defs, types.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schemaToMap(tool.InputSchema),
		})
	}
	return defs, nil
}

// executeBuiltin calls the in-process handler. Handler errors become error
// results so the model can read them.
func executeBuiltin(ctx context.Context, entry *toolEntry, args string) *mcp.ToolResult {
	output, err := entry.builtinFn(ctx, args)
	if err != nil {
		return &mcp.ToolResult{Content: err.Error(), IsError: true}
	}
	return &mcp.ToolResult{Content: output}
}

// executeMCPTool routes the call to the server session owning the tool.
func executeMCPTool(ctx context.Context, session *mcpsdk.ClientSession, entry *toolEntry, args string) (*mcp.ToolResult, error) {
	if session == nil {
		return nil, fmt.Errorf("mcp host: server %q not connected for tool %q", entry.serverName, entry.def.Name)
	}

	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return &mcp.ToolResult{Content: fmt.Sprintf("Invalid arguments for %s: %v", entry.def.Name, err), IsError: true}, nil
		}
	}

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: entry.def.Name, Arguments: argsMap})
	if err != nil {
		return nil, fmt.Errorf("mcp host: call tool %q: %w", entry.def.Name, err)
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return &mcp.ToolResult{Content: sb.String(), IsError: res.IsError}, nil
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
