package mcphost

import (
	"fmt"

	"github.com/MrWong99/talewind/internal/mcp/tools"
)

// RegisterBuiltin registers a tool that runs in-process, bypassing the MCP
// protocol. A tool with the same name is replaced.
func (h *Host) RegisterBuiltin(tool tools.Tool) error {
	if tool.Definition.Name == "" {
		return fmt.Errorf("mcp host: builtin tool must have a non-empty name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("mcp host: builtin tool %q must have a non-nil handler", tool.Definition.Name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.tools[tool.Definition.Name] = &toolEntry{
		def:          tool.Definition,
		serverName:   builtinServerName,
		measurements: newRollingWindow(defaultWindowSize),
		builtinFn:    tool.Handler,
	}
	return nil
}

// RegisterBuiltins registers every tool in ts, stopping at the first error.
func (h *Host) RegisterBuiltins(ts []tools.Tool) error {
	for _, t := range ts {
		if err := h.RegisterBuiltin(t); err != nil {
			return err
		}
	}
	return nil
}
