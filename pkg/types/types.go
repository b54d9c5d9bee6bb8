// Package types defines the shared types used across all talewind packages.
//
// These types are the common vocabulary between the LLM and TTS providers, the
// tool host, the transcript and the story orchestrator. Each package keeps its
// own domain types; only cross-cutting data structures live here to avoid
// circular imports.
package types

// Role identifies the author of a [Message].
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// IsValid reports whether r is one of the four known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of system, user, assistant or tool.
	Role Role

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name (for example the player's name).
	Name string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is tool, identifying which call this answers.
	ToolCallID string
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	// ID is the provider-assigned identifier of this call.
	ID string

	// Name is the tool name.
	Name string

	// Arguments is the JSON-encoded arguments object.
	Arguments string
}

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	// Name is the tool's unique identifier within a session.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input object.
	Parameters map[string]any
}

// VoiceProfile describes a TTS voice and how it should be delivered.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g. "ash").
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Instructions is free-text delivery guidance (tonality): pace, emotion,
	// accent. Providers that cannot steer delivery ignore it.
	Instructions string

	// SpeedFactor adjusts speaking rate (0.25–4.0, 0 means provider default).
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (gender, accent, ...).
	Metadata map[string]string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	SupportsToolCalling bool

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool

	// SupportsTemperature is false for reasoning models that reject a
	// temperature parameter.
	SupportsTemperature bool
}
