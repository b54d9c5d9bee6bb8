package openai

import (
	"testing"

	"github.com/MrWong99/talewind/pkg/provider/llm"
	"github.com/MrWong99/talewind/pkg/types"
)

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  types.Message
	}{
		{
			name: "system",
			msg:  types.Message{Role: types.RoleSystem, Content: "You are the Game Master."},
		},
		{
			name: "user",
			msg:  types.Message{Role: types.RoleUser, Content: "I open the door."},
		},
		{
			name: "named user",
			msg:  types.Message{Role: types.RoleUser, Name: "alice", Content: "I open the door."},
		},
		{
			name: "assistant",
			msg:  types.Message{Role: types.RoleAssistant, Content: "The door creaks."},
		},
		{
			name: "tool",
			msg:  types.Message{Role: types.RoleTool, Content: "[4] = 4", ToolCallID: "call_1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := convertMessage(tt.msg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var set bool
			switch tt.msg.Role {
			case types.RoleSystem:
				set = p.OfSystem != nil
			case types.RoleUser:
				set = p.OfUser != nil
			case types.RoleAssistant:
				set = p.OfAssistant != nil
			case types.RoleTool:
				set = p.OfTool != nil && p.OfTool.ToolCallID == "call_1"
			}
			if !set {
				t.Errorf("role %q was not mapped to the matching union member", tt.msg.Role)
			}
		})
	}
}

func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	t.Parallel()

	msg := types.Message{
		Role: types.RoleAssistant,
		ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "roll_dice", Arguments: `{"sides":20}`},
		},
	}
	p, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
	if len(p.OfAssistant.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(p.OfAssistant.ToolCalls))
	}
	tc := p.OfAssistant.ToolCalls[0]
	if tc.ID != "call_1" {
		t.Errorf("ID: got %q, want %q", tc.ID, "call_1")
	}
	if tc.Function.Name != "roll_dice" {
		t.Errorf("function name: got %q, want %q", tc.Function.Name, "roll_dice")
	}
	if tc.Function.Arguments != `{"sides":20}` {
		t.Errorf("arguments: got %q", tc.Function.Arguments)
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	t.Parallel()

	_, err := convertMessage(types.Message{Role: "narrator", Content: "test"})
	if err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model           string
		wantWindow      int
		wantTools       bool
		wantTemperature bool
	}{
		{model: "gpt-4o-mini", wantWindow: 128_000, wantTools: true, wantTemperature: true},
		{model: "gpt-4.1", wantWindow: 128_000, wantTools: true, wantTemperature: true},
		{model: "gpt-4", wantWindow: 8_192, wantTools: true, wantTemperature: true},
		{model: "o1-mini", wantWindow: 128_000, wantTools: false, wantTemperature: false},
		{model: "o4-mini", wantWindow: 200_000, wantTools: true, wantTemperature: false},
		{model: "o3", wantWindow: 200_000, wantTools: true, wantTemperature: false},
		{model: "my-custom-model", wantWindow: 128_000, wantTools: true, wantTemperature: true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.wantWindow {
				t.Errorf("ContextWindow: got %d, want %d", caps.ContextWindow, tt.wantWindow)
			}
			if caps.SupportsToolCalling != tt.wantTools {
				t.Errorf("SupportsToolCalling: got %v, want %v", caps.SupportsToolCalling, tt.wantTools)
			}
			if caps.SupportsTemperature != tt.wantTemperature {
				t.Errorf("SupportsTemperature: got %v, want %v", caps.SupportsTemperature, tt.wantTemperature)
			}
			if caps.MaxOutputTokens <= 0 {
				t.Errorf("MaxOutputTokens: got %d, want > 0", caps.MaxOutputTokens)
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	req := llm.CompletionRequest{
		SystemPrompt: "You are the Game Master.",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "Roll for me."}},
		Tools: []types.ToolDefinition{{
			Name:        "roll_dice",
			Description: "Roll one die.",
			Parameters:  map[string]any{"type": "object"},
		}},
		Temperature: 0.75,
		MaxTokens:   450,
	}

	t.Run("temperature kept for chat models", func(t *testing.T) {
		t.Parallel()
		p := &Provider{model: "gpt-4o-mini"}
		params, err := p.buildParams(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(params.Messages) != 2 {
			t.Fatalf("got %d messages, want 2 (system + user)", len(params.Messages))
		}
		if params.Messages[0].OfSystem == nil {
			t.Error("first message should be the system prompt")
		}
		if !params.Temperature.Valid() || params.Temperature.Value != 0.75 {
			t.Errorf("temperature: got %v, want 0.75", params.Temperature.Value)
		}
		if params.MaxCompletionTokens.Value != 450 {
			t.Errorf("max tokens: got %d, want 450", params.MaxCompletionTokens.Value)
		}
		if len(params.Tools) != 1 || params.Tools[0].Function.Name != "roll_dice" {
			t.Errorf("tools: got %+v", params.Tools)
		}
	})

	t.Run("temperature dropped for reasoning models", func(t *testing.T) {
		t.Parallel()
		p := &Provider{model: "o4-mini"}
		params, err := p.buildParams(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if params.Temperature.Valid() {
			t.Error("temperature should be omitted for o4-mini")
		}
	})
}

func TestToolCallAccumulator(t *testing.T) {
	t.Parallel()

	acc := newToolCallAccumulator()
	if got := acc.calls(); got != nil {
		t.Fatalf("empty accumulator: got %v, want nil", got)
	}

	acc.add(0, "call_a", "roll_dice", `{"si`)
	acc.add(1, "call_b", "get_inventory", `{"owner":"alice"}`)
	acc.add(0, "", "", `des":6}`)

	got := acc.calls()
	if len(got) != 2 {
		t.Fatalf("got %d calls, want 2", len(got))
	}
	if got[0].ID != "call_a" || got[0].Arguments != `{"sides":6}` {
		t.Errorf("call 0: got %+v", got[0])
	}
	if got[1].Name != "get_inventory" {
		t.Errorf("call 1 name: got %q, want %q", got[1].Name, "get_inventory")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "o4-mini",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
		WithTimeout(0),
	); err != nil {
		t.Fatalf("unexpected error with valid options: %v", err)
	}
}
