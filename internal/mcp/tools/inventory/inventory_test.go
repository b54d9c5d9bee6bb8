package inventory

import (
	"context"
	"strings"
	"testing"

	"github.com/MrWong99/talewind/internal/mcp/tools"
)

func toolset(t *testing.T) map[string]tools.Tool {
	t.Helper()
	out := make(map[string]tools.Tool)
	for _, tool := range Tools(NewMemStore()) {
		out[tool.Definition.Name] = tool
	}
	return out
}

func call(t *testing.T, ts map[string]tools.Tool, name, args string) (string, error) {
	t.Helper()
	tool, ok := ts[name]
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	return tool.Handler(context.Background(), args)
}

func mustCall(t *testing.T, ts map[string]tools.Tool, name, args string) string {
	t.Helper()
	out, err := call(t, ts, name, args)
	if err != nil {
		t.Fatalf("%s(%s): %v", name, args, err)
	}
	return out
}

func TestTools_RoundTrip(t *testing.T) {
	t.Parallel()
	ts := toolset(t)

	if got := mustCall(t, ts, ToolCreate, `{"owner":"alice"}`); got != "Empty inventory created for alice." {
		t.Errorf("create = %q", got)
	}
	mustCall(t, ts, ToolAdd, `{"owner":"alice","item":"sword"}`)
	if got := mustCall(t, ts, ToolItems, `{"owner":"alice"}`); got != `["sword"]` {
		t.Errorf("list_items = %s, want [\"sword\"]", got)
	}
}

func TestTools_DuplicatesAndUpdate(t *testing.T) {
	t.Parallel()
	ts := toolset(t)

	mustCall(t, ts, ToolCreate, `{"owner":"bob"}`)
	mustCall(t, ts, ToolAdd, `{"owner":"bob","item":"potion"}`)
	mustCall(t, ts, ToolAdd, `{"owner":"bob","item":"potion"}`)
	mustCall(t, ts, ToolAdd, `{"owner":"bob","item":"rope"}`)
	mustCall(t, ts, ToolUpdate, `{"owner":"bob","item":"potion","new_item":"empty flask"}`)
	mustCall(t, ts, ToolRemove, `{"owner":"bob","item":"rope"}`)

	if got := mustCall(t, ts, ToolItems, `{"owner":"bob"}`); got != `["empty flask","potion"]` {
		t.Errorf("list_items = %s", got)
	}
}

func TestTools_RemoveMissingItemLeavesState(t *testing.T) {
	t.Parallel()
	ts := toolset(t)

	mustCall(t, ts, ToolCreate, `{"owner":"alice"}`)
	mustCall(t, ts, ToolAdd, `{"owner":"alice","item":"sword"}`)

	_, err := call(t, ts, ToolRemove, `{"owner":"alice","item":"shield"}`)
	if err == nil {
		t.Fatal("remove_item of a missing item should fail")
	}
	if want := "does not contain shield"; !strings.Contains(err.Error(), want) {
		t.Errorf("err = %q, want it to contain %q", err, want)
	}
	if got := mustCall(t, ts, ToolItems, `{"owner":"alice"}`); got != `["sword"]` {
		t.Errorf("list_items after failed remove = %s, want [\"sword\"]", got)
	}
}

func TestTools_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   []string
		tool    string
		args    string
		wantErr string
	}{
		{name: "empty owner", tool: ToolCreate, args: `{"owner":""}`, wantErr: "Owner must be a non-empty string."},
		{name: "duplicate inventory", setup: []string{"alice"}, tool: ToolCreate, args: `{"owner":"alice"}`, wantErr: "Inventory for alice already exists."},
		{name: "missing inventory", tool: ToolItems, args: `{"owner":"carol"}`, wantErr: "Inventory for carol does not exist."},
		{name: "add to missing", tool: ToolAdd, args: `{"owner":"dave","item":"axe"}`, wantErr: "Inventory for dave does not exist."},
		{name: "empty item", setup: []string{"erin"}, tool: ToolAdd, args: `{"owner":"erin","item":""}`, wantErr: "Item must be a non-empty string."},
		{name: "empty new item", setup: []string{"erin"}, tool: ToolUpdate, args: `{"owner":"erin","item":"a"}`, wantErr: "New item must be a non-empty string."},
		{name: "update missing item", setup: []string{"erin"}, tool: ToolUpdate, args: `{"owner":"erin","item":"a","new_item":"b"}`, wantErr: "The inventory of erin does not contain a."},
		{name: "malformed args", tool: ToolItems, args: `{"owner":`, wantErr: "invalid arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := toolset(t)
			for _, owner := range tt.setup {
				mustCall(t, ts, ToolCreate, `{"owner":"`+owner+`"}`)
			}
			_, err := call(t, ts, tt.tool, tt.args)
			if err == nil {
				t.Fatalf("%s(%s) succeeded, want error %q", tt.tool, tt.args, tt.wantErr)
			}
			if !strings.HasPrefix(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want prefix %q", err, tt.wantErr)
			}
		})
	}
}

func TestTools_DidYouMean(t *testing.T) {
	t.Parallel()
	ts := toolset(t)

	mustCall(t, ts, ToolCreate, `{"owner":"Gandalf"}`)
	mustCall(t, ts, ToolAdd, `{"owner":"Gandalf","item":"longsword"}`)

	_, err := call(t, ts, ToolItems, `{"owner":"gandalf"}`)
	if err == nil || !strings.Contains(err.Error(), `Did you mean "Gandalf"?`) {
		t.Errorf("owner hint missing: %v", err)
	}
	_, err = call(t, ts, ToolRemove, `{"owner":"Gandalf","item":"longswrd"}`)
	if err == nil || !strings.Contains(err.Error(), `Did you mean "longsword"?`) {
		t.Errorf("item hint missing: %v", err)
	}
}

func TestTools_ListInventories(t *testing.T) {
	t.Parallel()
	ts := toolset(t)

	if got := mustCall(t, ts, ToolOwners, `{}`); got != `[]` {
		t.Errorf("list_inventories on empty store = %s, want []", got)
	}
	mustCall(t, ts, ToolCreate, `{"owner":"alice"}`)
	mustCall(t, ts, ToolCreate, `{"owner":"bob"}`)
	if got := mustCall(t, ts, ToolOwners, ``); got != `["alice","bob"]` {
		t.Errorf("list_inventories = %s", got)
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target     string
		candidates []string
		want       string
		wantOK     bool
	}{
		{"healing potin", []string{"rope", "healing potion"}, "healing potion", true},
		{"ALICE", []string{"alice", "bob"}, "alice", true},
		{"dragon", []string{"rope", "torch"}, "", false},
		{"sword", nil, "", false},
	}
	for _, tt := range tests {
		got, ok := Suggest(tt.target, tt.candidates)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("Suggest(%q) = (%q, %v), want (%q, %v)", tt.target, got, ok, tt.want, tt.wantOK)
		}
	}
}
