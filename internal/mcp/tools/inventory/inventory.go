// Package inventory provides the built-in inventory tools: create_inventory,
// list_inventories, list_items, add_item, remove_item and update_item.
//
// Every inventory is keyed by a non-empty owner and holds an ordered list of
// items in which duplicates are allowed. Failures are reported to the model
// as plain sentences ("Inventory for bob does not exist."), optionally
// followed by a "did you mean" hint when a near match exists.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/talewind/internal/mcp/tools"
	"github.com/MrWong99/talewind/pkg/types"
)

// Tool names.
const (
	ToolCreate = "create_inventory"
	ToolOwners = "list_inventories"
	ToolItems  = "list_items"
	ToolAdd    = "add_item"
	ToolRemove = "remove_item"
	ToolUpdate = "update_item"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for a hint.
const suggestThreshold = 0.85

type ownerArgs struct {
	Owner string `json:"owner"`
}

type itemArgs struct {
	Owner   string `json:"owner"`
	Item    string `json:"item"`
	NewItem string `json:"new_item"`
}

var (
	ownerProp = tools.Property{Name: "owner", Type: "string", Description: "The owner of the inventory. Must be a non-empty string."}
	itemProp  = tools.Property{Name: "item", Type: "string", Description: "The item name."}
	newProp   = tools.Property{Name: "new_item", Type: "string", Description: "The item that replaces the old one."}
)

// Tools returns the inventory tools backed by store.
func Tools(store Store) []tools.Tool {
	h := &handlers{store: store}
	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        ToolCreate,
				Description: "Create a new, empty inventory for the given owner.",
				Parameters:  tools.Schema(ownerProp),
			},
			Handler: h.create,
		},
		{
			Definition: types.ToolDefinition{
				Name:        ToolOwners,
				Description: "List the owners of all existing inventories as a JSON array.",
				Parameters:  tools.Schema(),
			},
			Handler: h.owners,
		},
		{
			Definition: types.ToolDefinition{
				Name:        ToolItems,
				Description: "List all items in the owner's inventory as a JSON array.",
				Parameters:  tools.Schema(ownerProp),
			},
			Handler: h.items,
		},
		{
			Definition: types.ToolDefinition{
				Name:        ToolAdd,
				Description: "Add an item to the owner's inventory. The same item may be held more than once.",
				Parameters:  tools.Schema(ownerProp, itemProp),
			},
			Handler: h.add,
		},
		{
			Definition: types.ToolDefinition{
				Name:        ToolRemove,
				Description: "Remove one copy of an item from the owner's inventory.",
				Parameters:  tools.Schema(ownerProp, itemProp),
			},
			Handler: h.remove,
		},
		{
			Definition: types.ToolDefinition{
				Name:        ToolUpdate,
				Description: "Replace one copy of an item in the owner's inventory with a new item.",
				Parameters:  tools.Schema(ownerProp, itemProp, newProp),
			},
			Handler: h.update,
		},
	}
}

type handlers struct {
	store Store
}

func (h *handlers) create(ctx context.Context, args string) (string, error) {
	var a ownerArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "", err
	}
	if err := h.store.Create(ctx, a.Owner); err != nil {
		return "", h.describe(ctx, err, a.Owner, "")
	}
	return fmt.Sprintf("Empty inventory created for %s.", a.Owner), nil
}

func (h *handlers) owners(ctx context.Context, _ string) (string, error) {
	owners, err := h.store.Owners(ctx)
	if err != nil {
		return "", err
	}
	return jsonList(owners)
}

func (h *handlers) items(ctx context.Context, args string) (string, error) {
	var a ownerArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "", err
	}
	items, err := h.store.Items(ctx, a.Owner)
	if err != nil {
		return "", h.describe(ctx, err, a.Owner, "")
	}
	return jsonList(items)
}

func (h *handlers) add(ctx context.Context, args string) (string, error) {
	var a itemArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "", err
	}
	if a.Item == "" {
		return "", errors.New("Item must be a non-empty string.")
	}
	if err := h.store.Add(ctx, a.Owner, a.Item); err != nil {
		return "", h.describe(ctx, err, a.Owner, a.Item)
	}
	return fmt.Sprintf("Added %s to the inventory of %s.", a.Item, a.Owner), nil
}

func (h *handlers) remove(ctx context.Context, args string) (string, error) {
	var a itemArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "", err
	}
	if err := h.store.Remove(ctx, a.Owner, a.Item); err != nil {
		return "", h.describe(ctx, err, a.Owner, a.Item)
	}
	return fmt.Sprintf("Removed %s from the inventory of %s.", a.Item, a.Owner), nil
}

func (h *handlers) update(ctx context.Context, args string) (string, error) {
	var a itemArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "", err
	}
	if a.NewItem == "" {
		return "", errors.New("New item must be a non-empty string.")
	}
	if err := h.store.Update(ctx, a.Owner, a.Item, a.NewItem); err != nil {
		return "", h.describe(ctx, err, a.Owner, a.Item)
	}
	return fmt.Sprintf("Replaced %s with %s in the inventory of %s.", a.Item, a.NewItem, a.Owner), nil
}

// describe turns a store error into the sentence shown to the model.
func (h *handlers) describe(ctx context.Context, err error, owner, item string) error {
	switch {
	case errors.Is(err, ErrEmptyOwner):
		return errors.New("Owner must be a non-empty string.")
	case errors.Is(err, ErrExists):
		return fmt.Errorf("Inventory for %s already exists.", owner)
	case errors.Is(err, ErrNotFound):
		msg := fmt.Sprintf("Inventory for %s does not exist.", owner)
		if owners, lerr := h.store.Owners(ctx); lerr == nil {
			msg += hint(owner, owners)
		}
		return errors.New(msg)
	case errors.Is(err, ErrItemNotFound):
		msg := fmt.Sprintf("The inventory of %s does not contain %s.", owner, item)
		if items, lerr := h.store.Items(ctx, owner); lerr == nil {
			msg += hint(item, items)
		}
		return errors.New(msg)
	default:
		return err
	}
}

// hint returns ` Did you mean "x"?` for the closest candidate, or "".
func hint(target string, candidates []string) string {
	if s, ok := Suggest(target, candidates); ok {
		return fmt.Sprintf(" Did you mean %q?", s)
	}
	return ""
}

// Suggest returns the candidate most similar to target, if any reaches the
// similarity threshold. Comparison ignores case.
func Suggest(target string, candidates []string) (string, bool) {
	t := strings.ToLower(target)
	best, bestScore := "", 0.0
	for _, c := range candidates {
		if c == target {
			continue
		}
		if score := matchr.JaroWinkler(t, strings.ToLower(c), false); score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore >= suggestThreshold
}

func jsonList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
