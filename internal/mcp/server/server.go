// Package server exposes built-in tools as a standalone MCP server, so the
// dice and inventory tools can be used by any MCP client over stdio.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/talewind/internal/mcp/tools"
	"github.com/MrWong99/talewind/internal/mcp/tools/inventory"
)

// Version is reported to clients in the initialize handshake.
const Version = "1.0.0"

// New returns an MCP server named name that serves ts. Tools without a
// parameter schema are offered with an empty object schema, which the SDK
// requires.
func New(name string, ts []tools.Tool) *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: name, Version: Version}, nil)
	for _, t := range ts {
		schema := t.Definition.Parameters
		if len(schema) == 0 {
			schema = tools.Schema()
		}
		srv.AddTool(&mcpsdk.Tool{
			Name:        t.Definition.Name,
			Description: t.Definition.Description,
			InputSchema: schema,
		}, toolHandler(t))
	}
	return srv
}

// toolHandler adapts a built-in handler to the SDK. Handler errors are
// reported as error results rather than protocol errors.
func toolHandler(t tools.Tool) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := "{}"
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			args = string(req.Params.Arguments)
		}
		out, err := t.Handler(ctx, args)
		if err != nil {
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}
		return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}}}, nil
	}
}

// Inventory resource URIs.
const (
	InventoriesURI   = "inventory://"
	ItemsURITemplate = "inventory://{owner}/items"
)

// AddInventoryResources publishes the inventory listings as read-only
// resources: InventoriesURI lists all owners and ItemsURITemplate lists the
// items of one owner, both as JSON arrays.
func AddInventoryResources(srv *mcpsdk.Server, store inventory.Store) {
	srv.AddResource(&mcpsdk.Resource{
		URI:         InventoriesURI,
		Name:        "inventories",
		Description: "All inventory owners.",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
		owners, err := store.Owners(ctx)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, owners)
	})

	srv.AddResourceTemplate(&mcpsdk.ResourceTemplate{
		URITemplate: ItemsURITemplate,
		Name:        "inventory-items",
		Description: "The items held by one owner.",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
		uri := req.Params.URI
		owner, ok := ownerFromURI(uri)
		if !ok {
			return nil, mcpsdk.ResourceNotFoundError(uri)
		}
		items, err := store.Items(ctx, owner)
		if err != nil {
			return nil, mcpsdk.ResourceNotFoundError(uri)
		}
		return jsonResource(uri, items)
	})
}

// ownerFromURI extracts the owner from "inventory://{owner}/items".
func ownerFromURI(uri string) (string, bool) {
	rest, ok := strings.CutPrefix(uri, InventoriesURI)
	if !ok {
		return "", false
	}
	owner, ok := strings.CutSuffix(rest, "/items")
	if !ok || owner == "" || strings.Contains(owner, "/") {
		return "", false
	}
	owner, err := url.PathUnescape(owner)
	if err != nil {
		return "", false
	}
	return owner, true
}

func jsonResource(uri string, v []string) (*mcpsdk.ReadResourceResult, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("server: encode %s: %w", uri, err)
	}
	return &mcpsdk.ReadResourceResult{Contents: []*mcpsdk.ResourceContents{{
		URI:      uri,
		MIMEType: "application/json",
		Text:     string(b),
	}}}, nil
}

// ServeStdio runs srv on stdin/stdout until ctx is cancelled or the client
// disconnects.
func ServeStdio(ctx context.Context, srv *mcpsdk.Server) error {
	if err := srv.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("server: run: %w", err)
	}
	return nil
}
