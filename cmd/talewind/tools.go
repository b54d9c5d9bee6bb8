package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/talewind/internal/config"
	"github.com/MrWong99/talewind/internal/mcp/server"
	"github.com/MrWong99/talewind/internal/mcp/tools/dice"
	"github.com/MrWong99/talewind/internal/mcp/tools/inventory"
)

var inventoryDSN string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Built-in game tools",
}

var toolsServeCmd = &cobra.Command{
	Use:       "serve dice|inventory",
	Short:     "Serve a built-in tool set as an MCP server over stdio",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"dice", "inventory"},
	RunE:      serveTools,
}

func init() {
	toolsServeCmd.Flags().StringVar(&inventoryDSN, "dsn", os.Getenv("TALEWIND_INVENTORY_DSN"),
		"PostgreSQL DSN for the inventory store (default in-memory)")
	toolsCmd.AddCommand(toolsServeCmd)
}

// serveTools runs until the client disconnects. Stdout carries the protocol,
// so logs go to stderr only.
func serveTools(cmd *cobra.Command, args []string) error {
	slog.SetDefault(newLogger(config.LogInfo))
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "dice":
		slog.Info("serving dice tools over stdio")
		return server.ServeStdio(ctx, server.New("talewind-dice", dice.Tools()))

	case "inventory":
		var store inventory.Store = inventory.NewMemStore()
		if inventoryDSN != "" {
			pg, pool, err := inventory.Open(ctx, inventoryDSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			store = pg
		}
		srv := server.New("talewind-inventory", inventory.Tools(store))
		server.AddInventoryResources(srv, store)
		slog.Info("serving inventory tools over stdio", "persistent", inventoryDSN != "")
		return server.ServeStdio(ctx, srv)
	}
	return fmt.Errorf("%w: unknown tool set %q", errUsage, args[0])
}
