// Command mcp-stdio serves the Odoo tools to a local MCP client over
// stdin/stdout. All logging goes to stderr.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/providentiaww/odoo-mcp-gateway/cmd/mcp-server/handlers"
	"github.com/providentiaww/odoo-mcp-gateway/internal/app"
	"github.com/providentiaww/odoo-mcp-gateway/internal/config"
	"github.com/providentiaww/odoo-mcp-gateway/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot := logging.NewStderrLogger("odoo-mcp-stdio", "info", "json")
	settings, err := config.Load(ctx, boot, ".env")
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := logging.NewStderrLogger("odoo-mcp-stdio", settings.Log.Level, settings.Log.Format)

	backend, err := app.NewBackend(ctx, settings, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build odoo backend")
	}
	defer backend.Close()

	app.WarmUp(ctx, backend, settings, logger)

	mcpServer := handlers.NewMCPServer(handlers.NewOdooHandler(backend.Gateway, logger))
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Error().Err(err).Msg("stdio server stopped")
	}
}
