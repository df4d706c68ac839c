package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/providentiaww/odoo-mcp-gateway/cmd/mcp-server/auth"
	"github.com/providentiaww/odoo-mcp-gateway/cmd/mcp-server/handlers"
	mw "github.com/providentiaww/odoo-mcp-gateway/cmd/mcp-server/middleware"
	oauthhttp "github.com/providentiaww/odoo-mcp-gateway/cmd/mcp-server/oauth"
	"github.com/providentiaww/odoo-mcp-gateway/internal/app"
	"github.com/providentiaww/odoo-mcp-gateway/internal/config"
	"github.com/providentiaww/odoo-mcp-gateway/internal/logging"
	"github.com/providentiaww/odoo-mcp-gateway/internal/oauth"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bootstrap logs go to stderr so stdio mode never sees them on stdout.
	boot := logging.NewStderrLogger("odoo-mcp-gateway", "info", "json")

	settings, err := config.Load(ctx, boot, ".env")
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := run(ctx, settings); err != nil {
		boot.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, settings *config.Settings) error {
	var logger zerolog.Logger
	if settings.Server.Mode == "stdio" {
		logger = logging.NewStderrLogger("odoo-mcp-gateway", settings.Log.Level, settings.Log.Format)
	} else {
		logger = logging.NewLogger("odoo-mcp-gateway", settings.Log.Level, settings.Log.Format)
	}

	backend, err := app.NewBackend(ctx, settings, logger)
	if err != nil {
		return fmt.Errorf("build odoo backend: %w", err)
	}
	defer backend.Close()

	app.WarmUp(ctx, backend, settings, logger)

	odooHandler := handlers.NewOdooHandler(backend.Gateway, logger)
	mcpServer := handlers.NewMCPServer(odooHandler)

	if settings.Server.Mode == "stdio" {
		logger.Info().Msg("serving MCP over stdio")
		return server.ServeStdio(mcpServer)
	}
	return serveHTTP(ctx, settings, backend, odooHandler, mcpServer, logger)
}

func serveHTTP(ctx context.Context, settings *config.Settings, backend *app.Backend, odooHandler *handlers.OdooHandler, mcpServer *server.MCPServer, logger zerolog.Logger) error {
	mgr, err := oauth.NewManager(settings.OAuth.Manager(), logger)
	if err != nil {
		return fmt.Errorf("create oauth manager: %w", err)
	}
	staticID, _ := mgr.StaticClientCredentials()
	logger.Info().Str("client_id", staticID).Msg("static oauth client provisioned")

	issuer := auth.NewTokenIssuer(settings.Auth.SecretKey, time.Duration(settings.Auth.AccessTokenExpireMinutes)*time.Minute)
	var authOpts []auth.Option
	if iss := mgr.Config().Issuer; iss != "" {
		authOpts = append(authOpts, auth.WithResourceMetadata(iss+"/.well-known/oauth-protected-resource"))
	}
	authenticator := auth.NewAuthenticator(settings.Auth.APIKeys, issuer, mgr, logger, authOpts...)
	if len(settings.Auth.APIKeys) == 0 {
		logger.Warn().Msg("no API_KEYS configured, only JWT and OAuth bearer tokens are accepted")
	}

	requests, per, err := settings.Server.Rate()
	if err != nil {
		return err
	}
	limiter := mw.NewRateLimiter(requests, per, logger)

	restHandler := handlers.NewRestToolHandler(odooHandler, logger)
	loginHandler := handlers.NewLoginHandler(backend.Gateway, issuer, settings.Odoo.Username, settings.Odoo.Password, logger)
	healthHandler := handlers.NewHealthHandler(backend.Gateway, logger)
	oauthServer := oauthhttp.NewServer(mgr, logger)
	streamable := server.NewStreamableHTTPServer(mcpServer, server.WithEndpointPath("/"))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(mw.ClientIP(settings.Server.TrustProxy))
	r.Use(mw.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(mw.Metrics)
	r.Use(mw.CORS)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		r.Get("/", healthHandler.HandleRoot)
		r.Get("/health", healthHandler.HandleHealth)
		r.Post("/login", loginHandler.HandleLogin)
		oauthServer.Routes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(authenticator.Handler)
		r.Use(limiter.Handler)
		r.Get("/tools", restHandler.HandleListTools)
		r.Post("/call_tool", restHandler.HandleCallTool)
		r.Post("/webhook/n8n", restHandler.HandleN8NWebhook)
		r.Mount("/mcp", streamable)
	})

	httpServer := &http.Server{
		Addr:              settings.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(settings.OAuth.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				mgr.CleanupExpired()
				if idle := limiter.Sweep(); idle > 0 {
					logger.Debug().Int("limiters", idle).Msg("idle rate limiters removed")
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := streamable.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("mcp transport shutdown")
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
