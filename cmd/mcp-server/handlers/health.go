package handlers

import (
	"net/http"

	"github.com/rs/zerolog"
)

// ServiceName and Version identify the gateway in responses and MCP metadata.
const (
	ServiceName = "Odoo MCP Gateway"
	Version     = "2.0.0"
)

// HealthHandler serves the service index and the backend health check.
type HealthHandler struct {
	backend BackendAuthenticator
	logger  zerolog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(backend BackendAuthenticator, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{backend: backend, logger: logger}
}

// HandleRoot describes the service and its endpoints.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    ServiceName,
		"version": Version,
		"status":  "running",
		"endpoints": map[string]string{
			"mcp_streamable": "/mcp (POST - MCP streamable HTTP)",
			"tools":          "/tools",
			"call_tool":      "/call_tool",
			"login":          "/login",
			"webhook_n8n":    "/webhook/n8n",
			"health":         "/health",
			"metrics":        "/metrics",
			"oauth_metadata": "/.well-known/oauth-authorization-server",
		},
		"n8n_connection": map[string]string{
			"transport":      "HTTP Streamable",
			"endpoint":       "/mcp",
			"authentication": "Bearer token (API key, JWT from /login, or OAuth access token)",
		},
	})
}

// HandleHealth authenticates against the backend and reports the result.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	uid, err := h.backend.Authenticate(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":         "unhealthy",
			"odoo_connected": false,
			"error":          err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"odoo_connected": true,
		"odoo_uid":       uid,
	})
}
