package handlers

import (
	"errors"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/providentiaww/odoo-mcp-gateway/cmd/mcp-server/auth"
)

// RestToolHandler exposes the MCP tools as plain JSON endpoints for
// automation platforms that do not speak MCP.
type RestToolHandler struct {
	tools  *OdooHandler
	logger zerolog.Logger
}

// NewRestToolHandler creates a new REST tool handler.
func NewRestToolHandler(tools *OdooHandler, logger zerolog.Logger) *RestToolHandler {
	return &RestToolHandler{tools: tools, logger: logger.With().Str("component", "rest_tools").Logger()}
}

type toolCallRequest struct {
	Tool      string                 `json:"tool" validate:"required"`
	Arguments map[string]interface{} `json:"arguments"`
}

type toolDescriptor struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	InputSchema mcp.ToolInputSchema `json:"inputSchema"`
}

// HandleListTools lists every tool with its input schema.
func (h *RestToolHandler) HandleListTools(w http.ResponseWriter, r *http.Request) {
	tools := h.tools.Tools()
	out := make([]toolDescriptor, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolDescriptor{Name: t.Tool.Name, Description: t.Tool.Description, InputSchema: t.Tool.InputSchema})
	}
	h.logger.Info().Str("auth_type", authType(r)).Msg("tools listed")
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": out})
}

// HandleCallTool runs one tool and returns its JSON text as "result".
func (h *RestToolHandler) HandleCallTool(w http.ResponseWriter, r *http.Request) {
	var req toolCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Info().Str("tool", req.Tool).Str("auth_type", authType(r)).Msg("tool call requested")

	text, err := h.call(r, req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownTool) {
			status = http.StatusBadRequest
		}
		writeDetail(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "result": text})
}

// HandleN8NWebhook is HandleCallTool with the response shape n8n expects.
func (h *RestToolHandler) HandleN8NWebhook(w http.ResponseWriter, r *http.Request) {
	var req toolCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": err.Error(), "webhook": "n8n"})
		return
	}
	h.logger.Info().Str("tool", req.Tool).Msg("n8n webhook called")

	text, err := h.call(r, req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownTool) {
			status = http.StatusBadRequest
		}
		h.logger.Error().Err(err).Str("tool", req.Tool).Msg("n8n webhook failed")
		writeJSON(w, status, map[string]interface{}{"success": false, "error": err.Error(), "webhook": "n8n"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": text, "webhook": "n8n"})
}

func (h *RestToolHandler) call(r *http.Request, req toolCallRequest) (string, error) {
	result, err := h.tools.Call(r.Context(), req.Tool, req.Arguments)
	if err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", nil
	}
	if text, ok := result.Content[0].(mcp.TextContent); ok {
		return text.Text, nil
	}
	return "", nil
}

func authType(r *http.Request) string {
	if user, ok := auth.GetUserContext(r.Context()); ok {
		return user.AuthType
	}
	return ""
}
