package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/providentiaww/odoo-mcp-gateway/internal/odoo"
)

const (
	defaultLimit  = 10
	defaultOffset = 0
)

var errorSuggestions = []string{
	"Check that the model name is correct",
	"Verify that field names match the model schema",
	"Ensure you have proper permissions",
	"Use odoo_get_model_fields to see available fields",
}

// Gateway is the Odoo surface the tools need.
type Gateway interface {
	Search(ctx context.Context, model string, domain []interface{}, opts odoo.SearchOptions) ([]int, error)
	Read(ctx context.Context, model string, ids []int, fields []string) ([]odoo.Record, error)
	SearchRead(ctx context.Context, model string, domain []interface{}, fields []string, opts odoo.SearchOptions) ([]odoo.Record, error)
	Create(ctx context.Context, model string, values map[string]interface{}) (int, error)
	Write(ctx context.Context, model string, ids []int, values map[string]interface{}) (bool, error)
	Unlink(ctx context.Context, model string, ids []int) (bool, error)
	GetFields(ctx context.Context, model string) (map[string]interface{}, error)
}

// OdooHandler implements the Odoo MCP tools.
type OdooHandler struct {
	gw     Gateway
	logger zerolog.Logger
	tools  []server.ServerTool
	byName map[string]server.ToolHandlerFunc
}

// NewOdooHandler creates a new Odoo handler.
func NewOdooHandler(gw Gateway, logger zerolog.Logger) *OdooHandler {
	h := &OdooHandler{
		gw:     gw,
		logger: logger.With().Str("component", "tools").Logger(),
	}
	h.tools = []server.ServerTool{
		{Tool: searchRecordsTool(), Handler: h.wrap("odoo_search_records", h.searchRecords)},
		{Tool: readRecordsTool(), Handler: h.wrap("odoo_read_records", h.readRecords)},
		{Tool: searchReadRecordsTool(), Handler: h.wrap("odoo_search_read_records", h.searchReadRecords)},
		{Tool: createRecordTool(), Handler: h.wrap("odoo_create_record", h.createRecord)},
		{Tool: updateRecordTool(), Handler: h.wrap("odoo_update_record", h.updateRecord)},
		{Tool: deleteRecordTool(), Handler: h.wrap("odoo_delete_record", h.deleteRecord)},
		{Tool: getModelFieldsTool(), Handler: h.wrap("odoo_get_model_fields", h.getModelFields)},
	}
	h.byName = make(map[string]server.ToolHandlerFunc, len(h.tools))
	for _, t := range h.tools {
		h.byName[t.Tool.Name] = t.Handler
	}
	return h
}

// Tools returns the tools for registration on an MCP server.
func (h *OdooHandler) Tools() []server.ServerTool {
	return h.tools
}

// Register adds every tool to srv.
func (h *OdooHandler) Register(srv *server.MCPServer) {
	srv.AddTools(h.tools...)
}

// NewMCPServer builds the MCP server that both transports serve.
func NewMCPServer(h *OdooHandler) *server.MCPServer {
	srv := server.NewMCPServer(
		ServiceName,
		Version,
		server.WithToolCapabilities(false),
		server.WithInstructions("Odoo ERP access over XML-RPC: search, read, create, update and delete records of any model, and inspect model fields."),
	)
	h.Register(srv)
	return srv
}

// ErrUnknownTool is returned by Call for names outside the tool set.
var ErrUnknownTool = errors.New("unknown tool")

// Call dispatches a tool by name outside of an MCP session.
func (h *OdooHandler) Call(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	handler, ok := h.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return handler(ctx, req)
}

type toolFunc func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

// wrap renders a tool's outcome as the JSON envelope. Failures become an
// error envelope on an IsError result, never a Go error.
func (h *OdooHandler) wrap(name string, fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callID := uuid.NewString()
		start := time.Now()
		args := req.GetArguments()
		log := h.logger.With().Str("tool", name).Str("call_id", callID).Logger()
		log.Info().Interface("arguments", args).Msg("tool call started")

		resp, err := fn(ctx, args)
		toolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			kind := errorType(err)
			toolCalls.WithLabelValues(name, kind).Inc()
			log.Error().Err(err).Str("error_type", kind).Msg("tool call failed")
			return envelope(map[string]interface{}{
				"success":     false,
				"error":       err.Error(),
				"error_type":  kind,
				"message":     fmt.Sprintf("Error executing %s: %v", name, err),
				"suggestions": errorSuggestions,
			}, true), nil
		}

		toolCalls.WithLabelValues(name, "success").Inc()
		log.Info().Dur("duration", time.Since(start)).Msg("tool call succeeded")
		resp["success"] = true
		return envelope(resp, false), nil
	}
}

func envelope(payload map[string]interface{}, isError bool) *mcp.CallToolResult {
	text, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		text = []byte(fmt.Sprintf(`{"success": false, "error": %q, "error_type": "EncodingError"}`, err.Error()))
		isError = true
	}
	result := mcp.NewToolResultText(string(text))
	result.IsError = isError
	return result
}

func errorType(err error) string {
	var authErr *odoo.AuthenticationError
	var callErr *odoo.RemoteCallError
	var argErr *ArgumentError
	switch {
	case errors.As(err, &argErr):
		return "ValidationError"
	case errors.As(err, &authErr):
		return "AuthenticationError"
	case errors.As(err, &callErr):
		return "RemoteCallError"
	default:
		return "Error"
	}
}

func (h *OdooHandler) searchRecords(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	model, domain, opts, err := searchArgs(args)
	if err != nil {
		return nil, err
	}
	ids, err := h.gw.Search(ctx, model, domain, opts)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"record_ids": ids,
		"count":      len(ids),
		"message":    fmt.Sprintf("Found %d record(s) in %s", len(ids), model),
	}, nil
}

func (h *OdooHandler) readRecords(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	model, err := requireModel(args)
	if err != nil {
		return nil, err
	}
	ids, err := requireIDs(args, "ids")
	if err != nil {
		return nil, err
	}
	fields, err := optionalStrings(args, "fields")
	if err != nil {
		return nil, err
	}
	records, err := h.gw.Read(ctx, model, ids, fields)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"records": records,
		"count":   len(records),
		"message": fmt.Sprintf("Retrieved %d record(s) from %s", len(records), model),
	}, nil
}

func (h *OdooHandler) searchReadRecords(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	model, domain, opts, err := searchArgs(args)
	if err != nil {
		return nil, err
	}
	fields, err := optionalStrings(args, "fields")
	if err != nil {
		return nil, err
	}
	records, err := h.gw.SearchRead(ctx, model, domain, fields, opts)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"records": records,
		"count":   len(records),
		"message": fmt.Sprintf("Found and retrieved %d record(s) from %s", len(records), model),
	}, nil
}

func (h *OdooHandler) createRecord(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	model, err := requireModel(args)
	if err != nil {
		return nil, err
	}
	values, err := requireValues(args)
	if err != nil {
		return nil, err
	}
	id, err := h.gw.Create(ctx, model, values)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"record_id": id,
		"message":   fmt.Sprintf("Successfully created record in %s with ID %d", model, id),
	}, nil
}

func (h *OdooHandler) updateRecord(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	model, err := requireModel(args)
	if err != nil {
		return nil, err
	}
	ids, err := requireIDs(args, "ids")
	if err != nil {
		return nil, err
	}
	values, err := requireValues(args)
	if err != nil {
		return nil, err
	}
	ok, err := h.gw.Write(ctx, model, ids, values)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"updated": ok,
		"count":   len(ids),
		"message": fmt.Sprintf("Successfully updated %d record(s) in %s", len(ids), model),
	}, nil
}

func (h *OdooHandler) deleteRecord(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	model, err := requireModel(args)
	if err != nil {
		return nil, err
	}
	ids, err := requireIDs(args, "ids")
	if err != nil {
		return nil, err
	}
	ok, err := h.gw.Unlink(ctx, model, ids)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"deleted": ok,
		"count":   len(ids),
		"message": fmt.Sprintf("Successfully deleted %d record(s) from %s", len(ids), model),
	}, nil
}

func (h *OdooHandler) getModelFields(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	model, err := requireModel(args)
	if err != nil {
		return nil, err
	}
	fields, err := h.gw.GetFields(ctx, model)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"fields":      fields,
		"field_count": len(fields),
		"message":     fmt.Sprintf("Retrieved %d field definitions for %s", len(fields), model),
	}, nil
}

func searchArgs(args map[string]interface{}) (string, []interface{}, odoo.SearchOptions, error) {
	var opts odoo.SearchOptions
	model, err := requireModel(args)
	if err != nil {
		return "", nil, opts, err
	}
	domain, err := optionalList(args, "domain")
	if err != nil {
		return "", nil, opts, err
	}
	if opts.Limit, err = optionalInt(args, "limit", defaultLimit); err != nil {
		return "", nil, opts, err
	}
	if opts.Offset, err = optionalInt(args, "offset", defaultOffset); err != nil {
		return "", nil, opts, err
	}
	if opts.Order, err = optionalString(args, "order"); err != nil {
		return "", nil, opts, err
	}
	return model, domain, opts, nil
}
