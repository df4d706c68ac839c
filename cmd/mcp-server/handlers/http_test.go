package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/providentiaww/odoo-mcp-gateway/cmd/mcp-server/auth"
	"github.com/providentiaww/odoo-mcp-gateway/internal/odoo"
)

func serve(t *testing.T, handler http.HandlerFunc, method, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req = req.WithContext(auth.WithUserContext(req.Context(), &auth.UserContext{Subject: "t", AuthType: auth.AuthTypeAPIKey}))
	handler(rec, req)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestRestListTools(t *testing.T) {
	h := NewRestToolHandler(NewOdooHandler(&fakeGateway{}, zerolog.Nop()), zerolog.Nop())

	rec, body := serve(t, h.HandleListTools, http.MethodGet, "")
	require.Equal(t, http.StatusOK, rec.Code)
	tools := body["tools"].([]interface{})
	require.Len(t, tools, 7)
	first := tools[0].(map[string]interface{})
	assert.Equal(t, "odoo_search_records", first["name"])
	schema := first["inputSchema"].(map[string]interface{})
	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema["properties"], "domain")
}

func TestRestCallTool(t *testing.T) {
	gw := &fakeGateway{searchIDs: []int{5}}
	h := NewRestToolHandler(NewOdooHandler(gw, zerolog.Nop()), zerolog.Nop())

	rec, body := serve(t, h.HandleCallTool, http.MethodPost, `{"tool":"odoo_search_records","arguments":{"model":"res.partner","limit":1}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body["result"].(string)), &result))
	assert.Equal(t, []interface{}{5.0}, result["record_ids"])
	assert.Equal(t, odoo.SearchOptions{Limit: 1}, gw.opts)

	rec, body = serve(t, h.HandleCallTool, http.MethodPost, `{"tool":"nope","arguments":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["detail"], "unknown tool")

	rec, _ = serve(t, h.HandleCallTool, http.MethodPost, `{"arguments":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestCallToolCarriesErrorEnvelope(t *testing.T) {
	gw := &fakeGateway{err: &odoo.RemoteCallError{Model: "m", Method: "search", Err: errors.New("down")}}
	h := NewRestToolHandler(NewOdooHandler(gw, zerolog.Nop()), zerolog.Nop())

	rec, body := serve(t, h.HandleCallTool, http.MethodPost, `{"tool":"odoo_search_records","arguments":{"model":"m"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["result"], `"error_type": "RemoteCallError"`)
}

func TestN8NWebhook(t *testing.T) {
	gw := &fakeGateway{createID: 3}
	h := NewRestToolHandler(NewOdooHandler(gw, zerolog.Nop()), zerolog.Nop())

	rec, body := serve(t, h.HandleN8NWebhook, http.MethodPost, `{"tool":"odoo_create_record","arguments":{"model":"res.partner","values":{"name":"n8n"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "n8n", body["webhook"])
	assert.Contains(t, body["data"], `"record_id": 3`)

	rec, body = serve(t, h.HandleN8NWebhook, http.MethodPost, `{"tool":"missing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "n8n", body["webhook"])
}

func TestLogin(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", 30*time.Minute)

	h := NewLoginHandler(&fakeGateway{uid: 2}, issuer, "admin", "pw", zerolog.Nop())
	rec, body := serve(t, h.HandleLogin, http.MethodPost, `{"username":"admin","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bearer", body["token_type"])
	assert.Equal(t, 1800.0, body["expires_in"])

	claims, err := issuer.Verify(body["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, 2, claims.OdooUID)

	rec, _ = serve(t, h.HandleLogin, http.MethodPost, `{"username":"admin","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = serve(t, h.HandleLogin, http.MethodPost, `{"username":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	failing := NewLoginHandler(&fakeGateway{err: errors.New("down")}, issuer, "admin", "pw", zerolog.Nop())
	rec, _ = serve(t, failing.HandleLogin, http.MethodPost, `{"username":"admin","password":"pw"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	unconfigured := NewLoginHandler(&fakeGateway{}, issuer, "", "", zerolog.Nop())
	rec, _ = serve(t, unconfigured.HandleLogin, http.MethodPost, `{"username":"admin","password":"pw"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(&fakeGateway{uid: 2}, zerolog.Nop())
	rec, body := serve(t, h.HandleHealth, http.MethodGet, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 2.0, body["odoo_uid"])

	h = NewHealthHandler(&fakeGateway{err: errors.New("connection refused")}, zerolog.Nop())
	rec, body = serve(t, h.HandleHealth, http.MethodGet, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, false, body["odoo_connected"])

	rec, body = serve(t, h.HandleRoot, http.MethodGet, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ServiceName, body["name"])
}
