package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenai/warden/internal/a2a"
	"github.com/wardenai/warden/internal/bridge"
	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/gateway"
	"github.com/wardenai/warden/internal/registry"
)

// noopDispatcher satisfies gateway.Dispatcher without doing anything, used
// where only routing behavior is under test.
type noopDispatcher struct{}

func (noopDispatcher) Dispatch(_ context.Context, _ string) {}

func newTestServer(t *testing.T, authScheme string) (*gateway.Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(2, 2)
	br := bridge.New(bridge.Config{BaseURL: "http://unused.invalid", ReportsDir: t.TempDir()})
	cfg := config.Default().Gateway
	cfg.Authentication = config.AuthConfig{Scheme: authScheme, APIKey: "secret"}
	info := gateway.AgentCardInfo{Name: "warden", Description: "test", URL: "http://localhost"}
	srv := gateway.New(cfg, reg, br, noopDispatcher{}, info, nil, nil)
	return srv, reg
}

func doRPC(t *testing.T, srv *gateway.Server, method string, params any, headers map[string]string) a2a.Response {
	t.Helper()
	paramsJSON, err := json.Marshal(params)
	require.NoError(t, err)
	req := a2a.Request{JSONRPC: "2.0", Method: method, ID: json.RawMessage(`1`), Params: paramsJSON}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httpReq)

	var resp a2a.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAgentCardServed(t *testing.T) {
	srv, _ := newTestServer(t, "none")
	req := httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var card a2a.AgentCard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))
	assert.Equal(t, "warden", card.Name)
}

func TestMessageSendCreatesTask(t *testing.T) {
	srv, reg := newTestServer(t, "none")
	resp := doRPC(t, srv, "message/send", map[string]any{
		"message": map[string]any{
			"role":  "user",
			"parts": []map[string]any{{"type": "text", "text": "hello"}},
		},
	}, nil)
	require.Nil(t, resp.Error)

	var snap a2a.TaskSnapshot
	raw, _ := json.Marshal(resp.Result)
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.NotEmpty(t, snap.ID)

	_, ok := reg.Get(snap.ID)
	assert.True(t, ok)
}

func TestAPIKeyAuthRejectsMissingKey(t *testing.T) {
	srv, _ := newTestServer(t, "api-key")
	resp := doRPC(t, srv, "message/send", map[string]any{
		"message": map[string]any{"role": "user", "parts": []map[string]any{{"type": "text", "text": "hi"}}},
	}, nil)
	require.NotNil(t, resp.Error)
}

func TestAPIKeyAuthAcceptsValidKey(t *testing.T) {
	srv, _ := newTestServer(t, "api-key")
	resp := doRPC(t, srv, "message/send", map[string]any{
		"message": map[string]any{"role": "user", "parts": []map[string]any{{"type": "text", "text": "hi"}}},
	}, map[string]string{"X-API-KEY": "secret"})
	assert.Nil(t, resp.Error)
}

func TestTasksGetNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "none")
	resp := doRPC(t, srv, "tasks/get", map[string]any{"id": "does-not-exist"}, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, a2a.CodeTaskNotFound, resp.Error.Code)
}

func TestPascalCaseMethodAlias(t *testing.T) {
	srv, _ := newTestServer(t, "none")
	resp := doRPC(t, srv, "TasksGet", map[string]any{"id": "nope"}, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, a2a.CodeTaskNotFound, resp.Error.Code)
}
