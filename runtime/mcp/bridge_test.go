package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckpilot/deckpilot/runtime/telemetry"
	"github.com/deckpilot/deckpilot/runtime/tools"
)

// newMCPServer serves a minimal MCP endpoint advertising the given tools.
// tools/call echoes the tool name; a tool named "broken" reports isError.
func newMCPServer(t *testing.T, toolNames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.Method {
		case rpcMethodInitialize:
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"capabilities":{}}`)}
			_ = json.NewEncoder(w).Encode(resp)
		case rpcMethodToolsList:
			entries := make([]toolEntry, len(toolNames))
			for i, name := range toolNames {
				entries[i] = toolEntry{Name: name, Description: "tool " + name}
			}
			result, _ := json.Marshal(toolsListResult{Tools: entries})
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
			_ = json.NewEncoder(w).Encode(resp)
		case rpcMethodToolsCall:
			params, _ := req.Params.(map[string]any)
			name, _ := params["name"].(string)
			text := "ran " + name
			isErr := false
			if name == "broken" {
				text = "tool exploded"
				isErr = true
			}
			content, _ := json.Marshal(contentItem{Type: "text", Text: &text})
			result, _ := json.Marshal(toolsCallResult{Content: []json.RawMessage{content}, IsError: isErr})
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.Error(w, "unknown method", http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func loadOpts() []Option {
	return []Option{
		WithLogger(telemetry.NewNoopLogger()),
		WithMetrics(telemetry.NewNoopMetrics()),
	}
}

func TestLoadWrapsAdvertisedTools(t *testing.T) {
	srv := newMCPServer(t, "add_slide", "broken")
	ctx := context.Background()

	b := Load(ctx, []ServerConfig{
		{Name: "office", Transport: HTTPTransport{URL: srv.URL}},
	}, loadOpts()...)
	defer b.Close(ctx)

	ts := b.Tools()
	require.Len(t, ts, 2)
	require.Equal(t, "add_slide", ts[0].Name)
	require.Equal(t, "tool add_slide", ts[0].Description)

	res := ts[0].Invoke(ctx, json.RawMessage(`{"title":"Intro"}`))
	assert.Equal(t, tools.KindSuccess, res.Kind)
	assert.Equal(t, "ran add_slide", res.Text)
	assert.Equal(t, "office", res.Telemetry["server"])
	assert.NotEmpty(t, res.Telemetry["tool_call_id"])
	assert.Contains(t, res.Telemetry, "duration_ms")

	res = ts[1].Invoke(ctx, nil)
	assert.Equal(t, tools.KindFailure, res.Kind)
	assert.Equal(t, "tool exploded", res.Err)
}

func TestLoadSkipsUnreachableServer(t *testing.T) {
	good := newMCPServer(t, "add_slide")
	ctx := context.Background()

	b := Load(ctx, []ServerConfig{
		{Name: "dead", Transport: HTTPTransport{URL: "http://127.0.0.1:1"}},
		{Name: "office", Transport: HTTPTransport{URL: good.URL}},
	}, loadOpts()...)
	defer b.Close(ctx)

	ts := b.Tools()
	require.Len(t, ts, 1, "unreachable server must not block its siblings")
	assert.Equal(t, "add_slide", ts[0].Name)
}

func TestLoadRejectsDisallowedStdioCommand(t *testing.T) {
	ctx := context.Background()

	b := Load(ctx, []ServerConfig{
		{Name: "shell", Transport: StdioTransport{Command: "bash", Args: []string{"-c", "true"}}},
	}, loadOpts()...)
	defer b.Close(ctx)

	assert.Empty(t, b.Tools(), "disallowed stdio command must be skipped, not spawned")
}

func TestLoadSkipsMissingTransport(t *testing.T) {
	ctx := context.Background()

	b := Load(ctx, []ServerConfig{{Name: "void"}}, loadOpts()...)
	defer b.Close(ctx)

	assert.Empty(t, b.Tools())
}

type closeRecorder struct {
	closeErr error
	closed   int
}

func (c *closeRecorder) CallTool(context.Context, CallRequest) (CallResponse, error) {
	return CallResponse{}, errors.New("not scripted")
}

func (c *closeRecorder) ListTools(context.Context) ([]ToolInfo, error) { return nil, nil }

func (c *closeRecorder) Close() error {
	c.closed++
	return c.closeErr
}

func TestCloseContinuesPastFailures(t *testing.T) {
	first := &closeRecorder{closeErr: errors.New("broken pipe")}
	second := &closeRecorder{}
	b := &Bridge{
		log:     telemetry.NewNoopLogger(),
		metrics: telemetry.NewNoopMetrics(),
		clients: []namedClient{{name: "a", client: first}, {name: "b", client: second}},
	}

	b.Close(context.Background())

	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 1, second.closed, "a close failure must not stop the remaining clients")
	assert.Nil(t, b.clients)
}
