package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	stdioHelperEnv      = "DECKPILOT_MCP_STDIO_HELPER"
	rpcMethodInitialize = "initialize"
	rpcMethodToolsCall  = "tools/call"
	rpcMethodToolsList  = "tools/list"
)

func init() { otel.SetTextMapPropagator(propagation.TraceContext{}) }

func TestHTTPCallerCallTool(t *testing.T) {
	t.Parallel()
	var traceHeader string
	var metaTrace string
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
		case rpcMethodToolsCall:
			traceHeader = r.Header.Get("Traceparent")
			if params, ok := req.Params.(map[string]any); ok {
				if meta, ok := params["_meta"].(map[string]any); ok {
					if tp, ok := meta["traceparent"].(string); ok {
						metaTrace = tp
					}
				}
			}
			resultJSON := `{"content":[{"type":"text","text":"slide added"}],"isError":false}`
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(resultJSON)}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.Error(w, "unknown method", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	ctx, expectedTrace := contextWithTrace()
	caller, err := NewHTTPCaller(ctx, HTTPOptions{Endpoint: srv.URL})
	require.NoError(t, err)
	resp, err := caller.CallTool(ctx, CallRequest{Tool: "add_slide", Payload: json.RawMessage(`{"title":"Intro"}`)})
	require.NoError(t, err)
	require.Equal(t, "slide added", resp.Text)
	require.False(t, resp.IsError)
	require.Equal(t, expectedTrace, traceHeader)
	require.Equal(t, expectedTrace, metaTrace)
}

func TestHTTPCallerListTools(t *testing.T) {
	t.Parallel()
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
			resultJSON := `{"tools":[
				{"name":"add_slide","description":"Add a slide","inputSchema":{"type":"object"}},
				{"name":"set_title","description":"Set the slide title"}
			]}`
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(resultJSON)}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.Error(w, "unknown method", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	caller, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	require.NoError(t, err)
	infos, err := caller.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, "add_slide", infos[0].Name)
	require.Equal(t, "Add a slide", infos[0].Description)
	require.JSONEq(t, `{"type":"object"}`, string(infos[0].InputSchema))
	require.Equal(t, "set_title", infos[1].Name)
	require.Empty(t, infos[1].InputSchema)
}

func TestHTTPCallerInitializeFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: JSONRPCInternalError, Message: "refused"}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	_, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL, InitTimeout: time.Second})
	require.Error(t, err)
	require.Contains(t, err.Error(), "mcp initialize failed")
}

func TestHTTPCallerRPCError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Method {
		case rpcMethodInitialize:
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"capabilities":{}}`)}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: JSONRPCMethodNotFound, Message: "no such tool"}}
			_ = json.NewEncoder(w).Encode(resp)
		}
	}))
	defer srv.Close()

	caller, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = caller.CallTool(context.Background(), CallRequest{Tool: "ghost"})
	require.Error(t, err)
	var mcpErr *Error
	require.ErrorAs(t, err, &mcpErr)
	require.Equal(t, JSONRPCMethodNotFound, mcpErr.Code)
	require.Equal(t, "no such tool", mcpErr.Message)
}

func TestSSECallerCallTool(t *testing.T) {
	t.Parallel()
	var traceHeader string
	var metaTrace string
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
		case rpcMethodToolsCall:
			traceHeader = r.Header.Get("Traceparent")
			if params, ok := req.Params.(map[string]any); ok {
				if meta, ok := params["_meta"].(map[string]any); ok {
					if tp, ok := meta["traceparent"].(string); ok {
						metaTrace = tp
					}
				}
			}
			w.Header().Set("Content-Type", "text/event-stream")
			flusher, _ := w.(http.Flusher)
			// A notification before the response must be skipped.
			_, _ = fmt.Fprintf(w, "event: notification\n")
			_, _ = fmt.Fprintf(w, "data: {\"method\":\"progress\"}\n\n")
			resultJSON := `{"content":[{"type":"text","text":"slide added"}],"isError":false}`
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(resultJSON)}
			data, _ := json.Marshal(resp)
			_, _ = fmt.Fprintf(w, "event: response\n")
			_, _ = fmt.Fprintf(w, "data: %s\n\n", bytes.TrimSpace(data))
			flusher.Flush()
		default:
			http.Error(w, "unknown method", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	ctx, expectedTrace := contextWithTrace()
	caller, err := NewSSECaller(ctx, HTTPOptions{Endpoint: srv.URL})
	require.NoError(t, err)
	resp, err := caller.CallTool(ctx, CallRequest{Tool: "add_slide", Payload: json.RawMessage(`{"title":"Intro"}`)})
	require.NoError(t, err)
	require.Equal(t, "slide added", resp.Text)
	require.Equal(t, expectedTrace, traceHeader)
	require.Equal(t, expectedTrace, metaTrace)
}

func TestSSECallerStreamClosedWithoutResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Method {
		case rpcMethodInitialize:
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"capabilities":{}}`)}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = fmt.Fprintf(w, "event: close\ndata: {}\n\n")
		}
	}))
	defer srv.Close()

	caller, err := NewSSECaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = caller.CallTool(context.Background(), CallRequest{Tool: "add_slide"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "closed without response")
}

func TestStdioCallerCallTool(t *testing.T) {
	t.Parallel()
	ctx, expectedTrace := contextWithTrace()
	caller, err := NewStdioCaller(ctx, StdioOptions{
		Command:     os.Args[0],
		Args:        []string{"-test.run=TestStdioHelper", "--"},
		Env:         []string{stdioHelperEnv + "=1"},
		InitTimeout: time.Second,
	})
	require.NoError(t, err)
	defer func() { _ = caller.Close() }()
	resp, err := caller.CallTool(ctx, CallRequest{Tool: "trace_echo", Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)
	require.Equal(t, expectedTrace, resp.Text)
}

func TestStdioCallerListTools(t *testing.T) {
	t.Parallel()
	caller, err := NewStdioCaller(context.Background(), StdioOptions{
		Command:     os.Args[0],
		Args:        []string{"-test.run=TestStdioHelper", "--"},
		Env:         []string{stdioHelperEnv + "=1"},
		InitTimeout: time.Second,
	})
	require.NoError(t, err)
	defer func() { _ = caller.Close() }()
	infos, err := caller.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "trace_echo", infos[0].Name)
}

func TestNormalizeToolResult(t *testing.T) {
	t.Parallel()
	res := toolsCallResult{Content: []json.RawMessage{
		json.RawMessage(`{"type":"text","text":"first"}`),
		json.RawMessage(`{"type":"image","data":"aGk=","mimeType":"image/png"}`),
		json.RawMessage(`{"type":"text","text":"last"}`),
	}}
	resp, err := normalizeToolResult(res)
	require.NoError(t, err)
	require.Equal(t, "first\n{\"type\":\"image\",\"data\":\"aGk=\",\"mimeType\":\"image/png\"}\nlast", resp.Text)
	require.False(t, resp.IsError)

	res.IsError = true
	resp, err = normalizeToolResult(res)
	require.NoError(t, err)
	require.True(t, resp.IsError)

	_, err = normalizeToolResult(toolsCallResult{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty MCP response")
}

func TestStdioCommandAllowed(t *testing.T) {
	t.Parallel()
	require.True(t, StdioCommandAllowed("npx"))
	require.True(t, StdioCommandAllowed("/usr/local/bin/python3"))
	require.False(t, StdioCommandAllowed("bash"))
	require.False(t, StdioCommandAllowed("/bin/rm"))
	require.False(t, StdioCommandAllowed(""))
}

func contextWithTrace() (context.Context, string) {
	traceID := trace.TraceID{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0x00}
	spanID := trace.SpanID{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80}
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)
	expected := fmt.Sprintf("00-%s-%s-01", traceID.String(), spanID.String())
	return ctx, expected
}

func TestStdioHelper(t *testing.T) {
	if os.Getenv(stdioHelperEnv) != "1" {
		t.Skip("helper process")
	}
	runStdioHelper()
}

func runStdioHelper() {
	reader := bufio.NewReader(os.Stdin)
	writer := bufio.NewWriter(os.Stdout)
	for {
		frame, err := readFrame(reader)
		if err != nil {
			break
		}
		var req rpcRequest
		if err := json.Unmarshal(frame, &req); err != nil {
			continue
		}
		switch req.Method {
		case rpcMethodInitialize:
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"capabilities":{}}`)}
			writeFrame(writer, resp)
		case rpcMethodToolsList:
			resultJSON := `{"tools":[{"name":"trace_echo","description":"Echo the traceparent"}]}`
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(resultJSON)}
			writeFrame(writer, resp)
		case rpcMethodToolsCall:
			traceVal := ""
			if params, ok := req.Params.(map[string]any); ok {
				if meta, ok := params["_meta"].(map[string]any); ok {
					if tp, ok := meta["traceparent"].(string); ok {
						traceVal = tp
					}
				}
			}
			if traceVal == "" {
				errResp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: JSONRPCInvalidParams, Message: "missing traceparent"}}
				writeFrame(writer, errResp)
				continue
			}
			content, _ := json.Marshal(contentItem{Type: "text", Text: &traceVal})
			result, _ := json.Marshal(toolsCallResult{Content: []json.RawMessage{content}})
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
			writeFrame(writer, resp)
		default:
			errResp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: JSONRPCMethodNotFound, Message: "unknown method"}}
			writeFrame(writer, errResp)
		}
	}
	_ = writer.Flush()
	os.Exit(0)
}

func writeFrame(writer *bufio.Writer, resp rpcResponse) {
	data, _ := json.Marshal(resp)
	_, _ = fmt.Fprintf(writer, "Content-Length: %d\r\n\r\n", len(data))
	_, _ = writer.Write(data)
	_ = writer.Flush()
}
