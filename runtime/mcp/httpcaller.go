package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// DefaultProtocolVersion is the MCP protocol version used when none is provided.
const DefaultProtocolVersion = "2024-11-05"

const (
	defaultClientName = "deckpilot"
	defaultClientVer  = "dev"
)

// HTTPOptions configures the HTTP and SSE callers.
type HTTPOptions struct {
	Endpoint        string
	Headers         map[string]string
	Client          *http.Client
	ProtocolVersion string
	ClientName      string
	ClientVersion   string
	InitTimeout     time.Duration
}

// HTTPCaller implements Client over JSON-RPC HTTP.
type HTTPCaller struct {
	transport *httpTransport
}

// NewHTTPCaller creates an HTTP-based Client and performs the MCP initialize
// handshake.
func NewHTTPCaller(ctx context.Context, opts HTTPOptions) (*HTTPCaller, error) {
	transport, err := newHTTPTransport(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &HTTPCaller{transport: transport}, nil
}

// CallTool invokes tools/call over HTTP and normalizes the response.
func (c *HTTPCaller) CallTool(ctx context.Context, req CallRequest) (CallResponse, error) {
	params := map[string]any{
		"name":      req.Tool,
		"arguments": req.Payload,
	}
	addTraceMeta(ctx, params)
	var result toolsCallResult
	if err := c.transport.call(ctx, "tools/call", params, &result); err != nil {
		return CallResponse{}, err
	}
	return normalizeToolResult(result)
}

// ListTools invokes tools/list and returns the advertised tools.
func (c *HTTPCaller) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var result toolsListResult
	if err := c.transport.call(ctx, "tools/list", map[string]any{}, &result); err != nil {
		return nil, err
	}
	return decodeToolList(result), nil
}

// Close releases idle transport connections.
func (c *HTTPCaller) Close() error {
	c.transport.client.CloseIdleConnections()
	return nil
}

// httpTransport shares JSON-RPC HTTP plumbing across the HTTP and SSE callers.
type httpTransport struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
	id       uint64
}

func newHTTPTransport(ctx context.Context, opts HTTPOptions) (*httpTransport, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	httpClient := opts.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	transport := &httpTransport{endpoint: opts.Endpoint, headers: opts.Headers, client: httpClient}
	initCtx := ctx
	if opts.InitTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, opts.InitTimeout)
		defer cancel()
	}
	if err := transport.call(initCtx, "initialize", initializeParams(opts), nil); err != nil {
		return nil, fmt.Errorf("mcp initialize failed: %w", err)
	}
	return transport, nil
}

func initializeParams(opts HTTPOptions) map[string]any {
	protocol := opts.ProtocolVersion
	if protocol == "" {
		protocol = DefaultProtocolVersion
	}
	clientName := opts.ClientName
	if clientName == "" {
		clientName = defaultClientName
	}
	clientVersion := opts.ClientVersion
	if clientVersion == "" {
		clientVersion = defaultClientVer
	}
	return map[string]any{
		"protocolVersion": protocol,
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	}
}

func (t *httpTransport) nextID() uint64 {
	return atomic.AddUint64(&t.id, 1)
}

func (t *httpTransport) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	injectTraceHeaders(ctx, req.Header)
	return req, nil
}

func (t *httpTransport) call(ctx context.Context, method string, params any, result any) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		ID:      t.nextID(),
		Params:  params,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := t.newRequest(ctx, body)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mcp rpc status %d", resp.StatusCode)
	}
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return rpcResp.Error.callerError()
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return err
		}
	}
	return nil
}
