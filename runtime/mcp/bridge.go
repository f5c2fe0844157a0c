package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deckpilot/deckpilot/runtime/telemetry"
	"github.com/deckpilot/deckpilot/runtime/tools"
)

type (
	// Bridge holds the tools and clients obtained from a set of MCP servers.
	// Construct with Load; release with Close.
	Bridge struct {
		log     telemetry.Logger
		metrics telemetry.Metrics
		tools   []tools.Tool
		clients []namedClient
	}

	// Option configures a Bridge load.
	Option func(*Bridge)

	namedClient struct {
		name   string
		client Client
	}
)

// WithLogger overrides the Clue-backed default logger.
func WithLogger(l telemetry.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// WithMetrics overrides the OTEL-backed default metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// Load connects to every configured server and wraps the tools each one
// advertises. Servers fail independently: a connection, allowlist, or
// listing failure is logged and skips that server only; the remaining
// servers still load. Load therefore never returns an error; a bridge with
// zero tools is a valid outcome.
func Load(ctx context.Context, configs []ServerConfig, opts ...Option) *Bridge {
	b := &Bridge{
		log:     telemetry.NewClueLogger(),
		metrics: telemetry.NewClueMetrics(),
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, cfg := range configs {
		client, err := dial(ctx, cfg)
		if err != nil {
			b.log.Warn(ctx, "mcp server skipped", "server", cfg.Name, "error", err)
			b.metrics.IncCounter("mcp.server.skipped", 1, "server", cfg.Name)
			continue
		}
		infos, err := client.ListTools(ctx)
		if err != nil {
			b.log.Warn(ctx, "mcp server skipped", "server", cfg.Name, "error", err)
			b.metrics.IncCounter("mcp.server.skipped", 1, "server", cfg.Name)
			if cerr := client.Close(); cerr != nil {
				b.log.Warn(ctx, "mcp client close failed", "server", cfg.Name, "error", cerr)
			}
			continue
		}
		b.clients = append(b.clients, namedClient{name: cfg.Name, client: client})
		for _, info := range infos {
			b.tools = append(b.tools, b.wrap(cfg.Name, client, info))
		}
		b.log.Info(ctx, "mcp server connected", "server", cfg.Name, "tools", len(infos))
	}
	return b
}

// Tools returns the wrapped tools from every connected server, in server
// then advertisement order. Name collisions across servers are not resolved
// here; tools.Merge surfaces them when the set is handed to a session.
func (b *Bridge) Tools() []tools.Tool {
	return b.tools
}

// Close closes every connected client. Individual close failures are logged
// and do not prevent closing the rest. Close the bridge at most once.
func (b *Bridge) Close(ctx context.Context) {
	for _, nc := range b.clients {
		if err := nc.client.Close(); err != nil {
			b.log.Warn(ctx, "mcp client close failed", "server", nc.name, "error", err)
		}
	}
	b.clients = nil
}

// dial connects to one server according to its transport. The stdio
// allowlist is enforced before any process is spawned.
func dial(ctx context.Context, cfg ServerConfig) (Client, error) {
	switch t := cfg.Transport.(type) {
	case HTTPTransport:
		return NewHTTPCaller(ctx, HTTPOptions{Endpoint: t.URL, Headers: t.Headers})
	case SSETransport:
		return NewSSECaller(ctx, HTTPOptions{Endpoint: t.URL, Headers: t.Headers})
	case StdioTransport:
		if !StdioCommandAllowed(t.Command) {
			return nil, fmt.Errorf("stdio command %q not in allowlist", t.Command)
		}
		return NewStdioCaller(ctx, StdioOptions{Command: t.Command, Args: t.Args, Env: t.Env})
	case nil:
		return nil, errors.New("missing transport")
	default:
		return nil, fmt.Errorf("unsupported transport %T", t)
	}
}

// wrap adapts one advertised tool to the local tool contract. The handler
// never fails with a Go error: remote errors and server-reported failures
// both come back as failure Results carrying the detail.
func (b *Bridge) wrap(server string, caller Caller, info ToolInfo) tools.Tool {
	return tools.Tool{
		Name:        info.Name,
		Description: info.Description,
		Schema:      info.InputSchema,
		Handler: func(ctx context.Context, args json.RawMessage) tools.Result {
			callID := uuid.NewString()
			start := time.Now()
			resp, err := caller.CallTool(ctx, CallRequest{Tool: info.Name, Payload: args})
			elapsed := time.Since(start)
			b.metrics.RecordTimer("mcp.call.duration", elapsed, "server", server, "tool", info.Name)
			tel := map[string]any{
				"server":       server,
				"tool_call_id": callID,
				"duration_ms":  elapsed.Milliseconds(),
			}
			var res tools.Result
			switch {
			case err != nil:
				b.log.Warn(ctx, "mcp tool call failed", "server", server, "tool", info.Name, "tool_call_id", callID, "error", err)
				res = tools.Failure(err.Error())
			case resp.IsError:
				res = tools.Failure(resp.Text)
			default:
				res = tools.Success(resp.Text)
			}
			res.Telemetry = tel
			return res
		},
	}
}
