// Package mcp bridges external MCP (Model Context Protocol) tool servers
// into the local tool contract. It provides transport-specific clients for
// stdio, HTTP JSON-RPC, and HTTP SSE servers, and a Bridge that connects to
// a configured set of servers and wraps their advertised tools as callable
// tools.Tool descriptors.
package mcp

import (
	"context"
	"encoding/json"
)

const (
	// Canonical JSON-RPC 2.0 error codes.
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

type (
	// Caller invokes MCP tools. It is implemented by the transport-specific
	// clients (stdio, HTTP, SSE).
	Caller interface {
		CallTool(ctx context.Context, req CallRequest) (CallResponse, error)
	}

	// Client is a connected MCP server: it can enumerate the server's tools,
	// invoke them, and release the underlying transport. Close at most once;
	// whether a second Close is safe is transport-defined.
	Client interface {
		Caller
		ListTools(ctx context.Context) ([]ToolInfo, error)
		Close() error
	}

	// ToolInfo describes one tool advertised by an MCP server.
	ToolInfo struct {
		// Name is the server-local tool identifier.
		Name string
		// Description provides human-readable context for the model.
		Description string
		// InputSchema is the JSON Schema of the tool arguments as advertised
		// by the server. May be empty.
		InputSchema json.RawMessage
	}

	// CallRequest describes a tool invocation.
	CallRequest struct {
		// Tool is the server-local tool identifier.
		Tool string
		// Payload is the JSON-encoded tool arguments.
		Payload json.RawMessage
	}

	// CallResponse is the normalized result of a tool call: all content
	// parts flattened into one text blob, plus the server's error flag.
	CallResponse struct {
		// Text concatenates the response content parts. Text parts are taken
		// verbatim; other part kinds are serialized as JSON.
		Text string
		// IsError reports the server-side isError flag on the result.
		IsError bool
	}

	// Error represents a JSON-RPC error returned by an MCP server.
	Error struct {
		Code    int
		Message string
	}
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}
