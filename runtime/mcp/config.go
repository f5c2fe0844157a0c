package mcp

import "path/filepath"

type (
	// Transport selects how to reach an MCP server. It is a closed set:
	// HTTPTransport, SSETransport, and StdioTransport are the only
	// implementations, and transport dispatch is an exhaustive type switch
	// so adding a transport is a compile-visible change.
	Transport interface {
		transport()
	}

	// HTTPTransport reaches a server over JSON-RPC HTTP.
	HTTPTransport struct {
		// URL is the JSON-RPC endpoint.
		URL string
		// Headers are added to every request (authorization, tenancy, ...).
		Headers map[string]string
	}

	// SSETransport reaches a server whose tools/call responses stream over
	// Server-Sent Events.
	SSETransport struct {
		URL     string
		Headers map[string]string
	}

	// StdioTransport launches a local process speaking MCP over stdio. The
	// command is subject to the stdio allowlist; see StdioCommandAllowed.
	StdioTransport struct {
		Command string
		Args    []string
		// Env lists additional environment entries in KEY=VALUE form,
		// appended to the inherited environment.
		Env []string
	}

	// ServerConfig describes one MCP server to connect to.
	ServerConfig struct {
		// Name identifies the server in logs and configuration. Unique
		// within one bridge load.
		Name string
		// Transport selects and configures the wire transport.
		Transport Transport
	}
)

func (HTTPTransport) transport()  {}
func (SSETransport) transport()   {}
func (StdioTransport) transport() {}

// stdioAllowlist enumerates the executables a stdio server configuration may
// launch. Server configs are data, often synced from user settings; this is
// the boundary that keeps them from spawning arbitrary processes.
var stdioAllowlist = map[string]struct{}{
	"node":    {},
	"npx":     {},
	"bunx":    {},
	"deno":    {},
	"python":  {},
	"python3": {},
	"uv":      {},
	"uvx":     {},
}

// StdioCommandAllowed reports whether the command's file-name component is in
// the stdio executable allowlist. Any path prefix is ignored: only the base
// name is matched.
func StdioCommandAllowed(command string) bool {
	if command == "" {
		return false
	}
	_, ok := stdioAllowlist[filepath.Base(command)]
	return ok
}
