// Package config loads deck runtime settings from YAML. The file names the
// model to drive sessions with and the MCP servers to bridge tools from.
package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/deckpilot/deckpilot/runtime/mcp"
)

// Settings is the decoded runtime configuration.
type Settings struct {
	// Model drives every planner and worker sub-session.
	Model string
	// Servers lists the MCP servers to connect at startup.
	Servers []mcp.ServerConfig
}

type (
	rawSettings struct {
		Model   string      `yaml:"model"`
		Servers []rawServer `yaml:"mcp_servers"`
	}

	rawServer struct {
		Name    string            `yaml:"name"`
		Type    string            `yaml:"type"`
		URL     string            `yaml:"url"`
		Headers map[string]string `yaml:"headers"`
		Command string            `yaml:"command"`
		Args    []string          `yaml:"args"`
		Env     map[string]string `yaml:"env"`
	}
)

// Load reads and parses the YAML file at path.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML settings. Server entries default to the http transport;
// http and sse entries require a url, stdio entries require a command.
// Server names must be unique.
func Parse(data []byte) (Settings, error) {
	var raw rawSettings
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("parse config: %w", err)
	}
	if raw.Model == "" {
		return Settings{}, fmt.Errorf("config: model is required")
	}
	s := Settings{Model: raw.Model}
	seen := make(map[string]struct{}, len(raw.Servers))
	for i, rs := range raw.Servers {
		if rs.Name == "" {
			return Settings{}, fmt.Errorf("config: mcp_servers[%d]: name is required", i)
		}
		if _, ok := seen[rs.Name]; ok {
			return Settings{}, fmt.Errorf("config: duplicate mcp server name %q", rs.Name)
		}
		seen[rs.Name] = struct{}{}
		transport, err := rs.transport()
		if err != nil {
			return Settings{}, fmt.Errorf("config: mcp server %q: %w", rs.Name, err)
		}
		s.Servers = append(s.Servers, mcp.ServerConfig{Name: rs.Name, Transport: transport})
	}
	return s, nil
}

func (rs rawServer) transport() (mcp.Transport, error) {
	typ := rs.Type
	if typ == "" {
		typ = "http"
	}
	switch typ {
	case "http":
		if rs.URL == "" {
			return nil, fmt.Errorf("url is required for http transport")
		}
		return mcp.HTTPTransport{URL: rs.URL, Headers: rs.Headers}, nil
	case "sse":
		if rs.URL == "" {
			return nil, fmt.Errorf("url is required for sse transport")
		}
		return mcp.SSETransport{URL: rs.URL, Headers: rs.Headers}, nil
	case "stdio":
		if rs.Command == "" {
			return nil, fmt.Errorf("command is required for stdio transport")
		}
		return mcp.StdioTransport{Command: rs.Command, Args: rs.Args, Env: envSlice(rs.Env)}, nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", typ)
	}
}

// envSlice flattens the YAML env map into KEY=VALUE pairs in a stable
// order.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
