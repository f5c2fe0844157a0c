package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

func (e *rpcError) callerError() *Error {
	if e == nil {
		return nil
	}
	return &Error{Code: e.Code, Message: e.Message}
}

// toolsCallResult keeps content parts raw so non-text parts survive
// serialization into the flattened text result.
type toolsCallResult struct {
	Content []json.RawMessage `json:"content"`
	IsError bool              `json:"isError"`
}

type contentItem struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

type toolsListResult struct {
	Tools []toolEntry `json:"tools"`
}

type toolEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

func decodeToolCallResult(raw json.RawMessage) (CallResponse, error) {
	var result toolsCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return CallResponse{}, err
	}
	return normalizeToolResult(result)
}

// normalizeToolResult flattens the content parts into one text blob. Text
// parts contribute their text verbatim; any other part is serialized as its
// raw JSON. Parts are joined with newlines.
func normalizeToolResult(result toolsCallResult) (CallResponse, error) {
	if len(result.Content) == 0 {
		return CallResponse{}, errors.New("empty MCP response")
	}
	parts := make([]string, 0, len(result.Content))
	for _, raw := range result.Content {
		var item contentItem
		if err := json.Unmarshal(raw, &item); err == nil && item.Type == "text" && item.Text != nil {
			parts = append(parts, *item.Text)
			continue
		}
		parts = append(parts, string(raw))
	}
	return CallResponse{Text: strings.Join(parts, "\n"), IsError: result.IsError}, nil
}

func decodeToolList(result toolsListResult) []ToolInfo {
	infos := make([]ToolInfo, len(result.Tools))
	for i, t := range result.Tools {
		infos[i] = ToolInfo{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
	}
	return infos
}
