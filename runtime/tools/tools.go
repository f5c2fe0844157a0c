// Package tools defines the local callable tool contract exposed to AI
// sessions. A Tool pairs a name, description, and JSON-Schema parameter
// definition with a handler. Handlers never fail with a Go error: every
// outcome, including invalid input and downstream failures, is reported as a
// Result so the session runtime can always hand something back to the model.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Kind classifies a tool invocation outcome.
type Kind string

const (
	// KindSuccess indicates the tool produced a usable result.
	KindSuccess Kind = "success"
	// KindFailure indicates the tool failed; Err carries the detail.
	KindFailure Kind = "failure"
)

type (
	// Handler executes a tool with parsed JSON arguments. Implementations
	// must not panic and must not signal failure through any channel other
	// than the returned Result.
	Handler func(ctx context.Context, args json.RawMessage) Result

	// Tool describes one callable function exposed to a session.
	Tool struct {
		// Name identifies the tool. It must be unique within the merged set
		// handed to a single session.
		Name string
		// Description provides human-readable context for the model.
		Description string
		// Schema is the JSON Schema for the tool arguments. Empty disables
		// argument validation.
		Schema json.RawMessage
		// Handler executes the tool.
		Handler Handler
	}

	// Result captures a tool invocation outcome.
	Result struct {
		// Text is the textual result shown to the model.
		Text string
		// Kind reports whether the invocation succeeded.
		Kind Kind
		// Err carries the failure detail when Kind is KindFailure.
		Err string
		// Telemetry holds opaque observability metadata gathered during
		// execution (durations, identifiers, provider details).
		Telemetry map[string]any
	}
)

// Success builds a successful Result with the given model-facing text.
func Success(text string) Result {
	return Result{Text: text, Kind: KindSuccess}
}

// Failure builds a failed Result. The error detail doubles as the
// model-facing text so the model can react to the failure.
func Failure(detail string) Result {
	return Result{Text: detail, Kind: KindFailure, Err: detail}
}

// Invoke validates args against the tool schema (when one is declared) and
// runs the handler. Schema violations and missing handlers are reported as
// failure Results, never as Go errors.
func (t Tool) Invoke(ctx context.Context, args json.RawMessage) Result {
	if len(t.Schema) > 0 {
		if err := validateArgs(t.Schema, args); err != nil {
			return Failure(fmt.Sprintf("invalid arguments for %s: %v", t.Name, err))
		}
	}
	if t.Handler == nil {
		return Failure(fmt.Sprintf("tool %s has no handler", t.Name))
	}
	return t.Handler(ctx, args)
}

// Merge combines tool sets into one, preserving order. A name appearing more
// than once across the merged set is a caller error: tools are never renamed
// to resolve collisions.
func Merge(sets ...[]Tool) ([]Tool, error) {
	var merged []Tool
	seen := make(map[string]struct{})
	for _, set := range sets {
		for _, t := range set {
			if _, ok := seen[t.Name]; ok {
				return nil, fmt.Errorf("duplicate tool name %q", t.Name)
			}
			seen[t.Name] = struct{}{}
			merged = append(merged, t)
		}
	}
	return merged, nil
}

// validateArgs validates a JSON argument payload against a JSON Schema.
func validateArgs(schemaBytes, args json.RawMessage) error {
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var instance any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &instance); err != nil {
			return fmt.Errorf("unmarshal arguments: %w", err)
		}
	}
	return schema.Validate(instance)
}
