package deck

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	// ErrNoPlan indicates the planner output contained no parseable plan.
	ErrNoPlan = errors.New("no plan found in planner output")
	// ErrEmptyPlan indicates a plan was found but it contains zero slides.
	ErrEmptyPlan = errors.New("plan contains no slides")
)

type (
	// Plan is the structured breakdown produced by the planning sub-session.
	// It is immutable after extraction.
	Plan struct {
		Slides []SlidePlan `json:"slides"`
	}

	// SlidePlan describes one slide to build. Index always matches the
	// slide's position in Plan.Slides and is never renumbered, including
	// across retries.
	SlidePlan struct {
		Index   int    `json:"index"`
		Title   string `json:"title"`
		Layout  string `json:"layout,omitempty"`
		Content string `json:"content,omitempty"`
	}
)

// planSchema constrains the JSON object the planner must produce. Slide
// count is checked separately so an empty plan reports ErrEmptyPlan rather
// than a generic schema violation.
const planSchema = `{
	"type": "object",
	"required": ["slides"],
	"properties": {
		"slides": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["title"],
				"properties": {
					"title": {"type": "string"},
					"layout": {"type": "string"},
					"content": {"type": "string"}
				}
			}
		}
	}
}`

var compiledPlanSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(planSchema), &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("plan.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("plan.json")
})

// ExtractPlan locates the plan JSON in planner output and decodes it. A
// fenced ```json block wins; otherwise the first balanced top-level JSON
// object is used. The candidate is validated against the plan schema before
// decoding. Index fields are assigned from position.
func ExtractPlan(text string) (Plan, error) {
	raw, ok := findJSON(text)
	if !ok {
		return Plan{}, ErrNoPlan
	}
	schema, err := compiledPlanSchema()
	if err != nil {
		return Plan{}, fmt.Errorf("compile plan schema: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return Plan{}, ErrNoPlan
	}
	if err := schema.Validate(instance); err != nil {
		return Plan{}, fmt.Errorf("plan does not match schema: %w", err)
	}
	var p Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	if len(p.Slides) == 0 {
		return Plan{}, ErrEmptyPlan
	}
	for i := range p.Slides {
		p.Slides[i].Index = i
	}
	return p, nil
}

// findJSON returns the best plan candidate in the text: the first fenced
// code block holding a JSON object, or failing that the first balanced
// top-level object found by scanning.
func findJSON(text string) (json.RawMessage, bool) {
	if raw, ok := fencedJSON(text); ok {
		return raw, true
	}
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end, ok := balancedObjectEnd(text, i)
		if !ok {
			continue
		}
		candidate := json.RawMessage(text[i : end+1])
		if json.Valid(candidate) {
			return candidate, true
		}
		i = end
	}
	return nil, false
}

func fencedJSON(text string) (json.RawMessage, bool) {
	rest := text
	for {
		idx := strings.Index(rest, "```")
		if idx < 0 {
			return nil, false
		}
		after := rest[idx+3:]
		nl := strings.IndexByte(after, '\n')
		if nl < 0 {
			return nil, false
		}
		lang := strings.TrimSpace(after[:nl])
		body := after[nl+1:]
		end := strings.Index(body, "```")
		if end < 0 {
			return nil, false
		}
		content := strings.TrimSpace(body[:end])
		if (lang == "" || strings.EqualFold(lang, "json")) &&
			strings.HasPrefix(content, "{") && json.Valid([]byte(content)) {
			return json.RawMessage(content), true
		}
		rest = body[end+3:]
	}
}

// balancedObjectEnd scans from the opening brace at start and returns the
// index of its matching close brace, honoring JSON string and escape rules.
func balancedObjectEnd(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
