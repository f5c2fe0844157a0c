package deck

import (
	"fmt"
	"strings"
)

// plannerSystemPrompt pins the planning sub-session to a single JSON reply.
// The planner never receives tools, so the only useful output is the plan
// object itself.
const plannerSystemPrompt = `You are a presentation planner. Given a request for a slide deck,
break it down into an ordered list of slides.

Respond with exactly one JSON object of the form:

{"slides": [{"title": "...", "layout": "...", "content": "..."}]}

Rules:
- "title" is required for every slide and must be short and descriptive.
- "layout" names the slide layout to use (for example "title", "title_and_content", "two_content", "section_header"). Omit it to let the builder choose.
- "content" summarizes what the slide should say in one or two sentences.
- Keep the deck focused. Do not pad it with filler slides.
- Output the JSON object and nothing else. No prose, no explanation.`

// workerSystemPrompt frames each building sub-session around exactly one
// slide so a worker never edits its neighbors.
const workerSystemPrompt = `You are a presentation builder. You are given one slide of a larger
PowerPoint deck to create. Use the available tools to add the slide to the
open presentation and populate its title and body.

Rules:
- Build only the slide you are given. Never add, remove or modify other slides.
- Follow the requested layout when one is given.
- Keep text concise and suited to a slide, not a document.
- When the slide is complete, reply with a one-sentence confirmation.`

func plannerPrompt(request string) string {
	return "Plan a slide deck for the following request.\n\n" + request
}

func workerPrompt(slide SlidePlan, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Build slide %d of %d.\n\nTitle: %s\n", slide.Index+1, total, slide.Title)
	if slide.Layout != "" {
		fmt.Fprintf(&b, "Layout: %s\n", slide.Layout)
	}
	if slide.Content != "" {
		fmt.Fprintf(&b, "Content: %s\n", slide.Content)
	}
	return b.String()
}
