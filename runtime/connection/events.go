package connection

import "encoding/json"

// Session event types recognized by this module. Backends may emit additional
// types; consumers ignore anything they do not recognize.
const (
	// EventAssistantMessageDelta carries an incremental assistant text fragment.
	EventAssistantMessageDelta = "assistant.message_delta"
	// EventAssistantMessage carries the final, authoritative full assistant
	// text. It replaces any previously accumulated delta text.
	EventAssistantMessage = "assistant.message"
	// EventSessionError signals a terminal session failure. No further events
	// follow it.
	EventSessionError = "session.error"
)

type (
	// Event is the wire shape of a session event: a type tag plus an opaque
	// JSON payload. Use the typed accessors to decode recognized payloads.
	Event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data,omitempty"`
	}

	// MessageDeltaData is the payload of an assistant.message_delta event.
	MessageDeltaData struct {
		DeltaContent string `json:"deltaContent"`
	}

	// MessageData is the payload of an assistant.message event.
	MessageData struct {
		Content string `json:"content"`
	}

	// SessionErrorData is the payload of a session.error event.
	SessionErrorData struct {
		Message string `json:"message"`
	}
)

// NewMessageDelta builds an assistant.message_delta event.
func NewMessageDelta(delta string) Event {
	return event(EventAssistantMessageDelta, MessageDeltaData{DeltaContent: delta})
}

// NewMessage builds an assistant.message event.
func NewMessage(content string) Event {
	return event(EventAssistantMessage, MessageData{Content: content})
}

// NewSessionError builds a session.error event.
func NewSessionError(message string) Event {
	return event(EventSessionError, SessionErrorData{Message: message})
}

// MessageDelta returns the delta fragment when the event is an
// assistant.message_delta. Decoding is best effort: a matching type with a
// malformed payload yields an empty fragment.
func (e Event) MessageDelta() (string, bool) {
	if e.Type != EventAssistantMessageDelta {
		return "", false
	}
	var d MessageDeltaData
	if len(e.Data) > 0 {
		_ = json.Unmarshal(e.Data, &d)
	}
	return d.DeltaContent, true
}

// Message returns the full assistant text when the event is an
// assistant.message.
func (e Event) Message() (string, bool) {
	if e.Type != EventAssistantMessage {
		return "", false
	}
	var d MessageData
	if len(e.Data) > 0 {
		_ = json.Unmarshal(e.Data, &d)
	}
	return d.Content, true
}

// ErrorMessage returns the error text when the event is a session.error.
func (e Event) ErrorMessage() (string, bool) {
	if e.Type != EventSessionError {
		return "", false
	}
	var d SessionErrorData
	if len(e.Data) > 0 {
		_ = json.Unmarshal(e.Data, &d)
	}
	return d.Message, true
}

func event(typ string, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{Type: typ}
	}
	return Event{Type: typ, Data: data}
}
