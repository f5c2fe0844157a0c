package connection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventConstructorsRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		event Event
		typ   string
		get   func(Event) (string, bool)
		want  string
	}{
		{"delta", NewMessageDelta("frag"), EventAssistantMessageDelta, Event.MessageDelta, "frag"},
		{"message", NewMessage("full text"), EventAssistantMessage, Event.Message, "full text"},
		{"error", NewSessionError("broken"), EventSessionError, Event.ErrorMessage, "broken"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.typ, tc.event.Type)
			got, ok := tc.get(tc.event)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAccessorsRejectOtherTypes(t *testing.T) {
	ev := NewMessage("hello")

	_, ok := ev.MessageDelta()
	assert.False(t, ok)
	_, ok = ev.ErrorMessage()
	assert.False(t, ok)
}

func TestAccessorsTolerateMalformedPayload(t *testing.T) {
	ev := Event{Type: EventAssistantMessageDelta, Data: json.RawMessage(`{not json`)}

	delta, ok := ev.MessageDelta()
	require.True(t, ok, "type match wins even when the payload is junk")
	assert.Empty(t, delta)
}

func TestAccessorsTolerateMissingPayload(t *testing.T) {
	msg, ok := Event{Type: EventSessionError}.ErrorMessage()
	require.True(t, ok)
	assert.Empty(t, msg)
}

func TestEventWireShape(t *testing.T) {
	data, err := json.Marshal(NewMessageDelta("x"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"assistant.message_delta","data":{"deltaContent":"x"}}`, string(data))
}
