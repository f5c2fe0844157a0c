// Package connection defines the contracts deckpilot consumes from the
// underlying AI backend connection. The connection itself lives outside this
// module (it is owned by the process hosting the chat surface); orchestration
// code only depends on the interfaces declared here, so tests and alternative
// backends can provide their own implementations.
package connection

import (
	"context"

	"github.com/deckpilot/deckpilot/runtime/tools"
)

type (
	// Connection creates AI conversation sessions on a shared backend link.
	//
	// Contract:
	// - CreateSession returns a fresh session configured with the given model,
	//   system prompt, and tool set. Sessions created from the same connection
	//   within one orchestration run are used strictly sequentially; the
	//   connection is responsible for serializing or safely interleaving
	//   session operations if callers violate that.
	Connection interface {
		CreateSession(ctx context.Context, cfg SessionConfig) (Session, error)
	}

	// SessionConfig carries the immutable configuration for one session.
	SessionConfig struct {
		// Model is the backend model identifier.
		Model string
		// SystemPrompt is the full system prompt text. It replaces any default
		// the backend would otherwise apply; it is never appended.
		SystemPrompt string
		// Tools is the ordered tool set exposed to the session. May be empty.
		// Names must be unique within the set; see tools.Merge.
		Tools []tools.Tool
	}

	// Session is one bounded conversation on a connection.
	//
	// Contract:
	// - Query starts the single exchange for the session and returns a finite,
	//   non-restartable event stream.
	// - Destroy releases the session. Whether a second Destroy is safe is
	//   undefined; callers must call it at most once.
	Session interface {
		Query(ctx context.Context, prompt string) (EventStream, error)
		Destroy(ctx context.Context) error
	}

	// EventStream delivers session events in arrival order. Recv returns
	// io.EOF when the stream ends naturally.
	EventStream interface {
		Recv() (Event, error)
	}
)
