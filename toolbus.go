package toolbus

import (
	"context"
	"iter"
)

// ServerTransport provides the server-side communication layer.
type ServerTransport interface {
	// Sessions returns an iterator that yields new client sessions as they are
	// initiated. Each yielded Session represents a unique client connection.
	// The implementation must guarantee that each session ID is unique across
	// all active connections, and should exit the iteration when Shutdown is
	// called.
	Sessions() iter.Seq[Session]

	// Shutdown gracefully shuts down the ServerTransport to clean up resources.
	// The implementation should not stop the Sessions it produced, the caller
	// already does that before calling this method. The caller is guaranteed
	// to call this method only once.
	Shutdown(ctx context.Context) error
}

// ClientTransport provides the client-side communication layer.
type ClientTransport interface {
	// StartSession initiates a new session with the server. Operations are
	// canceled when the context is canceled, and appropriate errors are
	// returned for connection failures.
	StartSession(ctx context.Context) (Session, error)
}

// Session represents a bidirectional frame channel between server and client.
// One session corresponds to one duplex channel carrying any number of
// in-flight calls.
type Session interface {
	// ID returns the unique identifier for this session.
	ID() string

	// Send transmits a message to the other party.
	Send(ctx context.Context, msg Message) error

	// Messages returns an iterator that yields messages received from the
	// other party. The iteration exits when the session is closed.
	Messages() iter.Seq[Message]

	// Stop stops the session and breaks the Messages iteration. It is safe
	// to call more than once.
	Stop()
}

// Handler executes a tool invocation with arguments already validated against
// the tool's input schema. The returned value must conform to the tool's
// declared output schema. A returned error reaches the caller as an
// execution failure; it never terminates the dispatch loop.
//
// Handlers may run concurrently for multiple in-flight requests and must not
// assume exclusive access to shared process state unless they synchronize it
// themselves.
type Handler func(ctx context.Context, args map[string]any) (any, error)
