package toolbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ClientOption is a function that configures a client.
type ClientOption func(*Client)

// SessionState tracks a client session through its lifetime.
type SessionState int

// Session lifecycle: Disconnected --connect--> Handshaking --discovery-->
// Ready --close--> Closed. No request may be sent before Ready; none are
// accepted after Closed.
const (
	StateDisconnected SessionState = iota
	StateHandshaking
	StateReady
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client drives one session against a tool server: it performs the discovery
// handshake, caches the server's tool list, and correlates any number of
// concurrent calls over the single duplex channel purely by request id.
//
// A Client must be created with NewClient and connected with Connect before
// calls can be made, and should be closed with Close when no longer needed.
type Client struct {
	transport ClientTransport

	callTimeout time.Duration
	sendTimeout time.Duration

	logger *slog.Logger

	nextID atomic.Uint64

	mu        sync.Mutex
	state     SessionState
	sess      Session
	stopped   bool
	pending   map[uint64]chan Message
	tools     []ToolDescriptor
	toolNames map[string]struct{}

	handshake  chan Message
	listenDone chan struct{}
}

var (
	defaultClientCallTimeout = 30 * time.Second
	defaultClientSendTimeout = 30 * time.Second
)

// NewClient creates a client that will communicate over transport. The
// client is not connected until Connect is called.
func NewClient(transport ClientTransport, options ...ClientOption) *Client {
	c := &Client{
		transport:  transport,
		logger:     slog.Default(),
		handshake:  make(chan Message, 1),
		listenDone: make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}

	if c.callTimeout == 0 {
		c.callTimeout = defaultClientCallTimeout
	}
	if c.sendTimeout == 0 {
		c.sendTimeout = defaultClientSendTimeout
	}

	return c
}

// WithCallTimeout sets the default deadline applied to Call and to the
// discovery handshake when the caller's context carries no earlier deadline.
func WithCallTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.callTimeout = timeout
	}
}

// WithClientSendTimeout sets the write timeout for the client.
func WithClientSendTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.sendTimeout = timeout
	}
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With(
			slog.String("package", "go-toolbus"),
			slog.String("component", "client"),
		)
	}
}

// Connect starts a session and performs the discovery handshake: it sends a
// discover frame, waits for the server's tool list, and caches it. On return
// the session is Ready and Call may be used from any number of goroutines.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot connect from state %s", state)
	}
	c.state = StateHandshaking
	c.mu.Unlock()

	sess, err := c.transport.StartSession(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("failed to start session: %w", err)
	}

	c.mu.Lock()
	c.sess = sess
	c.pending = make(map[uint64]chan Message)
	c.mu.Unlock()

	go c.listen(sess)

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	if err := sess.Send(sendCtx, Message{Type: TypeDiscover}); err != nil {
		c.Close()
		return fmt.Errorf("failed to send discovery request: %w", err)
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case msg := <-c.handshake:
		c.mu.Lock()
		c.tools = msg.Tools
		c.toolNames = make(map[string]struct{}, len(msg.Tools))
		for _, t := range msg.Tools {
			c.toolNames[t.Name] = struct{}{}
		}
		c.state = StateReady
		c.mu.Unlock()
		return nil
	case <-c.listenDone:
		return &CallError{Kind: ErrorKindConnectionClosed, Message: "session closed during handshake"}
	case <-timer.C:
		c.Close()
		return &CallError{Kind: ErrorKindTimeout, Message: "discovery handshake timed out"}
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}
}

// Tools returns the tool list cached during the discovery handshake.
func (c *Client) Tools() []ToolDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	tools := make([]ToolDescriptor, len(c.tools))
	copy(tools, c.tools)
	return tools
}

// State returns the current session state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Call invokes a tool and suspends the calling goroutine until the matching
// response arrives, the deadline elapses, or the session closes. Other
// callers sharing the session are never blocked; responses are demultiplexed
// purely by request id regardless of arrival order.
//
// The deadline is the context's, when set, bounded by the client's call
// timeout. On expiry Call returns a CallError of kind ErrorKindTimeout and a
// late-arriving response for that id is discarded without effect. All
// protocol-level failures surface as *CallError; Call never leaks raw
// transport errors for in-protocol failures.
func (c *Client) Call(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return nil, &CallError{Kind: ErrorKindConnectionClosed, Message: "session is closed"}
	case StateReady:
	default:
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("session is not ready: state %s", state)
	}

	// Fast-fail on tools absent from the cached discovery list before even
	// reaching the transport. The server enforces the same check.
	if _, ok := c.toolNames[tool]; !ok {
		c.mu.Unlock()
		return nil, &CallError{
			Kind:    ErrorKindUnknownTool,
			Message: fmt.Sprintf("tool %q is not in the discovered tool list", tool),
		}
	}

	id := c.nextID.Add(1)
	results := make(chan Message, 1)
	c.pending[id] = results
	sess := c.sess
	c.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	if err := sess.Send(sendCtx, Message{
		Type:      TypeCall,
		ID:        id,
		Tool:      tool,
		Arguments: args,
	}); err != nil {
		c.drop(id)
		return nil, &CallError{
			Kind:    ErrorKindConnectionClosed,
			Message: fmt.Sprintf("failed to send request: %s", err),
		}
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case msg := <-results:
		return unpackResponse(msg)
	case <-timer.C:
		if c.drop(id) {
			return nil, &CallError{
				Kind:    ErrorKindTimeout,
				Message: fmt.Sprintf("tool %q timed out after %s", tool, c.callTimeout),
			}
		}
		// The response raced in just as the deadline fired and already won
		// the pending entry; resolution stays exactly-once.
		return unpackResponse(<-results)
	case <-ctx.Done():
		if c.drop(id) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &CallError{
					Kind:    ErrorKindTimeout,
					Message: fmt.Sprintf("tool %q timed out: %s", tool, ctx.Err()),
				}
			}
			return nil, ctx.Err()
		}
		return unpackResponse(<-results)
	}
}

// Close stops the session. Every outstanding call resolves with a CallError
// of kind ErrorKindConnectionClosed. Close is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	c.state = StateClosed
	sess := c.sess
	stop := sess != nil && !c.stopped
	c.stopped = true
	c.mu.Unlock()

	if stop {
		// Stopping the session breaks the listen loop, which fails the
		// outstanding calls.
		sess.Stop()
	}
}

func (c *Client) listen(sess Session) {
	for msg := range sess.Messages() {
		switch msg.Type {
		case TypeTools:
			c.mu.Lock()
			handshaking := c.state == StateHandshaking
			c.mu.Unlock()
			if !handshaking {
				c.logger.Warn("discarding unsolicited tools frame")
				continue
			}
			select {
			case c.handshake <- msg:
			default:
			}
		case TypeResult, TypeError:
			c.resolve(msg)
		default:
			c.logger.Warn("discarding unexpected frame",
				slog.String("type", string(msg.Type)),
				slog.Uint64("id", msg.ID))
		}
	}

	c.failPending()
}

// resolve hands a response to the pending call registered under its id. The
// pending entry is removed under the same lock that Call's timeout path uses,
// so each call resolves exactly once. A response whose id matches no pending
// call is a protocol violation: logged and discarded, never fatal.
func (c *Client) resolve(msg Message) {
	c.mu.Lock()
	results, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("discarding response with no pending call",
			slog.Uint64("id", msg.ID),
			slog.String("type", string(msg.Type)))
		return
	}

	// The channel is buffered and this is its only writer, so delivery never
	// blocks even if the caller already gave up.
	results <- msg
}

func (c *Client) failPending() {
	c.mu.Lock()
	c.state = StateClosed
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for id, results := range pending {
		results <- errorMessage(id, ErrorKindConnectionClosed, "session closed")
	}

	close(c.listenDone)
}

func (c *Client) drop(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return false
	}
	_, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return ok
}

func unpackResponse(msg Message) (json.RawMessage, error) {
	if msg.Type == TypeError {
		return nil, &CallError{Kind: msg.Kind, Message: msg.Message}
	}
	return msg.Result, nil
}
