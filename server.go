package toolbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ServerOption represents the options for the server.
type ServerOption func(*Server)

// Server services tool-invocation sessions over a ServerTransport. It owns a
// read-only tool registry, accepts any number of concurrent sessions, and
// within each session dispatches any number of concurrently in-flight
// requests with no ordering guarantee among them.
type Server struct {
	transport  ServerTransport
	dispatcher Dispatcher

	sendTimeout time.Duration

	logger *slog.Logger

	onClientConnected    func(string)
	onClientDisconnected func(string)

	sessionsWaitGroup *sync.WaitGroup

	done chan struct{}
}

type serverSession struct {
	session    Session
	dispatcher Dispatcher
	logger     *slog.Logger

	sendTimeout time.Duration
}

var defaultServerSendTimeout = 30 * time.Second

// NewServer creates a server exposing the tools in registry over transport.
// The registry must be fully populated before Serve is called; it is treated
// as read-only from then on.
func NewServer(registry *Registry, transport ServerTransport, options ...ServerOption) Server {
	s := Server{
		transport:         transport,
		logger:            slog.Default(),
		sessionsWaitGroup: &sync.WaitGroup{},
		done:              make(chan struct{}),
	}
	for _, opt := range options {
		opt(&s)
	}
	if s.sendTimeout == 0 {
		s.sendTimeout = defaultServerSendTimeout
	}

	s.dispatcher = NewDispatcher(registry, s.logger)

	return s
}

// WithServerSendTimeout returns a ServerOption that configures the server's
// send timeout.
func WithServerSendTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.sendTimeout = timeout
	}
}

// WithServerOnClientConnected sets the callback for when a client session
// starts. The callback's parameter is the session ID.
func WithServerOnClientConnected(onClientConnected func(string)) ServerOption {
	return func(s *Server) {
		s.onClientConnected = onClientConnected
	}
}

// WithServerOnClientDisconnected sets the callback for when a client session
// ends. The callback's parameter is the session ID.
func WithServerOnClientDisconnected(onClientDisconnected func(string)) ServerOption {
	return func(s *Server) {
		s.onClientDisconnected = onClientDisconnected
	}
}

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With(
			slog.String("package", "go-toolbus"),
			slog.String("component", "server"),
		)
	}
}

// Serve accepts sessions from the transport and services them until the
// transport is shut down. Serve blocks.
func (s Server) Serve() {
	// This loop breaks when the transport is closed.
	for sess := range s.transport.Sessions() {
		ss := serverSession{
			session:     sess,
			dispatcher:  s.dispatcher,
			logger:      s.logger.With(slog.String("sessionID", sess.ID())),
			sendTimeout: s.sendTimeout,
		}

		s.sessionsWaitGroup.Add(1)

		go func() {
			defer s.sessionsWaitGroup.Done()

			if s.onClientConnected != nil {
				s.onClientConnected(ss.session.ID())
			}

			ss.start(s.done)

			if s.onClientDisconnected != nil {
				s.onClientDisconnected(ss.session.ID())
			}
		}()
	}
}

// Shutdown gracefully shuts down the server by waiting for all active
// sessions to finish and closing the transport. It returns an error if the
// context is cancelled before the shutdown completes.
func (s Server) Shutdown(ctx context.Context) error {
	close(s.done)

	s.sessionsWaitGroup.Wait()

	if err := s.transport.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown transport: %w", err)
	}

	return nil
}

func (s serverSession) start(done <-chan struct{}) {
	defer s.session.Stop()

	// This base context cancels every in-flight dispatch when the session's
	// receive loop breaks.
	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()

	go func() {
		select {
		case <-done:
			baseCancel()
			// Stopping the session breaks the receive loop below, letting
			// shutdown proceed.
			s.session.Stop()
		case <-baseCtx.Done():
		}
	}()

	// This loop breaks when the session is closed. Each call frame is
	// dispatched on its own goroutine so slow handlers never block the other
	// in-flight requests sharing the session.
	for msg := range s.session.Messages() {
		switch msg.Type {
		case TypeDiscover:
			go s.handleDiscover(baseCtx)
		case TypeCall:
			go s.handleCall(baseCtx, msg)
		default:
			// Frames with no identifiable originator are logged and discarded,
			// never fatal to the session.
			s.logger.Warn("discarding unexpected frame",
				slog.String("type", string(msg.Type)),
				slog.Uint64("id", msg.ID))
		}
	}
}

func (s serverSession) handleDiscover(ctx context.Context) {
	s.send(ctx, s.dispatcher.ListTools())
}

func (s serverSession) handleCall(ctx context.Context, msg Message) {
	s.send(ctx, s.dispatcher.Handle(ctx, msg))
}

func (s serverSession) send(ctx context.Context, msg Message) {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	if err := s.session.Send(sendCtx, msg); err != nil {
		s.logger.Error("failed to send frame",
			slog.String("type", string(msg.Type)),
			slog.Uint64("id", msg.ID),
			slog.String("err", err.Error()))
	}
}
