package toolbus

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// WSServer implements a ServerTransport over WebSocket. Each accepted
// connection becomes one Session carrying one frame per text message.
//
// Instances should be created using NewWSServer and shut down through the
// owning Server when no longer needed.
type WSServer struct {
	logger *slog.Logger

	sessions chan *wsSession

	done   chan struct{}
	closed chan struct{}
}

type wsSession struct {
	id     string
	conn   *websocket.Conn
	logger *slog.Logger

	readCtx  context.Context
	stopRead context.CancelFunc
	stopOnce sync.Once
}

// NewWSServer creates a WebSocket server transport. Mount Handler on an HTTP
// server to accept connections.
func NewWSServer() *WSServer {
	return &WSServer{
		logger:   slog.Default(),
		sessions: make(chan *wsSession, 5),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

// Sessions implements the ServerTransport interface. It yields a new Session
// for every accepted WebSocket connection.
func (w *WSServer) Sessions() iter.Seq[Session] {
	return func(yield func(Session) bool) {
		defer close(w.closed)

		for {
			select {
			case <-w.done:
				return
			case sess := <-w.sessions:
				if !yield(sess) {
					return
				}
			}
		}
	}
}

// Shutdown implements the ServerTransport interface.
func (w *WSServer) Shutdown(ctx context.Context) error {
	close(w.done)

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to close WebSocket server: %w", ctx.Err())
	case <-w.closed:
	}
	return nil
}

// Handler returns an http.Handler that upgrades requests to WebSocket
// connections. The connection stays open until the session is stopped or the
// client disconnects.
func (w *WSServer) Handler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(rw, r, nil)
		if err != nil {
			w.logger.Error("failed to accept websocket connection", "err", err)
			return
		}

		sess := newWSSession(conn, w.logger)

		select {
		case w.sessions <- sess:
		case <-w.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		// Keep the handler, and with it the connection, alive until the
		// session is stopped.
		select {
		case <-sess.readCtx.Done():
		case <-w.done:
			sess.Stop()
		}
	})
}

// WSClient implements a ClientTransport over WebSocket, the counterpart of
// WSServer. Instances should be created using NewWSClient.
type WSClient struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWSClient creates a WebSocket client transport that dials url. A nil
// httpClient falls back to http.DefaultClient.
func NewWSClient(url string, httpClient *http.Client) *WSClient {
	cli := httpClient
	if cli == nil {
		cli = http.DefaultClient
	}
	return &WSClient{
		url:        url,
		httpClient: cli,
		logger:     slog.Default(),
	}
}

// StartSession implements the ClientTransport interface. The connection
// outlives ctx; stopping the session closes it.
func (w *WSClient) StartSession(ctx context.Context) (Session, error) {
	conn, resp, err := websocket.Dial(ctx, w.url, &websocket.DialOptions{
		HTTPClient: w.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial WebSocket server: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return newWSSession(conn, w.logger), nil
}

func newWSSession(conn *websocket.Conn, logger *slog.Logger) *wsSession {
	id := uuid.New().String()
	readCtx, stopRead := context.WithCancel(context.Background())
	return &wsSession{
		id:       id,
		conn:     conn,
		logger:   logger.With(slog.String("sessionID", id)),
		readCtx:  readCtx,
		stopRead: stopRead,
	}
}

func (s *wsSession) ID() string { return s.id }

func (s *wsSession) Send(ctx context.Context, msg Message) error {
	frame, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	if err := s.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	return nil
}

func (s *wsSession) Messages() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for {
			_, data, err := s.conn.Read(s.readCtx)
			if err != nil {
				// Normal closure and local stops end the iteration silently.
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
					websocket.CloseStatus(err) == websocket.StatusGoingAway ||
					errors.Is(err, context.Canceled) {
					return
				}
				s.logger.Error("failed to read frame", slog.String("err", err.Error()))
				return
			}

			msg, err := DecodeMessage(data)
			if err != nil {
				s.logger.Warn("dropping undecodable frame", slog.String("err", err.Error()))
				continue
			}

			if !yield(msg) {
				return
			}
		}
	}
}

func (s *wsSession) Stop() {
	s.stopOnce.Do(func() {
		s.stopRead()
		s.conn.Close(websocket.StatusNormalClosure, "")
	})
}
