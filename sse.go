package toolbus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

// SSEServer implements a framework-agnostic ServerTransport over HTTP:
// server-to-client frames stream through Server-Sent Events while
// client-to-server frames arrive via HTTP POST to a per-session endpoint.
// The HandleSSE and HandleMessage handlers can be mounted on any HTTP mux.
//
// Instances should be created using NewSSEServer and shut down through the
// owning Server when no longer needed.
type SSEServer struct {
	messageURL string
	logger     *slog.Logger

	sessions         chan *sseServerSession
	removedSessions  chan string
	receivedMessages chan sseSessionMessage

	done   chan struct{}
	closed chan struct{}
}

type sseServerSession struct {
	id     string
	sess   *sse.Session
	logger *slog.Logger

	// sendMu serializes sends so concurrent dispatches never interleave
	// writes on the SSE session.
	sendMu sync.Mutex

	receivedMsgs chan Message
	stopOnce     sync.Once
	done         chan struct{}
}

type sseSessionMessage struct {
	sessID string
	msg    Message
}

// NewSSEServer creates an SSE server transport whose clients post their
// frames to messageURL. The returned transport is operational immediately;
// mount HandleSSE and HandleMessage on an HTTP server to accept connections.
func NewSSEServer(messageURL string) *SSEServer {
	return &SSEServer{
		messageURL:       messageURL,
		logger:           slog.Default(),
		sessions:         make(chan *sseServerSession, 5),
		removedSessions:  make(chan string),
		receivedMessages: make(chan sseSessionMessage),
		done:             make(chan struct{}),
		closed:           make(chan struct{}),
	}
}

// Sessions implements the ServerTransport interface. It yields a new Session
// for every client that connects to the HandleSSE endpoint and routes posted
// frames to the session they belong to.
func (s *SSEServer) Sessions() iter.Seq[Session] {
	return func(yield func(Session) bool) {
		defer close(s.closed)

		sessionsMap := make(map[string]*sseServerSession)

		for {
			select {
			case <-s.done:
				return
			case sess := <-s.sessions:
				sessionsMap[sess.id] = sess
				if !yield(sess) {
					return
				}
			case sessID := <-s.removedSessions:
				delete(sessionsMap, sessID)
			case msg := <-s.receivedMessages:
				sess, ok := sessionsMap[msg.sessID]
				if !ok {
					// The session might already be closed.
					continue
				}
				select {
				case <-s.done:
					return
				case sess.receivedMsgs <- msg.msg:
				}
			}
		}
	}
}

// Shutdown implements the ServerTransport interface.
func (s *SSEServer) Shutdown(ctx context.Context) error {
	close(s.done)

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to close SSE server: %w", ctx.Err())
	case <-s.closed:
	}
	return nil
}

// HandleSSE returns an http.Handler that upgrades GET requests to SSE
// streams. Each connection becomes one Session; the first event tells the
// client which endpoint to post its frames to. The connection stays open
// until the session is stopped or the client disconnects.
func (s *SSEServer) HandleSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sse.Upgrade(w, r)
		if err != nil {
			nErr := fmt.Errorf("failed to upgrade session: %w", err)
			s.logger.Error("failed to upgrade session", "err", nErr)
			http.Error(w, nErr.Error(), http.StatusInternalServerError)
			return
		}

		sessID := uuid.New().String()

		endpoint := fmt.Sprintf("%s?sessionID=%s", s.messageURL, sessID)

		msg := sse.Message{
			Type: sse.Type("endpoint"),
		}
		msg.AppendData(endpoint)
		if err := sess.Send(&msg); err != nil {
			s.logger.Error("failed to write SSE endpoint", "err", err)
			return
		}
		if err := sess.Flush(); err != nil {
			s.logger.Error("failed to flush SSE endpoint", "err", err)
			return
		}

		srvSession := &sseServerSession{
			id:           sessID,
			sess:         sess,
			logger:       s.logger.With(slog.String("sessionID", sessID)),
			receivedMsgs: make(chan Message, 5),
			done:         make(chan struct{}),
		}

		select {
		case s.sessions <- srvSession:
		case <-s.done:
			return
		}

		// Keep the handler, and with it the SSE connection, alive until the
		// session is stopped or the client goes away.
		select {
		case <-srvSession.done:
		case <-r.Context().Done():
			srvSession.Stop()
		case <-s.done:
		}

		select {
		case s.removedSessions <- sessID:
		case <-s.done:
		}
	})
}

// HandleMessage returns an http.Handler that accepts frames posted by
// clients. It expects a sessionID query parameter and one encoded frame as
// the request body. Undecodable frames are rejected with a logged warning;
// they never affect the session.
func (s *SSEServer) HandleMessage() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessID := r.URL.Query().Get("sessionID")
		if sessID == "" {
			s.logger.Warn("missing sessionID query parameter")
			http.Error(w, "missing sessionID query parameter", http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.logger.Warn("failed to read message body", slog.String("err", err.Error()))
			http.Error(w, "failed to read message body", http.StatusBadRequest)
			return
		}

		msg, err := DecodeMessage(body)
		if err != nil {
			s.logger.Warn("dropping undecodable frame", slog.String("err", err.Error()))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		select {
		case <-s.done:
		case s.receivedMessages <- sseSessionMessage{sessID: sessID, msg: msg}:
		}
	})
}

func (s *sseServerSession) ID() string { return s.id }

func (s *sseServerSession) Send(ctx context.Context, msg Message) error {
	frame, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.New("session is closed")
	default:
	}

	sseMsg := &sse.Message{
		Type: sse.Type("message"),
	}
	sseMsg.AppendData(string(frame))

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if err := s.sess.Send(sseMsg); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	if err := s.sess.Flush(); err != nil {
		return fmt.Errorf("failed to flush frame: %w", err)
	}
	return nil
}

func (s *sseServerSession) Messages() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for {
			select {
			case <-s.done:
				return
			case msg := <-s.receivedMsgs:
				if !yield(msg) {
					return
				}
			}
		}
	}
}

func (s *sseServerSession) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// SSEClient implements a ClientTransport over HTTP, the counterpart of
// SSEServer. Instances should be created using NewSSEClient.
type SSEClient struct {
	httpClient *http.Client
	connectURL string
	logger     *slog.Logger

	maxPayloadSize int
}

// SSEClientOption represents the options for the SSEClient.
type SSEClientOption func(*SSEClient)

type sseClientSession struct {
	id         string
	httpClient *http.Client
	messageURL string
	logger     *slog.Logger

	messages chan Message
	cancel   context.CancelFunc
}

// NewSSEClient creates an SSE client transport that connects to connectURL.
// A nil httpClient falls back to http.DefaultClient.
func NewSSEClient(connectURL string, httpClient *http.Client, options ...SSEClientOption) *SSEClient {
	cli := httpClient
	if cli == nil {
		cli = http.DefaultClient
	}
	s := &SSEClient{
		connectURL: connectURL,
		httpClient: cli,
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// WithSSEClientMaxPayloadSize sets the maximum size of a frame accepted from
// the server. Oversized frames end the session with a logged error.
func WithSSEClientMaxPayloadSize(size int) SSEClientOption {
	return func(s *SSEClient) {
		s.maxPayloadSize = size
	}
}

// StartSession implements the ClientTransport interface. It opens the SSE
// stream and waits for the server to advertise the message endpoint before
// returning. The stream outlives ctx; stopping the session closes it.
func (s *SSEClient) StartSession(ctx context.Context) (Session, error) {
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.connectURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to SSE server: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	sess := &sseClientSession{
		httpClient: s.httpClient,
		logger:     s.logger,
		messages:   make(chan Message),
		cancel:     cancel,
	}

	endpoints := make(chan string, 1)
	go s.listenSSEMessages(sess, resp.Body, endpoints)

	select {
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	case endpoint, ok := <-endpoints:
		if !ok {
			cancel()
			return nil, errors.New("SSE stream closed before endpoint event")
		}
		sess.messageURL = endpoint
	}

	// The endpoint carries the server-assigned session ID.
	if u, err := url.Parse(sess.messageURL); err == nil {
		sess.id = u.Query().Get("sessionID")
	}
	if sess.id == "" {
		sess.id = uuid.New().String()
	}

	return sess, nil
}

func (s *SSEClient) listenSSEMessages(sess *sseClientSession, body io.ReadCloser, endpoints chan<- string) {
	defer func() {
		body.Close()
		close(sess.messages)
	}()

	endpointSent := false
	defer func() {
		if !endpointSent {
			close(endpoints)
		}
	}()

	var config *sse.ReadConfig
	if s.maxPayloadSize > 0 {
		config = &sse.ReadConfig{
			MaxEventSize: s.maxPayloadSize,
		}
	}

	for ev, err := range sse.Read(body, config) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error("failed to read SSE event", "err", err)
			}
			return
		}

		switch ev.Type {
		case "endpoint":
			u, err := url.Parse(ev.Data)
			if err != nil || u.String() == "" {
				s.logger.Error("invalid endpoint URL", "data", ev.Data)
				return
			}
			endpoints <- u.String()
			endpointSent = true
		case "message":
			if !endpointSent {
				s.logger.Error("received frame before endpoint event")
				continue
			}

			msg, err := DecodeMessage([]byte(ev.Data))
			if err != nil {
				s.logger.Warn("dropping undecodable frame", slog.String("err", err.Error()))
				continue
			}

			sess.messages <- msg
		default:
			s.logger.Warn("unhandled event type", "type", ev.Type)
		}
	}
}

func (s *sseClientSession) ID() string { return s.id }

// Send transmits one frame to the server through an HTTP POST.
func (s *sseClientSession) Send(ctx context.Context, msg Message) error {
	frame, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.messageURL, bytes.NewReader(frame))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

func (s *sseClientSession) Messages() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for msg := range s.messages {
			if !yield(msg) {
				return
			}
		}
	}
}

func (s *sseClientSession) Stop() {
	s.cancel()
}
