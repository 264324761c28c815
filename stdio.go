package toolbus

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// StdIO implements a standard input/output transport carrying one frame per
// newline-delimited line over an io.Reader/io.Writer pair. It provides a
// single persistent session and can be used as either ServerTransport or
// ClientTransport.
//
// Instances must be created with NewStdIO and released by stopping the
// session when no longer needed.
type StdIO struct {
	sess   *stdIOSession
	closed chan struct{}
}

type stdIOSession struct {
	id     string
	reader io.Reader
	writer io.Writer
	logger *slog.Logger

	// writeMu serializes frame writes so concurrent senders never interleave
	// bytes within a frame.
	writeMu sync.Mutex

	stopOnce sync.Once
	done     chan struct{}
}

// NewStdIO creates a new StdIO instance over the provided reader and writer.
func NewStdIO(reader io.Reader, writer io.Writer) *StdIO {
	return &StdIO{
		sess: &stdIOSession{
			id:     uuid.New().String(),
			reader: reader,
			writer: writer,
			logger: slog.Default(),
			done:   make(chan struct{}),
		},
		closed: make(chan struct{}),
	}
}

// Sessions implements the ServerTransport interface by yielding the single
// persistent session, which remains active for the lifetime of the StdIO
// instance.
func (s *StdIO) Sessions() iter.Seq[Session] {
	return func(yield func(Session) bool) {
		defer close(s.closed)

		yield(s.sess)
		<-s.sess.done
	}
}

// Shutdown implements the ServerTransport interface by waiting for the
// Sessions loop to break.
func (s *StdIO) Shutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
	}
	return nil
}

// StartSession implements the ClientTransport interface.
func (s *StdIO) StartSession(_ context.Context) (Session, error) {
	return s.sess, nil
}

func (s *stdIOSession) ID() string {
	return s.id
}

func (s *stdIOSession) Send(ctx context.Context, msg Message) error {
	frame, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	// Newline delimits the frame on the stream.
	frame = append(frame, '\n')

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.New("session is closed")
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.writer.Write(frame); err != nil {
		s.logger.Error("failed to write frame", slog.String("err", err.Error()))
		return err
	}
	return nil
}

func (s *stdIOSession) Messages() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		// bufio.Reader instead of bufio.Scanner to avoid max token size errors
		// on large frames.
		reader := bufio.NewReader(s.reader)
		for {
			type lineWithErr struct {
				line string
				err  error
			}

			lines := make(chan lineWithErr, 1)

			// Reads run on their own goroutine so a blocked reader never
			// prevents the done channel from ending the iteration.
			go func() {
				line, err := reader.ReadString('\n')
				if err != nil {
					lines <- lineWithErr{err: err}
					return
				}
				lines <- lineWithErr{line: line}
			}()

			var lwe lineWithErr
			select {
			case <-s.done:
				return
			case lwe = <-lines:
			}

			if lwe.err != nil {
				if !errors.Is(lwe.err, io.EOF) && !errors.Is(lwe.err, io.ErrClosedPipe) {
					s.logger.Error("failed to read frame", slog.String("err", lwe.err.Error()))
				}
				return
			}

			if len(lwe.line) <= 1 {
				continue
			}

			msg, err := DecodeMessage([]byte(lwe.line))
			if err != nil {
				// Undecodable frames are dropped with a warning; they never
				// terminate the session.
				s.logger.Warn("dropping undecodable frame", slog.String("err", err.Error()))
				continue
			}

			if !yield(msg) {
				return
			}
		}
	}
}

func (s *stdIOSession) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
