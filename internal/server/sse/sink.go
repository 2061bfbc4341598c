// Package sse serves the live snapshot stream as Server-Sent Events.
package sse

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/autonomy/internal/server/events"
	pkgerrors "github.com/agentstation/autonomy/pkg/errors"
)

var keepAliveComment = []byte(": keepalive\n\n")

// streamSink writes frames to one SSE response. Publish and keepalive share
// the writer, so every write holds mu.
type streamSink struct {
	id           string
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration

	mu        sync.Mutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

func newStreamSink(w http.ResponseWriter, rc *http.ResponseController, writeTimeout time.Duration) *streamSink {
	return &streamSink{
		id:           "sse-" + uuid.NewString(),
		w:            w,
		rc:           rc,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// ID implements events.Sink.
func (s *streamSink) ID() string {
	return s.id
}

// Send implements events.Sink.
func (s *streamSink) Send(f events.Frame) error {
	return s.write(f.SSE())
}

// KeepAlive writes an SSE comment line.
func (s *streamSink) KeepAlive() error {
	return s.write(keepAliveComment)
}

// Done implements events.Sink.
func (s *streamSink) Done() <-chan struct{} {
	return s.done
}

// Close implements events.Sink. It waits for an in-flight write so the
// response is never touched after the handler returns.
func (s *streamSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *streamSink) write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pkgerrors.ErrClosed
	}

	if s.writeTimeout > 0 {
		err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}

	if _, err := s.w.Write(p); err != nil {
		return err
	}
	return s.rc.Flush()
}
