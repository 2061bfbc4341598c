package sse

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/autonomy/internal/server/events"
	"github.com/agentstation/autonomy/pkg/logging"
)

type staticSource struct {
	name    string
	payload any
}

func (s staticSource) Name() string               { return s.name }
func (s staticSource) Sample(context.Context) any { return s.payload }

// stream reads SSE blocks separated by blank lines.
type stream struct {
	resp   *http.Response
	reader *bufio.Reader
}

func connect(t *testing.T, url string) *stream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return &stream{resp: resp, reader: bufio.NewReader(resp.Body)}
}

// next returns the next block, skipping keepalives unless wanted.
func (s *stream) next(t *testing.T, keepalives bool) string {
	t.Helper()
	for {
		var lines []string
		for {
			line, err := s.reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					return ""
				}
				require.NoError(t, err)
			}
			line = strings.TrimSuffix(line, "\n")
			if line == "" {
				break
			}
			lines = append(lines, line)
		}
		block := strings.Join(lines, "\n")
		if !keepalives && strings.HasPrefix(block, ":") {
			continue
		}
		return block
	}
}

func waitForClients(t *testing.T, b *events.Broadcaster, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return b.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHandler_InitialSnapshotAndPublish(t *testing.T) {
	b := events.NewBroadcaster(logging.NewNopLogger())
	h := NewHandler(b, logging.NewNopLogger(),
		WithInitial(staticSource{name: "stats", payload: map[string]int{"total_tools": 7}}),
		WithKeepAlive(time.Hour),
	)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	s := connect(t, srv.URL)
	assert.Equal(t, "event: stats\ndata: {\"total_tools\":7}", s.next(t, false))

	waitForClients(t, b, 1)
	require.NoError(t, b.Publish("heartbeat", map[string]int{"t": 1, "seq": 1}))
	assert.Equal(t, "event: heartbeat\ndata: {\"seq\":1,\"t\":1}", s.next(t, false))
}

func TestHandler_KeepAlive(t *testing.T) {
	b := events.NewBroadcaster(nil)
	h := NewHandler(b, nil, WithKeepAlive(10*time.Millisecond))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	s := connect(t, srv.URL)
	assert.Equal(t, ": keepalive", s.next(t, true))
}

func TestHandler_DisconnectUnsubscribes(t *testing.T) {
	b := events.NewBroadcaster(nil)
	h := NewHandler(b, nil, WithKeepAlive(10*time.Millisecond))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	waitForClients(t, b, 1)

	cancel()
	_ = resp.Body.Close()
	waitForClients(t, b, 0)
}

func TestHandler_ShutdownNotifiesAndCloses(t *testing.T) {
	b := events.NewBroadcaster(nil)
	h := NewHandler(b, nil, WithKeepAlive(time.Hour))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	s := connect(t, srv.URL)
	waitForClients(t, b, 1)

	b.Close()
	assert.Equal(t, "event: shutdown\ndata: {\"reason\":\"server shutting down\"}", s.next(t, false))
	assert.Equal(t, "", s.next(t, false), "stream should end after shutdown")
}

func TestHandler_ClosedBroadcasterRejects(t *testing.T) {
	b := events.NewBroadcaster(nil)
	b.Close()
	h := NewHandler(b, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream", nil)
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, b.ClientCount())
}

func TestStreamSink_ClosedRejectsWrites(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := newStreamSink(rec, http.NewResponseController(rec), time.Second)

	require.NoError(t, sink.Send(events.Frame{Event: "x", Data: []byte("1")}))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	assert.Error(t, sink.Send(events.Frame{Event: "y", Data: []byte("2")}))
	assert.Equal(t, "event: x\ndata: 1\n\n", rec.Body.String())

	select {
	case <-sink.Done():
	default:
		t.Fatal("Done not closed")
	}
}
