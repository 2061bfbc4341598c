package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/autonomy/internal/server/events"
	"github.com/agentstation/autonomy/pkg/logging"
)

type staticSource struct{}

func (staticSource) Name() string               { return "stats" }
func (staticSource) Sample(context.Context) any { return map[string]int{"total_tools": 3} }

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestHandler_Stream(t *testing.T) {
	b := events.NewBroadcaster(nil)
	srv := httptest.NewServer(NewHandler(b, staticSource{}, logging.NewNopLogger()))
	t.Cleanup(srv.Close)

	conn := dial(t, srv)

	var first events.Frame
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "stats", first.Event)
	assert.JSONEq(t, `{"total_tools":3}`, string(first.Data))

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, b.Publish("heartbeat", map[string]int{"seq": 1}))

	var hb events.Frame
	require.NoError(t, conn.ReadJSON(&hb))
	assert.Equal(t, "heartbeat", hb.Event)
	assert.JSONEq(t, `{"seq":1}`, string(hb.Data))
}

func TestHandler_ClientDisconnect(t *testing.T) {
	b := events.NewBroadcaster(nil)
	srv := httptest.NewServer(NewHandler(b, nil, nil))
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHandler_Shutdown(t *testing.T) {
	b := events.NewBroadcaster(nil)
	srv := httptest.NewServer(NewHandler(b, nil, nil))
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	b.Close()

	var f events.Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "shutdown", f.Event)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
