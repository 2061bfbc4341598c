package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/autonomy/internal/server/events"
	"github.com/agentstation/autonomy/internal/snapshot"
	"github.com/agentstation/autonomy/pkg/logging"
)

// Handler upgrades requests and registers each connection with the
// broadcaster.
type Handler struct {
	broadcaster *events.Broadcaster
	initial     snapshot.Source
	upgrader    websocket.Upgrader
	logger      *zerolog.Logger
}

// NewHandler creates a WebSocket stream handler. initial may be nil.
func NewHandler(b *events.Broadcaster, initial snapshot.Source, logger *zerolog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Handler{
		broadcaster: b,
		initial:     initial,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// ServeHTTP handles one WebSocket connection for its lifetime.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, h.logger)

	if h.initial != nil {
		frame, err := events.NewFrame(h.initial.Name(), h.initial.Sample(r.Context()))
		if err == nil {
			err = client.Send(frame)
		}
		if err != nil {
			h.logger.Debug().Err(err).Str("client_id", client.ID()).Msg("Initial snapshot failed")
			_ = client.Close()
			return
		}
	}

	if err := h.broadcaster.Subscribe(client); err != nil {
		return
	}
	defer h.broadcaster.Unsubscribe(client)

	go client.PingLoop()
	client.ReadPump()
}
