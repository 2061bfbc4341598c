package sse

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/agentstation/autonomy/internal/server/events"
	"github.com/agentstation/autonomy/internal/snapshot"
	"github.com/agentstation/autonomy/pkg/constants"
	"github.com/agentstation/autonomy/pkg/logging"
)

// Handler streams broadcaster frames to SSE clients.
type Handler struct {
	broadcaster  *events.Broadcaster
	initial      snapshot.Source
	clock        clock.Clock
	keepAlive    time.Duration
	writeTimeout time.Duration
	logger       *zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithInitial sends a sample of src to every client before it is
// registered for broadcasts.
func WithInitial(src snapshot.Source) Option {
	return func(h *Handler) {
		h.initial = src
	}
}

// WithKeepAlive sets the keepalive comment interval.
func WithKeepAlive(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// WithWriteTimeout bounds each write to a client.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.writeTimeout = d
	}
}

// WithClock sets the clock driving keepalives.
func WithClock(clk clock.Clock) Option {
	return func(h *Handler) {
		h.clock = clk
	}
}

// NewHandler creates an SSE handler publishing from b.
func NewHandler(b *events.Broadcaster, logger *zerolog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := &Handler{
		broadcaster:  b,
		clock:        clock.WallClock,
		keepAlive:    constants.DefaultKeepAlive,
		writeTimeout: constants.SinkWriteTimeout,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles one SSE connection until the client goes away, a
// write fails or the broadcaster shuts down.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	// The stream outlives the server's WriteTimeout; each write sets its
	// own deadline instead.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn().Err(err).Msg("Failed to clear write deadline")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		h.logger.Error().Err(err).Msg("Streaming not supported")
		return
	}

	sink := newStreamSink(w, rc, h.writeTimeout)
	logger := h.logger.With().Str("sink", sink.ID()).Logger()

	if h.initial != nil {
		if err := sink.Send(h.initialFrame(r, &logger)); err != nil {
			logger.Debug().Err(err).Msg("Initial snapshot write failed")
			return
		}
	}

	if err := h.broadcaster.Subscribe(sink); err != nil {
		return
	}
	defer h.broadcaster.Unsubscribe(sink)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sink.Done():
			return
		case <-h.clock.After(h.keepAlive):
			if err := sink.KeepAlive(); err != nil {
				logger.Debug().Err(err).Msg("Keepalive write failed")
				return
			}
		}
	}
}

func (h *Handler) initialFrame(r *http.Request, logger *zerolog.Logger) events.Frame {
	name := h.initial.Name()
	frame, err := events.NewFrame(name, h.initial.Sample(r.Context()))
	if err != nil {
		logger.Warn().Err(err).Str("event", name).Msg("Initial snapshot not serializable")
		data, _ := json.Marshal(snapshot.ErrorPayload{
			Error:     err.Error(),
			Timestamp: h.clock.Now().UTC().Format(constants.TimeFormatISO8601),
		})
		frame = events.Frame{Event: name, Data: data}
	}
	return frame
}
