package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/autonomy/pkg/constants"
	"github.com/agentstation/autonomy/pkg/errors"
	"github.com/agentstation/autonomy/pkg/logging"
)

// Broadcaster is a concurrency-safe registry of sinks. The registry lock is
// never held while writing to a sink.
type Broadcaster struct {
	mu     sync.Mutex
	sinks  map[string]Sink
	order  []string
	closed bool
	logger *zerolog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *zerolog.Logger) *Broadcaster {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Broadcaster{
		sinks:  make(map[string]Sink),
		logger: logger,
	}
}

// Subscribe registers sink. A different sink already registered under the
// same ID is replaced and closed. After Close the sink is closed
// immediately and errors.ErrClosed is returned.
func (b *Broadcaster) Subscribe(sink Sink) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = sink.Close()
		return errors.ErrClosed
	}
	prev, exists := b.sinks[sink.ID()]
	if !exists {
		b.order = append(b.order, sink.ID())
	}
	b.sinks[sink.ID()] = sink
	total := len(b.sinks)
	b.mu.Unlock()

	if exists && prev != sink {
		_ = prev.Close()
		b.logger.Warn().
			Str("sink", sink.ID()).
			Msg("Replaced client with duplicate ID")
	}

	b.logger.Info().
		Str("sink", sink.ID()).
		Int("total_clients", total).
		Msg("Client subscribed")
	return nil
}

// Unsubscribe removes and closes sink. It reports whether the sink was
// registered; repeated calls are no-ops.
func (b *Broadcaster) Unsubscribe(sink Sink) bool {
	removed := b.remove(sink)
	_ = sink.Close()
	if removed {
		b.logger.Info().
			Str("sink", sink.ID()).
			Int("total_clients", b.ClientCount()).
			Msg("Client unsubscribed")
	}
	return removed
}

// Publish marshals payload once and writes it to every registered sink.
// Sinks that fail are removed and closed. Only marshal errors are returned.
func (b *Broadcaster) Publish(event string, payload any) error {
	frame, err := NewFrame(event, payload)
	if err != nil {
		return err
	}
	b.PublishFrame(frame)
	return nil
}

// PublishFrame writes an encoded frame to every registered sink and returns
// the number of sinks that received it.
func (b *Broadcaster) PublishFrame(frame Frame) int {
	sinks := b.snapshot()
	if len(sinks) == 0 {
		return 0
	}

	var failed []Sink
	for _, sink := range sinks {
		if err := sink.Send(frame); err != nil {
			b.logger.Debug().
				Err(err).
				Str("sink", sink.ID()).
				Str("event", frame.Event).
				Msg("Sink write failed")
			failed = append(failed, sink)
		}
	}

	for _, sink := range failed {
		if b.remove(sink) {
			b.logger.Info().
				Str("sink", sink.ID()).
				Msg("Removed failed client")
		}
		_ = sink.Close()
	}

	return len(sinks) - len(failed)
}

// ClientCount returns the number of registered sinks.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sinks)
}

// Close sends a shutdown frame to every sink, then closes and forgets
// them. Later Subscribe calls fail.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	sinks := b.snapshotLocked()
	b.sinks = make(map[string]Sink)
	b.order = nil
	b.mu.Unlock()

	if frame, err := NewFrame(constants.EventShutdown, map[string]string{"reason": "server shutting down"}); err == nil {
		for _, sink := range sinks {
			_ = sink.Send(frame)
		}
	}
	for _, sink := range sinks {
		_ = sink.Close()
	}

	b.logger.Info().
		Int("clients", len(sinks)).
		Msg("Broadcaster shut down")
}

// snapshot copies the registry in subscription order.
func (b *Broadcaster) snapshot() []Sink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Broadcaster) snapshotLocked() []Sink {
	out := make([]Sink, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.sinks[id])
	}
	return out
}

// remove deletes sink from the registry if that exact sink is registered.
func (b *Broadcaster) remove(sink Sink) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.sinks[sink.ID()]
	if !ok || current != sink {
		return false
	}
	delete(b.sinks, sink.ID())
	for i, id := range b.order {
		if id == sink.ID() {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true
}
