package events

// Sink is one live client connection.
// Implementations adapt the frame stream to a transport (SSE, WebSocket).
type Sink interface {
	// ID identifies the sink in logs and in the registry.
	ID() string

	// Send writes a frame. Implementations must serialize concurrent
	// calls and bound each write; an error means the sink is dead.
	Send(Frame) error

	// Done is closed once the sink is closed.
	Done() <-chan struct{}

	// Close releases the sink. It is idempotent.
	Close() error
}
