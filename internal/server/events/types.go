// Package events fans named snapshot frames out to live client sinks.
//
// The Broadcaster keeps a registry of sinks (SSE streams, WebSocket
// connections) and delivers every published frame to each of them. A sink
// that fails a write is removed; clients recover by reconnecting, which
// delivers a fresh snapshot.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Frame is one named message. Data holds the encoded JSON payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewFrame marshals payload into a frame.
func NewFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s frame: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}

// SSE encodes the frame in text/event-stream format.
func (f Frame) SSE() []byte {
	var buf bytes.Buffer
	buf.Grow(len(f.Event) + len(f.Data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(f.Event)
	buf.WriteString("\ndata: ")
	buf.Write(f.Data)
	buf.WriteString("\n\n")
	return buf.Bytes()
}
