package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agentstation/autonomy/pkg/errors"
	"github.com/agentstation/autonomy/pkg/logging"
)

// mockSink records frames and can be told to fail.
type mockSink struct {
	id     string
	mu     sync.Mutex
	frames []Frame
	fail   bool
	closed bool
	done   chan struct{}
}

func newMockSink(id string) *mockSink {
	return &mockSink{id: id, done: make(chan struct{})}
}

func (m *mockSink) ID() string { return m.id }

func (m *mockSink) Send(f Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail || m.closed {
		return errors.New("broken pipe")
	}
	m.frames = append(m.frames, f)
	return nil
}

func (m *mockSink) Done() <-chan struct{} { return m.done }

func (m *mockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *mockSink) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.frames))
	for i, f := range m.frames {
		out[i] = f.Event
	}
	return out
}

func (m *mockSink) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func TestFrame(t *testing.T) {
	f, err := NewFrame("stats", map[string]int{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, "event: stats\ndata: {\"n\":1}\n\n", string(f.SSE()))

	envelope, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"stats","data":{"n":1}}`, string(envelope))

	_, err = NewFrame("bad", math.NaN())
	assert.Error(t, err)
}

func TestBroadcaster_PublishRemovesFailedSink(t *testing.T) {
	b := NewBroadcaster(logging.NewNopLogger())
	s1, s2, s3 := newMockSink("1"), newMockSink("2"), newMockSink("3")
	s2.fail = true

	for _, s := range []*mockSink{s1, s2, s3} {
		require.NoError(t, b.Subscribe(s))
	}
	require.Equal(t, 3, b.ClientCount())

	require.NoError(t, b.Publish("stats", map[string]int{"n": 1}))

	assert.Equal(t, []string{"stats"}, s1.events())
	assert.Equal(t, []string{"stats"}, s3.events())
	assert.Empty(t, s2.events())
	assert.True(t, s2.isClosed())
	assert.Equal(t, 2, b.ClientCount())

	require.NoError(t, b.Publish("heartbeat", map[string]int{"t": 1}))
	assert.Equal(t, []string{"stats", "heartbeat"}, s1.events())
	assert.Equal(t, []string{"stats", "heartbeat"}, s3.events())
}

func TestBroadcaster_PublishMarshalError(t *testing.T) {
	b := NewBroadcaster(nil)
	s := newMockSink("1")
	require.NoError(t, b.Subscribe(s))

	err := b.Publish("stats", make(chan int))
	require.Error(t, err)
	assert.Empty(t, s.events())
	assert.Equal(t, 1, b.ClientCount())
}

func TestBroadcaster_PublishNoSinks(t *testing.T) {
	b := NewBroadcaster(nil)
	assert.NoError(t, b.Publish("stats", 1))
	assert.Zero(t, b.PublishFrame(Frame{Event: "x", Data: []byte("1")}))
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	s := newMockSink("1")
	require.NoError(t, b.Subscribe(s))

	assert.True(t, b.Unsubscribe(s))
	assert.False(t, b.Unsubscribe(s))
	assert.True(t, s.isClosed())
	assert.Zero(t, b.ClientCount())
}

func TestBroadcaster_DuplicateIDClosesReplaced(t *testing.T) {
	b := NewBroadcaster(nil)
	old, replacement := newMockSink("dup"), newMockSink("dup")
	require.NoError(t, b.Subscribe(old))
	require.NoError(t, b.Subscribe(replacement))

	assert.True(t, old.isClosed(), "replaced sink must be released")
	assert.False(t, replacement.isClosed())
	assert.Equal(t, 1, b.ClientCount())

	require.NoError(t, b.Publish("stats", 1))
	assert.Empty(t, old.events())
	assert.Equal(t, []string{"stats"}, replacement.events())

	assert.False(t, b.Unsubscribe(old), "stale handle does not remove the replacement")
	assert.Equal(t, 1, b.ClientCount())

	// Subscribing the same sink again is a no-op.
	require.NoError(t, b.Subscribe(replacement))
	assert.False(t, replacement.isClosed())
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(nil)
	s1, s2 := newMockSink("1"), newMockSink("2")
	require.NoError(t, b.Subscribe(s1))
	require.NoError(t, b.Subscribe(s2))

	b.Close()
	b.Close()

	assert.Equal(t, []string{"shutdown"}, s1.events())
	assert.Equal(t, []string{"shutdown"}, s2.events())
	assert.True(t, s1.isClosed())
	assert.True(t, s2.isClosed())
	assert.Zero(t, b.ClientCount())

	late := newMockSink("late")
	err := b.Subscribe(late)
	assert.ErrorIs(t, err, pkgerrors.ErrClosed)
	assert.True(t, late.isClosed())
}

func TestBroadcaster_Concurrent(t *testing.T) {
	b := NewBroadcaster(nil)
	var wg sync.WaitGroup

	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := newMockSink(fmt.Sprintf("sink-%d", i))
			if b.Subscribe(s) == nil && i%2 == 0 {
				b.Unsubscribe(s)
			}
		}()
		go func() {
			defer wg.Done()
			_ = b.Publish("heartbeat", map[string]int{"seq": i})
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, b.ClientCount())
}

func TestBroadcaster_OrderPerSink(t *testing.T) {
	b := NewBroadcaster(nil)
	s := newMockSink("1")
	require.NoError(t, b.Subscribe(s))

	for i := range 50 {
		require.NoError(t, b.Publish(fmt.Sprintf("e%d", i), i))
	}

	got := s.events()
	require.Len(t, got, 50)
	for i, e := range got {
		assert.Equal(t, fmt.Sprintf("e%d", i), e)
	}
}
