package backfill

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/autonomy/pkg/errors"
	"github.com/agentstation/autonomy/pkg/logging"
	"github.com/agentstation/autonomy/pkg/streaks"
)

type fakeStore struct {
	mu          sync.Mutex
	events      []streaks.Event
	scanErr     error
	replaceErr  error
	sessionErr  map[float64]error
	sessions    map[float64][]string
	lookups     int
	replaced    []streaks.Streak
	replaceCall int
	block       chan struct{}
	started     chan struct{}
	startOnce   sync.Once
}

func (f *fakeStore) ScanEvents(ctx context.Context, fn func(streaks.Event) error) error {
	if f.started != nil {
		f.startOnce.Do(func() { close(f.started) })
	}
	if f.block != nil {
		<-f.block
	}
	if f.scanErr != nil {
		return f.scanErr
	}
	for _, e := range f.events {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) SessionsAt(ctx context.Context, ts float64, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if err := f.sessionErr[ts]; err != nil {
		return nil, err
	}
	ids := f.sessions[ts]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeStore) ReplaceStreaks(ctx context.Context, rows []streaks.Streak) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceCall++
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced = rows
	return nil
}

func run(tool string, start float64, n int, step float64) []streaks.Event {
	out := make([]streaks.Event, n)
	for i := range n {
		out[i] = streaks.Event{Timestamp: start + float64(i)*step, ToolName: tool}
	}
	return out
}

func testConfig() Config {
	return Config{
		Options:      streaks.Options{GapThreshold: 30, MinDuration: 60},
		TopK:         50,
		SessionLimit: 5,
	}
}

func TestRun(t *testing.T) {
	var events []streaks.Event
	events = append(events, run("Read", 0, 5, 20)...)     // 0..80
	events = append(events, run("Edit", 1000, 11, 10)...) // 1000..1100
	events = append(events, run("Bash", 5000, 2, 10)...)  // too short

	store := &fakeStore{
		events:   events,
		sessions: map[float64][]string{1000: {"s1", "s2"}},
	}
	fixed := utc.New(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	job, err := New(store, testConfig(),
		WithLogger(logging.NewNopLogger()),
		WithNow(func() utc.Time { return fixed }),
	)
	require.NoError(t, err)

	res, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, len(events), res.Events)
	require.Len(t, res.Streaks, 2)
	assert.Equal(t, 1000.0, res.Streaks[0].StartTS)
	assert.Equal(t, 100.0, res.Streaks[0].Duration)
	assert.Equal(t, []string{"s1", "s2"}, res.Streaks[0].SessionIDs)
	assert.Equal(t, 0.0, res.Streaks[1].StartTS)
	assert.Empty(t, res.Streaks[1].SessionIDs)
	assert.Equal(t, fixed, res.Streaks[0].ComputedAt)

	assert.Equal(t, 2, res.Summary.Count)
	assert.Equal(t, 180.0, res.Summary.Autonomous)
	assert.Equal(t, 5010.0, res.Summary.Span)
	assert.Equal(t, res.Streaks, store.replaced)
}

func TestRun_TopK(t *testing.T) {
	var events []streaks.Event
	for i := range 5 {
		events = append(events, run("Read", float64(i*1000), 10+i, 10)...)
	}
	store := &fakeStore{events: events}
	cfg := testConfig()
	cfg.TopK = 2

	job, err := New(store, cfg)
	require.NoError(t, err)
	res, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Streaks, 5)
	assert.Equal(t, 2, store.lookups)
}

func TestRun_SessionFailureSwallowed(t *testing.T) {
	events := append(run("Read", 0, 10, 10), run("Edit", 1000, 20, 10)...)
	store := &fakeStore{
		events:     events,
		sessions:   map[float64][]string{0: {"keep"}},
		sessionErr: map[float64]error{1000: errors.New("database is locked")},
	}
	tl := logging.NewTestLogger(t)

	job, err := New(store, testConfig(), WithLogger(tl.Logger))
	require.NoError(t, err)
	res, err := job.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Streaks, 2)
	assert.Empty(t, res.Streaks[0].SessionIDs)
	assert.Equal(t, []string{"keep"}, res.Streaks[1].SessionIDs)
	assert.Equal(t, 1, store.replaceCall)
	tl.AssertContains(t, "Session lookup failed")
	tl.AssertContains(t, `"job":"backfill"`)
}

func TestRun_ContextLoggerWins(t *testing.T) {
	store := &fakeStore{events: run("Read", 0, 10, 10)}
	own := logging.NewTestLogger(t)
	request := logging.NewTestLogger(t)

	job, err := New(store, testConfig(), WithLogger(own.Logger))
	require.NoError(t, err)

	ctx := logging.WithLogger(context.Background(), request.Logger)
	_, err = job.Run(ctx)
	require.NoError(t, err)

	request.AssertContains(t, "Backfill complete")
	request.AssertContains(t, `"job":"backfill"`)
	assert.Empty(t, own.Output())
}

func TestRun_ScanFailureWritesNothing(t *testing.T) {
	store := &fakeStore{scanErr: errors.NewUnavailableError("/nope.db", errors.New("unable to open"))}
	job, err := New(store, testConfig())
	require.NoError(t, err)

	_, err = job.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsUnavailable(err))
	assert.Zero(t, store.replaceCall)
}

func TestRun_ReplaceFailure(t *testing.T) {
	store := &fakeStore{events: run("Read", 0, 10, 10), replaceErr: errors.New("disk full")}
	job, err := New(store, testConfig())
	require.NoError(t, err)

	_, err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRun_Empty(t *testing.T) {
	store := &fakeStore{}
	job, err := New(store, testConfig())
	require.NoError(t, err)

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Streaks)
	assert.Zero(t, res.Summary.Rate)
	assert.Equal(t, 1, store.replaceCall)
}

func TestRun_AlreadyRunning(t *testing.T) {
	store := &fakeStore{
		events:  run("Read", 0, 10, 10),
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	job, err := New(store, testConfig())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := job.Run(context.Background())
		done <- err
	}()

	<-store.started
	_, err = job.Run(context.Background())
	assert.True(t, errors.IsAlreadyRunning(err))

	close(store.block)
	require.NoError(t, <-done)

	_, err = job.Run(context.Background())
	assert.NoError(t, err)
}

func TestNew_Validation(t *testing.T) {
	cfg := testConfig()
	cfg.Options.GapThreshold = 0
	_, err := New(&fakeStore{}, cfg)
	assert.True(t, errors.IsValidationError(err))

	cfg = testConfig()
	cfg.TopK = -1
	_, err = New(&fakeStore{}, cfg)
	assert.True(t, errors.IsValidationError(err))
}
