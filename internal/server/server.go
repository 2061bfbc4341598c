package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/agentstation/autonomy/internal/backfill"
	"github.com/agentstation/autonomy/internal/cmd/application"
	"github.com/agentstation/autonomy/internal/eventlog"
	"github.com/agentstation/autonomy/internal/server/cache"
	"github.com/agentstation/autonomy/internal/server/digest"
	"github.com/agentstation/autonomy/internal/server/events"
	"github.com/agentstation/autonomy/internal/server/middleware"
	"github.com/agentstation/autonomy/internal/server/poller"
	"github.com/agentstation/autonomy/internal/server/sse"
	ws "github.com/agentstation/autonomy/internal/server/websocket"
	"github.com/agentstation/autonomy/internal/snapshot"
	"github.com/agentstation/autonomy/pkg/constants"
	"github.com/agentstation/autonomy/pkg/errors"
	"github.com/agentstation/autonomy/pkg/logging"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	app         application.Application
	store       *eventlog.Store
	cache       *cache.Cache
	broadcaster *events.Broadcaster
	detector    *digest.Detector
	poller      *poller.Loop
	backfill    *backfill.Job
	limiter     *middleware.RateLimiter

	stats  *snapshot.Stats
	health *snapshot.Health
	signal *snapshot.Signal

	sseHandler *sse.Handler
	wsHandler  *ws.Handler

	clock     clock.Clock
	logger    *zerolog.Logger
	config    Config
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	started   atomic.Bool
	startTime time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces the wall clock driving the poll loop, keepalives and
// the rate limiter.
func WithClock(clk clock.Clock) Option {
	return func(s *Server) {
		s.clock = clk
	}
}

// New creates a server over the application's event log.
func New(app application.Application, cfg Config, opts ...Option) (*Server, error) {
	logger := app.Logger()
	cfg = cfg.withDefaults()

	logger.Debug().Msg("Creating new server instance")

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		app:       app,
		clock:     clock.WallClock,
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	store, err := app.EventLog(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	s.store = store

	job, err := backfill.New(store, app.Settings().Backfill, backfill.WithLogger(logging.Component(logger, "backfill")))
	if err != nil {
		cancel()
		return nil, err
	}
	s.backfill = job

	s.cache = cache.New(cfg.CacheTTL, constants.CacheCleanupInterval)
	s.broadcaster = events.NewBroadcaster(logging.Component(logger, "broadcaster"))
	s.detector = digest.NewDetector()

	s.stats = snapshot.NewStats(store, s.clock)
	s.health = snapshot.NewHealth(store, s.clock, cfg.StaleAfter, s.broadcaster.ClientCount)
	s.signal = snapshot.NewSignal(store, s.clock, app.Settings().Backfill.Options, cfg.SignalWindow)

	primary := snapshot.Safe(s.stats, s.clock, logger)
	loop, err := poller.New(poller.Config{
		Interval:       cfg.PollInterval,
		SecondaryEvery: cfg.SecondaryEvery,
		Primary:        primary,
		Secondary: []snapshot.Source{
			snapshot.Safe(s.health, s.clock, logger),
			snapshot.Safe(s.signal, s.clock, logger),
		},
	}, s.broadcaster, s.detector, s.clock, logging.Component(logger, "poller"))
	if err != nil {
		cancel()
		return nil, err
	}
	s.poller = loop

	s.sseHandler = sse.NewHandler(s.broadcaster, logging.Component(logger, "sse"),
		sse.WithInitial(primary),
		sse.WithKeepAlive(cfg.KeepAlive),
		sse.WithClock(s.clock),
	)
	s.wsHandler = ws.NewHandler(s.broadcaster, primary, logging.Component(logger, "websocket"))

	if cfg.BackfillRateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.BackfillRateLimit, time.Minute, s.clock, logging.Component(logger, "ratelimit"))
	}

	logger.Debug().
		Str("event_log", store.Path()).
		Dur("poll_interval", cfg.PollInterval).
		Msg("Server instance created")
	return s, nil
}

// Start starts the poll loop and the rate limiter janitor. Later calls
// are no-ops.
func (s *Server) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.logger.Debug().Msg("Starting background services")

	go func() {
		defer close(s.done)
		if err := s.poller.Run(s.ctx); err != nil {
			s.logger.Error().Err(err).Msg("Poll loop exited")
		}
	}()

	if s.limiter != nil {
		go s.limiter.Run(s.ctx)
	}
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// Shutdown notifies and disconnects every stream client, then stops the
// poll loop. It must run before http.Server.Shutdown, which would
// otherwise wait for streams that never end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server background services")

	s.cancel()
	s.broadcaster.Close()

	if !s.started.Load() {
		return nil
	}
	select {
	case <-s.done:
		s.logger.Info().Msg("Background services shut down successfully")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
		return errors.NewTimeoutError("shutdown", "", ctx.Err().Error())
	}
}

// Cache returns the server's cache instance.
func (s *Server) Cache() *cache.Cache {
	return s.cache
}

// Broadcaster returns the stream broadcaster.
func (s *Server) Broadcaster() *events.Broadcaster {
	return s.broadcaster
}

// Poller returns the poll loop.
func (s *Server) Poller() *poller.Loop {
	return s.poller
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
