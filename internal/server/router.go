package server

import (
	"net/http"

	"github.com/agentstation/autonomy/internal/server/handlers"
	"github.com/agentstation/autonomy/internal/server/middleware"
	"github.com/agentstation/autonomy/internal/server/response"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(handlers.Deps{
		EventLog: s.store,
		Cache:    s.cache,
		Backfill: s.backfill,
		Digests:  s.detector,
		Clients:  s.broadcaster.ClientCount,
		Stats:    s.stats,
		Health:   s.health,
		Signal:   s.signal,
		Version:  s.app.Version(),
		Clock:    s.clock,
		Logger:   s.logger,
	})

	s.registerRoutes(mux, h)

	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix

	// Favicon handler (return 204 No Content to avoid 404 logs)
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Health endpoints
	mux.HandleFunc("/health", only(http.MethodGet, h.HandleHealth))
	mux.HandleFunc(prefix+"/health", only(http.MethodGet, h.HandleHealth))
	mux.HandleFunc(prefix+"/health/snapshot", only(http.MethodGet, h.HandleHealthSnapshot))
	mux.HandleFunc(prefix+"/ready", only(http.MethodGet, h.HandleReady))

	// Snapshot reads
	mux.HandleFunc(prefix+"/stats", only(http.MethodGet, h.HandleStats))
	mux.HandleFunc(prefix+"/signal", only(http.MethodGet, h.HandleSignal))

	// Streaks
	mux.HandleFunc(prefix+"/streaks", only(http.MethodGet, h.HandleListStreaks))
	mux.HandleFunc(prefix+"/streaks/{rank}", only(http.MethodGet, h.HandleGetStreak))

	var backfill http.Handler = http.HandlerFunc(h.HandleBackfill)
	if s.limiter != nil {
		backfill = middleware.RateLimit(s.limiter)(backfill)
	}
	mux.Handle(prefix+"/streaks/backfill", onlyHandler(http.MethodPost, backfill))

	// Real-time endpoints
	mux.Handle(prefix+"/stream", onlyHandler(http.MethodGet, s.sseHandler))
	mux.Handle(prefix+"/stream/ws", onlyHandler(http.MethodGet, s.wsHandler))
}

// applyMiddleware wraps handler with middleware chain.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	// CORS (if enabled)
	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig()
		if len(cfg.CORSOrigins) > 0 {
			corsConfig.AllowedOrigins = cfg.CORSOrigins
			corsConfig.AllowAll = false
		}
		handler = middleware.CORS(corsConfig)(handler)
	}

	// Logging and recovery (always enabled)
	return middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.Logger(s.logger),
	)(handler)
}

// only rejects requests whose method is not method.
func only(method string, fn http.HandlerFunc) http.HandlerFunc {
	return onlyHandler(method, fn)
}

func onlyHandler(method string, next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			response.MethodNotAllowed(w, r.Method)
			return
		}
		next.ServeHTTP(w, r)
	}
}
