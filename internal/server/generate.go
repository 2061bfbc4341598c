// Package server provides the HTTP server of autonomy.
//
// The server is layered the same way as the rest of the CLI:
//
//   - Server: lifecycle of the poll loop, broadcaster and event log handles
//   - Config: listener, stream and cache settings with sensible defaults
//   - Router: route registration and middleware chain
//   - Handlers: REST handlers over the event log and the backfill job
//
// The architecture follows the pattern: CLI → App → Server → Router → Handlers
//
// Usage:
//
//	srv, err := server.New(app, server.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	srv.Start() // start the poll loop
//	defer srv.Shutdown(ctx)
//	http.ListenAndServe(":8080", srv.Handler())
package server

//go:generate gomarkdoc --output README.md .
