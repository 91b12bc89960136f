// Package server assembles the control bridge.
//
// NewServer wires the components behind one gin engine:
//   - token authority with the confirmer chosen by the prompt mode
//   - window controller for the current platform
//   - update coordinator over the release feed, downloader and record
//   - channel multiplexer, tunnelling invokes back into the same engine
//   - prometheus metrics on a private registry, served at /metrics
//
// Middleware runs in order: recovery, request metrics, CORS, the global
// per-client rate limit, and a stricter per-minute limit on POST /token.
// Routes other than the root, health, token request, channel upgrade and
// metrics also require a bearer token.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
