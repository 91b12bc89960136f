// Package main is the entry point for the control bridge.
//
// The bridge lets a web page on the same machine drive a local command-line
// tool. A page asks for a token, the user confirms it at the terminal, and the
// page then opens a multiplexed channel to run the tool and call the REST
// routes.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Listen on the default loopback port, confirming tokens at the terminal
//	./server --tool ./scanner.exe
//
//	# Development mode (colored logs, debug level)
//	./server --dev --prompt approve
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
