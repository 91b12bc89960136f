// Package http provides the gateway's request/response endpoints.
//
// Routes:
//
//	GET   /                 service name and version
//	GET   /health           liveness plus session, token and update summary
//	POST  /token            ask the local user to approve the Origin; 202 or 401
//	GET   /windows          list activatable windows
//	PATCH /windows/:handle  bring a window to the foreground
//	GET   /update           update state; 202 while a cycle runs
//	POST  /update           start an update cycle; 201 or 409
//	GET   /tool-metadata    the tool's metadata file, or {}
//
// Routes after POST /token require "Authorization: Bearer <token>" with a
// token it issued. Every route is also reachable through an upgraded
// channel, where the multiplexer replays envelopes against the same engine
// without a bearer header.
package http
