// Package middleware provides the gin middleware shared by the plain request
// surface and tunnelled invokes: permissive CORS and per-IP token buckets.
//
// Token requests get their own, much stricter bucket so a hostile page cannot
// flood the local user with confirmation prompts.
package middleware
