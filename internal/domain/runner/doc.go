// Package runner spawns the external tool and turns its output into an
// ordered stream of line events.
//
// A Run delivers Line events as soon as they are read, followed by exactly
// one Exit event, after which the channel is closed. The context passed to
// Start bounds delivery only: once it is done the remaining output is read
// and discarded, and the process is left to finish on its own.
package runner
