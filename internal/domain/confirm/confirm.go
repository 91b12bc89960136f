// Package confirm owns the out-of-band confirmation channel used before any
// capability token is minted.
//
// A Confirmer asks the interactive local user whether a requesting origin may
// be trusted. Confirmers block for as long as the user takes to answer, so
// callers always pass a context scoped to the single request being
// authorized.
package confirm

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/charmbracelet/x/ansi"
)

// ErrClosed is returned once the confirmation input is gone (EOF or shutdown).
var ErrClosed = errors.New("confirmation channel closed")

// Request describes what the user is asked to approve.
type Request struct {
	Origin string
}

// Confirmer asks the local user to approve a request.
type Confirmer interface {
	Confirm(ctx context.Context, req Request) (bool, error)
}

// Func adapts a plain function to Confirmer.
type Func func(ctx context.Context, req Request) (bool, error)

// Confirm calls f.
func (f Func) Confirm(ctx context.Context, req Request) (bool, error) {
	return f(ctx, req)
}

// Static answers every request the same way without asking anyone.
type Static struct {
	Approve bool
}

// Confirm returns the fixed answer.
func (s Static) Confirm(ctx context.Context, _ Request) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.Approve, nil
}

// DisplayOrigin makes an attacker-supplied origin safe to print on a terminal:
// escape sequences and control characters are removed so a page cannot
// repaint or hide the prompt.
func DisplayOrigin(origin string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, ansi.Strip(origin))
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return "(unknown origin)"
	}
	return clean
}
