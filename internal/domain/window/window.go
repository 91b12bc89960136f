// Package window lists and activates top-level desktop windows.
package window

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnsupported is returned where the platform cannot activate windows.
	ErrUnsupported = errors.New("window control not supported on this platform")
	// ErrNotFound is returned when a handle does not name a live window.
	ErrNotFound = errors.New("window not found")
)

// Windows smaller than this in either dimension are not listed.
const minSize = 10

// Info describes one top-level window.
type Info struct {
	ClassName string `json:"class_name"`
	Title     string `json:"title"`
	Handle    uint64 `json:"handle"`
	X         int32  `json:"x"`
	Y         int32  `json:"y"`
	Width     int32  `json:"width"`
	Height    int32  `json:"height"`
}

// listable reports whether a visible window should be offered to callers.
func (i Info) listable() bool {
	return i.Title != "" && i.Width > minSize && i.Height > minSize
}

// Controller enumerates and activates windows.
type Controller interface {
	List(ctx context.Context) ([]Info, error)
	Activate(ctx context.Context, handle uint64) error
}

// Static is an in-memory controller. Activations are recorded in order.
type Static struct {
	Windows []Info

	mu        sync.Mutex
	activated []uint64
}

// NewStatic creates a controller serving windows.
func NewStatic(windows ...Info) *Static {
	return &Static{Windows: windows}
}

// List returns the listable windows.
func (s *Static) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(s.Windows))
	for _, w := range s.Windows {
		if w.listable() {
			out = append(out, w)
		}
	}
	return out, nil
}

// Activate records handle if it names a known window.
func (s *Static) Activate(ctx context.Context, handle uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, w := range s.Windows {
		if w.Handle == handle {
			s.mu.Lock()
			s.activated = append(s.activated, handle)
			s.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrNotFound, handle)
}

// Activated returns the handles activated so far.
func (s *Static) Activated() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.activated...)
}
