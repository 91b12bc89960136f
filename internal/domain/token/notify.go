package token

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ControlBridge/internal/domain/confirm"
)

// EventKind classifies authority notifications.
type EventKind string

const (
	EventIssued       EventKind = "issued"
	EventDenied       EventKind = "denied"
	EventUnauthorized EventKind = "unauthorized"
)

// Event is one notification about an authorization decision.
type Event struct {
	Kind   EventKind
	Origin string
}

// Notifier surfaces authorization decisions to the local user. Notify must
// not block on the user.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Logger *zap.Logger
}

// Notify logs ev.
func (n LogNotifier) Notify(_ context.Context, ev Event) {
	n.Logger.Info("Authorization notice",
		zap.String("kind", string(ev.Kind)),
		zap.String("origin", confirm.DisplayOrigin(ev.Origin)),
	)
}
