// Package token implements the capability token authority.
//
// Tokens are minted only after the local user approves the requesting origin
// through a confirm.Confirmer. The live set is process-local: tokens are never
// persisted and never individually revoked, so membership is the only
// validity rule.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ControlBridge/internal/domain/confirm"
)

// ErrDenied is returned when the user declines or cannot be asked.
var ErrDenied = errors.New("token request denied")

// Token is a capability granting access to an upgraded session.
type Token struct {
	Value     string    `json:"token"`
	Origin    string    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

// Authority owns the live token set.
type Authority struct {
	confirmer confirm.Confirmer
	notifier  Notifier
	logger    *zap.Logger
	newValue  func() string
	now       func() time.Time

	mu   sync.RWMutex
	live map[string]Token
}

// Option customizes an Authority.
type Option func(*Authority)

// WithNotifier reports issuance, denial and rejected channel attempts.
func WithNotifier(n Notifier) Option {
	return func(a *Authority) { a.notifier = n }
}

// WithGenerator replaces the token value generator.
func WithGenerator(gen func() string) Option {
	return func(a *Authority) { a.newValue = gen }
}

// NewAuthority creates an authority with an empty live set.
func NewAuthority(confirmer confirm.Confirmer, logger *zap.Logger, opts ...Option) *Authority {
	a := &Authority{
		confirmer: confirmer,
		notifier:  nopNotifier{},
		logger:    logger,
		newValue:  func() string { return uuid.NewString() },
		now:       time.Now,
		live:      make(map[string]Token),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RequestToken asks the user to approve origin and mints a token on approval.
// The call blocks for the duration of the prompt; ctx bounds it.
func (a *Authority) RequestToken(ctx context.Context, origin string) (Token, error) {
	log := a.logger.With(zap.String("origin", origin))

	ok, err := a.confirmer.Confirm(ctx, confirm.Request{Origin: origin})
	if err != nil {
		log.Warn("Confirmation unavailable, denying token request", zap.Error(err))
		a.notifier.Notify(ctx, Event{Kind: EventDenied, Origin: origin})
		return Token{}, fmt.Errorf("%w: %w", ErrDenied, err)
	}
	if !ok {
		log.Info("Token request declined by user")
		a.notifier.Notify(ctx, Event{Kind: EventDenied, Origin: origin})
		return Token{}, ErrDenied
	}

	tok := a.mint(origin)
	log.Info("Token issued")
	a.notifier.Notify(ctx, Event{Kind: EventIssued, Origin: origin})
	return tok, nil
}

func (a *Authority) mint(origin string) Token {
	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		value := a.newValue()
		if _, exists := a.live[value]; exists || value == "" {
			continue
		}
		tok := Token{Value: value, Origin: origin, CreatedAt: a.now()}
		a.live[value] = tok
		return tok
	}
}

// IsValid reports whether value is in the live set.
func (a *Authority) IsValid(value string) bool {
	_, ok := a.Lookup(value)
	return ok
}

// Lookup returns the live token for value.
func (a *Authority) Lookup(value string) (Token, bool) {
	if value == "" {
		return Token{}, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	tok, ok := a.live[value]
	return tok, ok
}

// Len returns the number of live tokens.
func (a *Authority) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.live)
}

// ReportUnauthorized tells the notifier a channel was refused.
func (a *Authority) ReportUnauthorized(ctx context.Context, origin string) {
	a.notifier.Notify(ctx, Event{Kind: EventUnauthorized, Origin: origin})
}
