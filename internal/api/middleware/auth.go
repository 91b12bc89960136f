package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenValidator checks bearer tokens against the live set.
type TokenValidator interface {
	IsValid(value string) bool
	ReportUnauthorized(ctx context.Context, origin string)
}

type tunnelKey struct{}

// WithTunnel marks ctx as carrying a request replayed from an authorized
// channel. Only in-process callers can set it.
func WithTunnel(ctx context.Context) context.Context {
	return context.WithValue(ctx, tunnelKey{}, true)
}

// Tunnelled reports whether ctx was marked by WithTunnel.
func Tunnelled(ctx context.Context) bool {
	v, _ := ctx.Value(tunnelKey{}).(bool)
	return v
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) string {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

// RequireToken rejects requests that neither carry a live bearer token nor
// arrive through an authorized channel.
func RequireToken(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Tunnelled(c.Request.Context()) || tokens.IsValid(BearerToken(c.GetHeader("Authorization"))) {
			c.Next()
			return
		}

		tokens.ReportUnauthorized(c.Request.Context(), c.GetHeader("Origin"))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
	}
}
