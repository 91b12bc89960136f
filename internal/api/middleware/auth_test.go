package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeTokens struct {
	live map[string]bool

	mu       sync.Mutex
	reported []string
}

func (f *fakeTokens) IsValid(value string) bool { return f.live[value] }

func (f *fakeTokens) ReportUnauthorized(_ context.Context, origin string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reported = append(f.reported, origin)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"abc", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, BearerToken(tt.header))
		})
	}
}

func TestRequireToken(t *testing.T) {
	tokens := &fakeTokens{live: map[string]bool{"live-token": true}}

	router := setupTestRouter()
	router.GET("/windows", RequireToken(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	tests := []struct {
		name       string
		auth       string
		tunnelled  bool
		wantStatus int
	}{
		{"no token", "", false, http.StatusUnauthorized},
		{"unknown token", "Bearer forged", false, http.StatusUnauthorized},
		{"token without scheme", "live-token", false, http.StatusUnauthorized},
		{"live token", "Bearer live-token", false, http.StatusOK},
		{"tunnelled", "", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/windows", nil)
			req.Header.Set("Origin", "https://evil.example")
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			if tt.tunnelled {
				req = req.WithContext(WithTunnel(req.Context()))
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}

	assert.Equal(t, []string{"https://evil.example", "https://evil.example", "https://evil.example"}, tokens.reported)
}

func TestTunnelled(t *testing.T) {
	assert.False(t, Tunnelled(context.Background()))
	assert.True(t, Tunnelled(WithTunnel(context.Background())))
}
