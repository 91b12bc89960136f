package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsolated(t *testing.T) {
	// Two collectors must not collide on registration
	m1 := NewMetrics()
	m2 := NewMetrics()

	m1.RecordToken("issued")
	assert.Equal(t, 1.0, testutil.ToFloat64(m1.TokenRequests.WithLabelValues("issued")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m2.TokenRequests.WithLabelValues("issued")))
}

func TestSetUpdateState(t *testing.T) {
	m := NewMetrics()
	known := []string{"no-update", "prechecking", "downloading", "done"}

	m.SetUpdateState("downloading", known)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpdateState.WithLabelValues("downloading")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.UpdateState.WithLabelValues("no-update")))

	m.SetUpdateState("done", known)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.UpdateState.WithLabelValues("downloading")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpdateState.WithLabelValues("done")))
}

func TestSessionGauge(t *testing.T) {
	m := NewMetrics()

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.PATCH("/windows/:handle", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/windows/1234", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("PATCH", "/windows/:handle", "200")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bridge_http_requests_total")
	assert.Contains(t, w.Body.String(), "bridge_uptime_seconds")
}
