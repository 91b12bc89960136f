/*
Package monitoring provides Prometheus metrics for the bridge.

# Overview

Each Metrics value owns a private registry, so the HTTP surface can expose
it directly and tests can create as many collectors as they need without
tripping duplicate registration.

# Features

- HTTP request metrics keyed by route template (never by token value)
- Token issuance and denial counts
- Session upgrade outcomes and open session gauge
- Envelope counts per direction and action
- External tool run outcomes, durations and output line counts
- Update state, attempt outcomes and downloaded bytes

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
