// metrics.go — Prometheus HTTP метрики Request Desk.
// Регистрирует метрики: rd_http_requests_total, rd_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rd_http_requests_total",
			Help: "Общее количество HTTP-запросов к Request Desk",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rd_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Request Desk в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет id заявки на {id}, чтобы число лейблов не росло.
// Неизвестные пути сводятся к "other".
// /api/requests/a1b2c3d4-.../reply → /api/requests/{id}/reply
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/auth/login", "/api/auth/logout", "/api/auth/me",
		"/api/requests":
		return path
	}

	const prefix = "/api/requests/"
	if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" {
		id, suffix, _ := strings.Cut(rest, "/")
		if id == "" {
			return "other"
		}
		switch suffix {
		case "":
			return prefix + "{id}"
		case "reply":
			return prefix + "{id}/reply"
		}
	}
	return "other"
}
