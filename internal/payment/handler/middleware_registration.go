package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tair/course-payments/internal/payment/metrics"
	"github.com/tair/course-payments/pkg/auth"
)

// MiddlewareConfig holds middleware configuration
type MiddlewareConfig struct {
	EnableLogging bool
	EnableTracing bool
	EnableMetrics bool
	Validator     *auth.Validator
	WebhookToken  string
	Metrics       *metrics.Metrics
	RateLimiter   *RateLimiter
}

// DefaultMiddlewareConfig returns default middleware configuration
func DefaultMiddlewareConfig(validator *auth.Validator, webhookToken string, m *metrics.Metrics) MiddlewareConfig {
	return MiddlewareConfig{
		EnableLogging: true,
		EnableTracing: true,
		EnableMetrics: m != nil,
		Validator:     validator,
		WebhookToken:  webhookToken,
		Metrics:       m,
	}
}

// RegisterMiddlewares registers all middlewares to the router
func RegisterMiddlewares(router *mux.Router, config MiddlewareConfig) {
	// Logging middleware (first in chain)
	if config.EnableLogging {
		router.Use(LoggingMiddleware)
	}

	// Tracing middleware (second in chain)
	if config.EnableTracing {
		router.Use(func(next http.Handler) http.Handler {
			return TracingMiddleware("http-request", next)
		})
	}

	if config.EnableMetrics {
		router.Use(MetricsMiddleware(config.Metrics))
	}
}

// GetAuthMiddleware returns the session auth middleware
func (config MiddlewareConfig) GetAuthMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return AuthMiddleware(config.Validator)
}

// GetAdminMiddleware returns the admin middleware
func (config MiddlewareConfig) GetAdminMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return AdminMiddleware(config.Validator)
}

// GetRateLimitMiddleware returns the per-user limiter for money-moving routes
func (config MiddlewareConfig) GetRateLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return config.RateLimiter.Middleware()
}

// GetWebhookMiddleware returns the gateway webhook token check
func (config MiddlewareConfig) GetWebhookMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return WebhookMiddleware(config.WebhookToken)
}
