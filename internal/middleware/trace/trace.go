// Package trace tags each request with an id and logs its completion.
package trace

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	ledgerlog "ledgerlens/internal/log"
)

// HeaderRequestID carries the request id in and out.
const HeaderRequestID = "X-Request-ID"

// Middleware handles request tracing and logging
type Middleware struct {
	logger     *ledgerlog.Logger
	structured *ledgerlog.StructuredLogger
	extractIP  func(*http.Request) string
	metrics    Metrics
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests   int64
	TotalDurationUs int64
}

// AverageResponseTime returns the mean request duration.
func (m Metrics) AverageResponseTime() time.Duration {
	if m.TotalRequests == 0 {
		return 0
	}
	return time.Duration(m.TotalDurationUs/m.TotalRequests) * time.Microsecond
}

// NewMiddleware creates a new trace middleware
func NewMiddleware(logger *ledgerlog.Logger, extractIP func(*http.Request) string) *Middleware {
	if logger == nil {
		logger = ledgerlog.New(ledgerlog.Config{Component: ledgerlog.ComponentTrace})
	}
	return &Middleware{
		logger:     logger,
		structured: ledgerlog.NewStructuredLogger(logger),
		extractIP:  extractIP,
	}
}

// Middleware returns HTTP middleware for request tracing. An incoming
// X-Request-ID is reused when it looks sane.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := sanitizeRequestID(r.Header.Get(HeaderRequestID))
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), ledgerlog.RequestIDContextKey, requestID)
		ctx = ledgerlog.WithLogger(ctx, m.logger.With(ledgerlog.FieldRequestID, requestID))
		r = r.WithContext(ctx)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		atomic.AddInt64(&m.metrics.TotalRequests, 1)
		atomic.AddInt64(&m.metrics.TotalDurationUs, duration.Microseconds())

		m.structured.LogHTTPEnd(ctx, r, status, duration.Milliseconds(), clientIP)
	})
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	return "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	return ledgerlog.RequestIDFromContext(ctx)
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:   atomic.LoadInt64(&m.metrics.TotalRequests),
		TotalDurationUs: atomic.LoadInt64(&m.metrics.TotalDurationUs),
	}
}

func sanitizeRequestID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 64 {
		return ""
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return ""
		}
	}
	return id
}
