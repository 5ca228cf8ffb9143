// HTTP middleware for security, logging, rate limiting and auth.
//
// DESIGN: Middleware chain (applied in order):
//  1. panicRecovery:     Catch panics, return 500, log stack trace
//  2. rateLimit:         Per-IP token bucket rate limiting (off when rate_limit is 0)
//  3. loggingMiddleware: Request ID, request/response logging, metrics
//  4. security:          Security headers and CORS
//
// requireToken is applied per route, so call-sync-without-token and the
// operational endpoints stay open.
package gateway

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askcos/prediction-gateway/internal/monitoring"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code before writing it.
func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush implements http.Flusher.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker so websocket upgrades pass through.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// rateLimiter implements a token bucket rate limiter per IP address.
type rateLimiter struct {
	requests   map[string]*bucket
	mu         sync.Mutex
	rate       int
	maxBuckets int
	done       chan struct{}
	once       sync.Once
}

// bucket holds rate limiting state for a single IP.
type bucket struct {
	tokens    int
	lastCheck time.Time
}

// newRateLimiter creates a new rate limiter with the specified rate per second.
func newRateLimiter(rate int) *rateLimiter {
	rl := &rateLimiter{
		requests:   make(map[string]*bucket),
		rate:       rate,
		maxBuckets: MaxRateLimitBuckets,
		done:       make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// allow checks if the given IP is allowed to make a request.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, exists := rl.requests[ip]
	if !exists {
		if len(rl.requests) >= rl.maxBuckets {
			rl.evictOldest()
		}
		rl.requests[ip] = &bucket{tokens: rl.rate - 1, lastCheck: now}
		return true
	}

	elapsed := now.Sub(b.lastCheck).Seconds()
	b.tokens += int(elapsed * float64(rl.rate))
	if b.tokens > rl.rate {
		b.tokens = rl.rate
	}
	b.lastCheck = now

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// evictOldest removes the oldest bucket (called with lock held).
func (rl *rateLimiter) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, b := range rl.requests {
		if first || b.lastCheck.Before(oldestTime) {
			oldestKey = k
			oldestTime = b.lastCheck
			first = false
		}
	}
	if oldestKey != "" {
		delete(rl.requests, oldestKey)
	}
}

// cleanup periodically removes stale buckets until stop is called.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-10 * time.Minute)
			for ip, b := range rl.requests {
				if b.lastCheck.Before(cutoff) {
					delete(rl.requests, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() { close(rl.done) })
}

// loggingMiddleware assigns the request ID, logs the request and records
// metrics labelled by the matched route pattern.
func (g *Gateway) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := monitoring.WithRequestIDContext(r.Context(), requestID)
		r = r.WithContext(ctx)

		bodySize := int(r.ContentLength)
		if bodySize < 0 {
			bodySize = 0
		}
		g.requestLogger.LogIncoming(monitoring.NewRequestInfo(r, requestID, bodySize))

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		latency := time.Since(start)
		g.requestLogger.LogResponse(&monitoring.ResponseInfo{
			RequestID:  requestID,
			StatusCode: wrapped.status,
			Latency:    latency,
		})

		// The mux stores the matched pattern on r.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		g.metrics.RecordRequest(route, wrapped.status, latency)
		g.alerts.FlagHighLatency(requestID, latency, r.URL.Path)

		g.logger.Info().
			Str("id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", latency).
			Msg("request")
	})
}

// panicRecovery middleware recovers from panics and returns a 500 error.
func (g *Gateway) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := string(debug.Stack())
				requestID := monitoring.RequestIDFromContext(r.Context())

				g.logger.Error().Interface("panic", err).Str("stack", stack).Msg("panic")
				g.alerts.FlagPanic(requestID, err, stack)

				g.writeError(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimit middleware enforces per-IP rate limiting.
func (g *Gateway) rateLimit(next http.Handler) http.Handler {
	if g.rateLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := g.getClientIP(r)
		if !g.rateLimiter.allow(ip) {
			g.logger.Warn().Str("ip", ip).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			g.writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// security middleware adds security headers and handles CORS.
func (g *Gateway) security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")

		origin := r.Header.Get("Origin")
		if origin != "" && g.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireToken rejects requests without a configured bearer token. With no
// tokens configured every request passes.
func (g *Gateway) requireToken(next http.Handler) http.Handler {
	if len(g.tokens) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !g.validToken(strings.TrimSpace(token)) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="prediction-gateway"`)
			g.writeError(w, "missing or invalid bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) validToken(token string) bool {
	if token == "" {
		return false
	}
	for known := range g.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

// isAllowedOrigin checks if origin is permitted for CORS. Localhost is
// always allowed; "*" in allowed_origins allows everything.
func (g *Gateway) isAllowedOrigin(origin string) bool {
	if _, ok := g.origins["*"]; ok {
		return true
	}
	if _, ok := g.origins[origin]; ok {
		return true
	}
	return strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1")
}

// getClientIP extracts the client IP address from the request.
// Trusts X-Forwarded-For and X-Real-IP headers only from localhost.
func (g *Gateway) getClientIP(r *http.Request) string {
	if remoteIP, _, _ := net.SplitHostPort(r.RemoteAddr); remoteIP == "127.0.0.1" || remoteIP == "::1" {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
