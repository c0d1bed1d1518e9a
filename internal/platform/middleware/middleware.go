// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package middleware provides the cross-cutting HTTP processing chain.

Every request passes through the same decorators before it reaches an
identity handler:

  - Trace: a correlation id shared by the response header and every log line.
  - Log: one structured line per request, including the resolved user id.
  - Guard: per-IP token buckets, with a tighter bucket on credential routes.
  - Safe: panic recovery answering with the generic 500 envelope.
  - Identify: bearer or cookie credentials resolved into [sec.AuthClaims].

Handlers therefore never parse headers for identity or worry about abuse.
*/
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/taibuivan/authapi/internal/platform/apperr"
	"github.com/taibuivan/authapi/internal/platform/constants"
	"github.com/taibuivan/authapi/internal/platform/ctxutil"
	"github.com/taibuivan/authapi/internal/platform/respond"
	"github.com/taibuivan/authapi/pkg/uuid"
)

// # Request Tracing

// RequestID keeps a client supplied X-Request-ID or mints a UUIDv7 one, and
// echoes it on the response.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			requestID := request.Header.Get(constants.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New()
			}

			writer.Header().Set(constants.HeaderXRequestID, requestID)
			next.ServeHTTP(writer, request.WithContext(ctxutil.WithRequestID(request.Context(), requestID)))
		})
	}
}

// # Activity Logging

// statusRecorder remembers the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (recorder *statusRecorder) WriteHeader(code int) {
	recorder.status = code
	recorder.ResponseWriter.WriteHeader(code)
}

// StructuredLogger injects a request scoped logger and writes one
// "http_request_finished" line per request.
//
// Authentication runs further down the chain and reports the caller through
// a probe stored in the context, so the line carries user_id and scheme.
func StructuredLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			startedAt := time.Now()

			requestLogger := logger.With(
				slog.String("request_id", ctxutil.GetRequestID(request.Context())),
				slog.String("method", request.Method),
				slog.String("path", request.URL.Path),
				slog.String("ip", RealIP(request)),
			)

			identity := &identityProbe{}
			ctx := withIdentityProbe(ctxutil.WithLogger(request.Context(), requestLogger), identity)
			recorder := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}

			next.ServeHTTP(recorder, request.WithContext(ctx))

			level := slog.LevelInfo
			switch {
			case recorder.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case recorder.status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}

			attributes := []any{
				slog.Int("status", recorder.status),
				slog.Int64("latency_ms", time.Since(startedAt).Milliseconds()),
				slog.String("user_agent", request.UserAgent()),
			}
			if identity.userID != "" {
				attributes = append(attributes,
					slog.String("user_id", identity.userID),
					slog.String("scheme", identity.scheme),
				)
			}

			requestLogger.Log(ctx, level, "http_request_finished", attributes...)
		})
	}
}

// identityProbe lets [Authenticate] report the resolved caller back to the logger.
type identityProbe struct {
	userID string
	scheme string
}

type identityProbeKey struct{}

func withIdentityProbe(ctx context.Context, probe *identityProbe) context.Context {
	return context.WithValue(ctx, identityProbeKey{}, probe)
}

func reportIdentity(ctx context.Context, userID, scheme string) {
	if probe, ok := ctx.Value(identityProbeKey{}).(*identityProbe); ok {
		probe.userID, probe.scheme = userID, scheme
	}
}

// # Rate Limiting

// ipRateLimiter holds one token bucket per client IP.
type ipRateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*ipBucket
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// take consumes a token for ip. When none is available it returns the wait
// until the next one.
func (limiter *ipRateLimiter) take(ip string, now time.Time) (bool, time.Duration) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	bucket, found := limiter.buckets[ip]
	if !found {
		bucket = &ipBucket{limiter: rate.NewLimiter(limiter.limit, limiter.burst)}
		limiter.buckets[ip] = bucket
	}
	bucket.lastSeen = now

	reservation := bucket.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Second
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// sweep forgets buckets idle for longer than ttl.
func (limiter *ipRateLimiter) sweep(now time.Time, ttl time.Duration) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	for ip, bucket := range limiter.buckets {
		if now.Sub(bucket.lastSeen) > ttl {
			delete(limiter.buckets, ip)
		}
	}
}

// RateLimit limits requests per client IP with a token bucket.
//
// Rejected requests get 429 RATE_LIMITED and a Retry-After header rounded up
// to whole seconds. Idle buckets are swept until context is cancelled.
func RateLimit(context context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	limiter := &ipRateLimiter{
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		buckets: make(map[string]*ipBucket),
	}

	go func() {
		ticker := time.NewTicker(constants.RateLimitCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case now := <-ticker.C:
				limiter.sweep(now, constants.RateLimitClientTTL)
			case <-context.Done():
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			allowed, wait := limiter.take(RealIP(request), time.Now())
			if !allowed {
				retryAfter := max(1, int(math.Ceil(wait.Seconds())))
				writer.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				respond.Error(writer, request, apperr.RateLimited(retryAfter))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// # Reliability & Safety

// PanicRecovery turns a panicking handler into the generic 500 envelope and
// logs the stack.
func PanicRecovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}

				stack := make([]byte, 4096)
				stack = stack[:runtime.Stack(stack, false)]

				ctx := request.Context()
				logger.ErrorContext(ctx, "panic_recovered",
					slog.String("request_id", ctxutil.GetRequestID(ctx)),
					slog.Any("error", recovered),
					slog.String("stack", string(stack)),
				)

				respond.Error(writer, request, apperr.Internal(fmt.Errorf("panic: %v", recovered)))
			}()

			next.ServeHTTP(writer, request)
		})
	}
}

// # Cross-Origin Resource Sharing

// AppConfig defines the behavior needed by the CORS middleware.
type AppConfig interface {
	IsDevelopment() bool
	AllowedOrigins() []string
}

var corsHeaders = map[string]string{
	"Access-Control-Allow-Methods":     "GET, POST, OPTIONS",
	"Access-Control-Allow-Headers":     "Accept, Content-Type, Content-Length, Authorization, X-Request-ID",
	"Access-Control-Expose-Headers":    "Content-Length, X-Request-ID, Retry-After",
	"Access-Control-Allow-Credentials": "true",
	"Access-Control-Max-Age":           "300",
}

// CORS echoes allowed origins so that browsers may send the session cookie.
//
// Development accepts any origin. Otherwise only the configured origins are
// echoed back; credentialed requests never see a wildcard.
func CORS(cfg AppConfig) func(http.Handler) http.Handler {
	origins := cfg.AllowedOrigins()
	development := cfg.IsDevelopment()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			origin := request.Header.Get(constants.HeaderOrigin)
			if origin == "" {
				next.ServeHTTP(writer, request)
				return
			}

			header := writer.Header()
			header.Add("Vary", constants.HeaderOrigin)
			if development || slices.Contains(origins, origin) {
				header.Set("Access-Control-Allow-Origin", origin)
				for name, value := range corsHeaders {
					header.Set(name, value)
				}
			}

			// Pre-flight
			if request.Method == http.MethodOptions {
				writer.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// # Middleware Helpers

// RealIP returns the host part of the connection address.
//
// Forwarding headers are ignored here. Behind a trusted proxy the router runs
// chimw.RealIP first, which rewrites RemoteAddr from those headers.
func RealIP(request *http.Request) string {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return host
}
