// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"yatra.is/crowdwatch/internal/config"
	"yatra.is/crowdwatch/internal/metrics"
	"yatra.is/crowdwatch/internal/ratelimit"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Implement http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Implement http.Hijacker for websocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("hijack not supported")
}

// loggingMiddleware logs all API requests and records request metrics.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		if r.URL.Path == "/metrics" {
			return
		}

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())

		switch {
		case wrapped.statusCode >= 500:
			s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path,
				"status", wrapped.statusCode, "duration", duration.Round(time.Millisecond))
		case wrapped.statusCode >= 400:
			s.logger.Warn("Request rejected", "method", r.Method, "path", r.URL.Path,
				"status", wrapped.statusCode, "duration", duration.Round(time.Millisecond))
		default:
			s.logger.Info("Request", "method", r.Method, "path", r.URL.Path,
				"status", wrapped.statusCode, "duration", duration.Round(time.Millisecond))
		}
	})
}

// maxBodyMiddleware limits request body size to prevent memory exhaustion.
func (s *Server) maxBodyMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				WriteError(w, http.StatusRequestEntityTooLarge, "Request entity too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit applies the fixed-window limiter keyed by client IP and always
// sets the X-RateLimit-* headers.
func (s *Server) rateLimit(limiter *ratelimit.Limiter, surface string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := limiter.Check(ratelimit.ClientIP(r))
		ratelimit.SetHeaders(w, res)
		if !res.Allowed {
			metrics.RateLimitedTotal.WithLabelValues(surface).Inc()
			WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// permissionRank orders the API key capabilities: admin covers
// configure_thresholds covers view_only.
var permissionRank = map[string]int{
	config.PermViewOnly:            1,
	config.PermConfigureThresholds: 2,
	config.PermAdmin:               3,
}

// require checks for an API key with sufficient permission. Auth can be
// switched off entirely for local development via the server config.
func (s *Server) require(perm string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.RequireAuthEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		keyStr := extractAPIKey(r)
		if keyStr == "" {
			WriteError(w, http.StatusUnauthorized, "authentication required (api key)")
			return
		}

		key := s.lookupKey(keyStr)
		if key == nil {
			s.logger.Warn("Auth failed: invalid api key", "remote", ratelimit.ClientIP(r))
			WriteError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		if !keyHasPermission(key, perm) {
			WriteError(w, http.StatusForbidden, fmt.Sprintf("api key permission denied: %s required", perm))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractAPIKey reads the key from Authorization (Bearer or ApiKey scheme)
// or the X-API-Key header. SSE clients can't set headers from EventSource,
// so the api_key query parameter is accepted as a fallback.
func extractAPIKey(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if strings.HasPrefix(authHeader, "ApiKey ") {
		return strings.TrimPrefix(authHeader, "ApiKey ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

func (s *Server) lookupKey(keyStr string) *config.APIKey {
	for i := range s.cfg.APIKeys {
		if s.cfg.APIKeys[i].Key == keyStr {
			return &s.cfg.APIKeys[i]
		}
	}
	return nil
}

func keyHasPermission(key *config.APIKey, perm string) bool {
	need := permissionRank[perm]
	for _, p := range key.Permissions {
		if permissionRank[p] >= need {
			return true
		}
	}
	return false
}
