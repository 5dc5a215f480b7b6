package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/warden-platform/warden-core/internal/domain/rbac"
)

// requestIDContextKey is the type for the request ID context key.
type requestIDContextKey struct{}

// loggerContextKey is the type for the enriched logger context key.
type loggerContextKey struct{}

// realIPContextKey is the type for the client IP context key.
type realIPContextKey struct{}

// RequestIDMiddleware extracts or generates a request ID and enriches the
// logger. The ID is echoed in the X-Request-ID response header so callers
// can correlate their logs with the core's.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enriched := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
			ctx = context.WithValue(ctx, loggerContextKey{}, enriched)

			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// RequestIDFromContext retrieves the request ID from context, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// RealIPMiddleware extracts the client's real IP address so the decision
// endpoint can stamp it as the threat-detection source when the request
// body names none. It checks X-Forwarded-For and X-Real-IP (for gateway
// deployments that proxy end-user traffic), falling back to r.RemoteAddr.
// Only the first IP in X-Forwarded-For is trusted to avoid spoofing.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractRealIP(r)
		ctx := context.WithValue(r.Context(), realIPContextKey{}, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RealIPFromContext retrieves the client IP stored by RealIPMiddleware.
func RealIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(realIPContextKey{}).(string)
	return ip
}

// extractRealIP extracts the client's real IP address from the request.
func extractRealIP(r *http.Request) string {
	// X-Forwarded-For: client, proxy1, proxy2 - trust only the first entry.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "host:port", extract host.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// guard wraps a read/ops handler with the bearer-key permission check: the
// presented key must validate and its owner's role must hold perm. Failed
// validation is answered uniformly so the endpoint does not reveal whether
// a key exists, is expired, or was revoked. Dev mode waives the guard.
func (s *Server) guard(perm rbac.Permission, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.devMode {
			next(w, r)
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			respondError(s.logger, w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		key, err := s.keys.Validate(r.Context(), raw)
		if err != nil {
			respondError(s.logger, w, http.StatusUnauthorized, "invalid credential")
			return
		}
		user, err := s.users.Get(r.Context(), key.UserID)
		if err != nil || !user.IsActive {
			respondError(s.logger, w, http.StatusUnauthorized, "invalid credential")
			return
		}

		allowed, err := s.access.Check(r.Context(), user.ID, perm)
		if err != nil {
			respondFault(s.logger, w, err)
			return
		}
		if !allowed {
			respondError(s.logger, w, http.StatusForbidden, "role "+user.RoleName+" lacks "+perm.Name())
			return
		}

		next(w, r)
	})
}

// bearerToken extracts the Bearer credential from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
