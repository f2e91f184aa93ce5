package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prmjagdish/schedula/internal/auth"
	"github.com/prmjagdish/schedula/internal/booking"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware attaches a request-scoped zerolog logger to the context
// and logs one line per request once the handler returns.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		logger := log.With().
			Str("request_id", GetRequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		ctx := logger.WithContext(r.Context())

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		var ev *zerolog.Event
		switch {
		case wrapped.statusCode >= 500:
			ev = logger.Error()
		case wrapped.statusCode >= 400:
			ev = logger.Warn()
		default:
			ev = logger.Info()
		}
		ev.Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Authenticate verifies the bearer token and stores the caller on the
// context. Unauthenticated requests never reach a handler.
func Authenticate(tokens *auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			principal, err := tokens.Verify(raw)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("rejected bearer token")
				writeError(w, http.StatusUnauthorized, "invalid_token", auth.ErrInvalidToken.Error())
				return
			}

			logger := zerolog.Ctx(r.Context()).With().
				Str("user_id", principal.UserID.String()).
				Str("role", string(principal.Role)).
				Logger()
			ctx := auth.WithPrincipal(logger.WithContext(r.Context()), principal)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability rejects callers whose role lacks the capability picked
// by allowed.
func RequireCapability(allowed func(auth.Capabilities) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFrom(r.Context())
			if !ok || !allowed(auth.CapabilitiesFor(principal.Role)) {
				handleError(w, r, booking.ErrForbiddenRole)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func canBookAsPatient(c auth.Capabilities) bool       { return c.CanBookAsPatient }
func canManageSlotsAsDoctor(c auth.Capabilities) bool { return c.CanManageSlotsAsDoctor }

func mustPrincipal(r *http.Request) auth.Principal {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		panic(errors.New("handler mounted without Authenticate middleware"))
	}
	return p
}
