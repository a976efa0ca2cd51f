package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/service"
)

// SessionResolver turns a bearer token into a Principal.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (service.Principal, error)
}

// Auth rejects requests without a valid session and attaches the Principal.
func Auth(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "Authentication required")
				return
			}

			p, err := resolver.ResolveSession(r.Context(), token)
			if err != nil {
				if appErr, ok := apperr.As(err); ok {
					writeError(w, appErr.Kind.HTTPStatus(), appErr.Code, appErr.Message)
					return
				}
				log.Ctx(r.Context()).Error().Err(err).Msg("session resolution failed")
				writeError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithPrincipal(r.Context(), p)))
		})
	}
}

// OptionalAuth attaches the Principal when the token resolves and stays anonymous otherwise.
func OptionalAuth(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				if p, err := resolver.ResolveSession(r.Context(), token); err == nil {
					r = r.WithContext(service.WithPrincipal(r.Context(), p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCapability answers 403 unless the Principal holds c.
func RequireCapability(c service.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := service.Require(service.PrincipalFrom(r.Context()), c); err != nil {
				appErr, _ := apperr.As(err)
				writeError(w, appErr.Kind.HTTPStatus(), appErr.Code, appErr.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
