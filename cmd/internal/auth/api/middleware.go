package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"eucl/cmd/identity"
	"eucl/cmd/internal/auth/session"
)

type claimsKey struct{}

// WithClaims returns ctx carrying verified access claims.
func WithClaims(ctx context.Context, c session.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims stored by RequireAuth.
func ClaimsFromContext(ctx context.Context) (session.AccessClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(session.AccessClaims)
	return c, ok
}

// RequireAuth rejects requests without a valid, unrevoked access
// credential and passes the claims to next via the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := h.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireRole is RequireAuth plus a check that the claims hold at least
// one of roles.
func (h *Handler) RequireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := h.authenticate(w, r)
			if !ok {
				return
			}
			if err := session.Authorize(claims, roles...); err != nil {
				writeAuthError(w, h.log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	// A missing or non-Bearer header authenticates as the empty token.
	token, _ := bearerToken(r)
	claims, err := h.sessions.Authenticate(r.Context(), h.now(), token)
	if err != nil {
		writeAuthError(w, h.log, err)
		return session.AccessClaims{}, false
	}
	return claims, true
}

// writeAuthError maps the session error taxonomy onto HTTP.
func writeAuthError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", `Bearer`)
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, session.ErrInvalidToken):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid token")
	case errors.Is(err, session.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
	default:
		log.Error("auth.authenticate.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
