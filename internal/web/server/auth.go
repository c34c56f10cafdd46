package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fennec-api/fennec/internal/auth"
)

type claimsKey struct{}

// ClaimsFrom returns the validated token claims stored on the request
// context by the bearer-auth middleware.
func ClaimsFrom(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(jwt.MapClaims)
	return claims, ok
}

// BearerAuth builds middleware that rejects requests without a valid bearer
// token. Paths in skip stay open (health checks, login endpoints).
func BearerAuth(svc *auth.Service, skip ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(skip))
	for _, p := range skip {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				respond(w, http.StatusUnauthorized, "missing bearer token", []map[string]any{}, nil)
				return
			}

			claims, err := svc.ValidateToken(token)
			if err != nil {
				respond(w, http.StatusUnauthorized, "invalid or expired token", []map[string]any{}, nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// UseAuth guards every route behind bearer-token validation. Must run before
// resources are mounted.
func (s *Server) UseAuth(svc *auth.Service, skip ...string) {
	s.router.Use(BearerAuth(svc, skip...))
}
