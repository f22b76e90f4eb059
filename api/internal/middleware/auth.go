package middleware

import (
	"net/http"
	"strings"

	"resource-planning-system/shared/authx"
	"resource-planning-system/shared/httpx"
)

// AuthMiddleware verifies OIDC bearer tokens. With no Verifier configured it
// passes requests through unauthenticated.
type AuthMiddleware struct {
	Verifier *authx.JWTVerifier
	Skip     func(*http.Request) bool
	// Roles, when set, lists the roles a caller needs at least one of.
	Roles []string
}

func (m AuthMiddleware) Wrap(next http.Handler) http.Handler {
	if m.Verifier == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token", nil)
			return
		}
		auth, err := m.Verifier.Verify(r.Context(), token)
		if err != nil {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token", nil)
			return
		}
		if len(m.Roles) > 0 && !auth.HasAnyRole(m.Roles...) {
			httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "missing required role", map[string]any{"roles": m.Roles})
			return
		}

		ctx := authx.WithAuth(r.Context(), auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("bearer "):])
	return token, token != ""
}
