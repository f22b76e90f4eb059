package middleware

import (
	"net/http"

	"resource-planning-system/shared/httpx"
)

// RequireDependency rejects requests with 503 while a backing store the
// routes need is not configured. Ready is evaluated per request.
type RequireDependency struct {
	Name  string
	Ready func() bool
	Skip  func(*http.Request) bool
}

func (m RequireDependency) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		if m.Ready == nil || !m.Ready() {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", m.Name+" not configured", map[string]any{"dependency": m.Name})
			return
		}
		next.ServeHTTP(w, r)
	})
}
