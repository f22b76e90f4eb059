package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"resource-planning-system/shared/httpx"
)

var (
	defaultCORSHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	// Clients read these to correlate failures and back off after 429s.
	exposedCORSHeaders = []string{"X-Request-ID", "Retry-After"}
	routeMethods       = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
)

// CORSMiddleware serves browser dashboards. Preflights are answered from the
// routes themselves: Methods reports what a path accepts, and a preflight
// for any other method, origin or header is refused with an error envelope.
type CORSMiddleware struct {
	AllowedOrigins   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
	// Methods lists the methods served at path. Nil allows GET and POST.
	Methods func(path string) []string
	Skip    func(*http.Request) bool
}

func (m CORSMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		origin := strings.TrimSpace(r.Header.Get("Origin"))
		requested := strings.ToUpper(strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")))
		if r.Method == http.MethodOptions && origin != "" && requested != "" {
			m.preflight(w, r, origin, requested)
			return
		}

		if allowed := m.allowOrigin(origin); allowed != "" {
			m.stampOrigin(w, allowed)
			w.Header().Set("Access-Control-Expose-Headers", strings.Join(exposedCORSHeaders, ", "))
		}
		next.ServeHTTP(w, r)
	})
}

func (m CORSMiddleware) preflight(w http.ResponseWriter, r *http.Request, origin string, requested string) {
	w.Header().Add("Vary", "Origin")
	w.Header().Add("Vary", "Access-Control-Request-Method")
	w.Header().Add("Vary", "Access-Control-Request-Headers")

	allowed := m.allowOrigin(origin)
	if allowed == "" {
		httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "origin not allowed", map[string]any{"origin": origin})
		return
	}

	methods := m.methodsFor(r.URL.Path)
	if len(methods) == 0 {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
		return
	}
	if !containsFold(methods, requested) {
		httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "method not allowed for cross-origin requests",
			map[string]any{"method": requested, "allowed": methods})
		return
	}

	headers := m.allowedHeaders()
	for _, h := range splitHeaderList(r.Header.Get("Access-Control-Request-Headers")) {
		if !containsFold(headers, h) {
			httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "header not allowed for cross-origin requests",
				map[string]any{"header": h})
			return
		}
	}

	m.stampOrigin(w, allowed)
	w.Header().Set("Access-Control-Allow-Methods", strings.Join(methods, ", ")+", "+http.MethodOptions)
	w.Header().Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
	if m.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(m.MaxAge/time.Second)))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m CORSMiddleware) stampOrigin(w http.ResponseWriter, allowed string) {
	w.Header().Set("Access-Control-Allow-Origin", allowed)
	if allowed != "*" {
		w.Header().Add("Vary", "Origin")
	}
	if m.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
}

// allowOrigin returns the value for Access-Control-Allow-Origin, or "" when
// origin may not call the API. Credentials never pair with "*".
func (m CORSMiddleware) allowOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	wildcard := len(m.AllowedOrigins) == 0
	for _, allowed := range m.AllowedOrigins {
		allowed = strings.TrimRight(strings.TrimSpace(allowed), "/")
		if allowed == "*" {
			wildcard = true
			break
		}
		if allowed != "" && strings.EqualFold(allowed, strings.TrimRight(origin, "/")) {
			return origin
		}
	}
	switch {
	case !wildcard:
		return ""
	case m.AllowCredentials:
		return origin
	default:
		return "*"
	}
}

func (m CORSMiddleware) methodsFor(path string) []string {
	if m.Methods == nil {
		return []string{http.MethodGet, http.MethodPost}
	}
	return m.Methods(path)
}

func (m CORSMiddleware) allowedHeaders() []string {
	if len(m.AllowedHeaders) > 0 {
		return m.AllowedHeaders
	}
	return defaultCORSHeaders
}

// MuxMethods reports the methods mux has a route for at a path, by asking
// the mux to match each one.
func MuxMethods(mux *http.ServeMux) func(path string) []string {
	return func(path string) []string {
		var out []string
		for _, method := range routeMethods {
			req, err := http.NewRequest(method, path, nil)
			if err != nil {
				return nil
			}
			if _, pattern := mux.Handler(req); pattern != "" {
				out = append(out, method)
			}
		}
		return out
	}
}

func splitHeaderList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), want) {
			return true
		}
	}
	return false
}
