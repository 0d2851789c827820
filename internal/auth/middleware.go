package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Middleware authenticates bearer tokens and enforces the role policy.
type Middleware struct {
	secret []byte
	policy Policy
}

// NewMiddleware constructs the middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{secret: secret, policy: policy}
}

// Wrap applies authentication and role checks to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, known := m.policy.RequiredRole(r)
		if !known {
			deny(w, http.StatusNotFound, "not_found", "route not found")
			return
		}
		id, err := ParseToken(bearerToken(r), m.secret)
		if err != nil {
			deny(w, http.StatusUnauthorized, "unauthorized", "invalid or missing token")
			return
		}
		if !RoleAtLeast(id.Role, required) {
			deny(w, http.StatusForbidden, "forbidden", "forbidden")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id.Role, id.Subject)))
	})
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func deny(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}
