package auth

import (
	"net/http"
	"strings"
)

type routeRule struct {
	path   string
	prefix bool
	role   Role
}

func (r routeRule) matches(path string) bool {
	if r.prefix {
		return strings.HasPrefix(path, r.path)
	}
	return path == r.path
}

// Policy maps request paths to the minimum role they need. Rules are tried
// in order; account ownership is enforced by the ledger services.
type Policy struct {
	exempt map[string]struct{}
	rules  []routeRule
}

// NewDefaultPolicy builds the ledger API policy. exempt paths skip auth.
func NewDefaultPolicy(exempt ...string) Policy {
	set := make(map[string]struct{}, len(exempt))
	for _, path := range exempt {
		set[path] = struct{}{}
	}
	return Policy{
		exempt: set,
		rules: []routeRule{
			{path: "/admin/analytics/export.xlsx", role: RoleAdmin},
			{path: "/admin/", prefix: true, role: RoleStaff},
			{path: "/payments", role: RoleResident},
			{path: "/payments/", prefix: true, role: RoleResident},
			{path: "/bills/", prefix: true, role: RoleResident},
		},
	}
}

// IsExempt reports whether r skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	_, ok := p.exempt[r.URL.Path]
	return ok
}

// RequiredRole returns the minimum role for r. ok is false for paths the
// policy does not know, which are rejected.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	for _, rule := range p.rules {
		if rule.matches(r.URL.Path) {
			return rule.role, true
		}
	}
	return "", false
}
