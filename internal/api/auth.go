package api

import (
	"net/http"
	"strings"

	"slotbook/internal/auth"
)

type Principal = auth.Principal

// getPrincipal extracts the caller identity.
//   - Authorization: Bearer uses the configured verifier (dev/hmac).
//   - In dev mode X-User-Id and X-Role headers are accepted as well.
//
// ok is false when a bearer token was sent but did not verify.
func (s *Server) getPrincipal(r *http.Request) (p *Principal, ok bool) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		pr, err := s.Auth.Verify(tok)
		if err != nil {
			return nil, false
		}
		return &pr, true
	}
	if s.Auth != nil && s.Auth.Mode == "dev" {
		if id := strings.TrimSpace(r.Header.Get("X-User-Id")); id != "" {
			role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role")))
			if role == "" {
				role = auth.RoleCustomer
			}
			return &Principal{Subject: id, Role: role}, true
		}
	}
	return nil, true
}

// caller returns the identity for customer endpoints, writing 401 when a
// token was invalid or when required and absent.
func (s *Server) caller(w http.ResponseWriter, r *http.Request, required bool) (*Principal, bool) {
	p, ok := s.getPrincipal(r)
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid bearer token", r.URL.Path)
		return nil, false
	}
	if p == nil && required {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "sign in required", r.URL.Path)
		return nil, false
	}
	return p, true
}

// requireAdmin wraps admin-only handlers.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.caller(w, r, true)
		if !ok {
			return
		}
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		next(w, r)
	}
}
