package auth

import (
	"errors"
	"net/http"
	"slices"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// RoleAdmin grants access to the console administration endpoints.
const RoleAdmin = "admin"

// Principal is the current user as seen by the console. The empty name is
// the anonymous user.
type Principal struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the principal was granted role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// Anonymous reports whether no user is known.
func (p Principal) Anonymous() bool {
	return p.Name == ""
}

// Resolver determines the principal of a browser request.
type Resolver interface {
	Resolve(r *http.Request) (Principal, error)
}

// AnonymousResolver resolves every request to the anonymous principal.
type AnonymousResolver struct{}

var _ Resolver = AnonymousResolver{}

func (AnonymousResolver) Resolve(*http.Request) (Principal, error) {
	return Principal{}, nil
}
