package domain

import "time"

// Roles allowed to manage invites and inspect sync state.
const (
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

// Principal is the authenticated caller extracted from a bearer token.
type Principal struct {
	UserID string
	Email  string
	Roles  []string
}

// HasAnyRole reports whether the principal holds at least one of roles.
func (p *Principal) HasAnyRole(roles ...string) bool {
	for _, have := range p.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// TokenIssuer issues tokens (e.g. JWT) for an authenticated user.
type TokenIssuer interface {
	Issue(userID, email string, roles []string, expiry time.Duration) (string, error)
}

// TokenVerifier verifies a bearer token and returns the principal it was issued to.
type TokenVerifier interface {
	Verify(token string) (*Principal, error)
}
