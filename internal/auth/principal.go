package auth

import (
	"strings"

	"github.com/kedevs/blogapi/types"
)

// Principal is the identity and privilege context of a single request.
// It is rebuilt for every request and never persisted.
type Principal struct {
	ID            int
	IsStaff       bool
	IsSuperuser   bool
	Authenticated bool
}

// Anonymous returns the principal used when a request carries no credentials.
func Anonymous() Principal {
	return Principal{}
}

// PrincipalFromUser derives a principal from the current state of a user.
func PrincipalFromUser(user types.User) Principal {
	return Principal{
		ID:            user.ID,
		IsStaff:       user.IsStaff,
		IsSuperuser:   user.IsSuperuser,
		Authenticated: true,
	}
}

func (p Principal) IsAuthenticated() bool {
	return p.Authenticated && p.ID > 0
}

// NormalizeEmail is the canonical form used to store and look up emails.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
