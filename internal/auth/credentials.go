package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/kedevs/blogapi/internal/store"
	"github.com/kedevs/blogapi/types"
)

// UserLookup is the read side of the user store needed for authentication.
type UserLookup interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
}

// CredentialVerifier checks email and password pairs against the user store.
type CredentialVerifier struct {
	users     UserLookup
	hasher    PasswordHasher
	dummyHash string
}

func NewCredentialVerifier(users UserLookup, hasher PasswordHasher) *CredentialVerifier {
	// Compared against when the email is unknown so that path still pays
	// for a hash comparison.
	dummyHash, _ := hasher.Hash("blogapi-placeholder-password")
	return &CredentialVerifier{
		users:     users,
		hasher:    hasher,
		dummyHash: dummyHash,
	}
}

// Verify returns the principal for a valid email and password.
// Unknown email, inactive account and wrong password all return
// ErrInvalidCredentials.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (Principal, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return Principal{}, ErrInvalidCredentials
	}

	user, err := v.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = v.hasher.Compare(v.dummyHash, password)
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := v.hasher.Compare(user.PasswordHash, password); err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return Principal{}, ErrInvalidCredentials
	}

	return PrincipalFromUser(user), nil
}
