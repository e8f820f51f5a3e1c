package auth

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, inactive account and wrong
	// password alike so callers cannot tell which one occurred.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrTokenExpired    = errors.New("token expired")
	ErrTokenInvalid    = errors.New("invalid token")
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("permission denied")
)
