package types

import "time"

// User represents an account in the system.
// Email is the login identifier; username is the public display handle.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique public name shown as a post's author.
	Username string `json:"username" db:"username"`

	// Email is the unique, normalized (trimmed, lower-cased) login address.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsActive reports whether the account may log in.
	IsActive bool `json:"is_active" db:"is_active"`

	// IsStaff grants override authority over other users' posts.
	IsStaff bool `json:"is_staff" db:"is_staff"`

	// IsSuperuser marks administrative accounts created from the CLI.
	IsSuperuser bool `json:"is_superuser" db:"is_superuser"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
