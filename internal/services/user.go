package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kedevs/blogapi/internal/auth"
	"github.com/kedevs/blogapi/types"
)

const maxUsernameLength = 150

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateFlags(ctx context.Context, user types.User) (types.User, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo   UserRepository
	hasher auth.PasswordHasher
}

func NewUserService(repo UserRepository, hasher auth.PasswordHasher) *UserService {
	return &UserService{repo: repo, hasher: hasher}
}

// RegisterInput is the allow-listed registration payload. Privilege flags
// are deliberately absent.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates a regular, active, non-privileged user.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	return s.create(ctx, in, false, false)
}

// CreateSuperuser creates a user with both staff and superuser set.
func (s *UserService) CreateSuperuser(ctx context.Context, in RegisterInput) (types.User, error) {
	return s.create(ctx, in, true, true)
}

// CreateStaff creates a staff user without superuser rights.
func (s *UserService) CreateStaff(ctx context.Context, in RegisterInput) (types.User, error) {
	return s.create(ctx, in, true, false)
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, auth.NormalizeEmail(email))
}

// SetStaff grants or revokes staff status. It takes effect on the user's
// next request since tokens never carry privilege flags.
func (s *UserService) SetStaff(ctx context.Context, email string, staff bool) (types.User, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		return types.User{}, err
	}
	user.IsStaff = staff
	return s.repo.UpdateFlags(ctx, user)
}

// SetActive enables or disables login for a user. Deactivated users'
// outstanding tokens stop verifying immediately.
func (s *UserService) SetActive(ctx context.Context, email string, active bool) (types.User, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		return types.User{}, err
	}
	user.IsActive = active
	return s.repo.UpdateFlags(ctx, user)
}

func (s *UserService) create(ctx context.Context, in RegisterInput, staff, superuser bool) (types.User, error) {
	username := strings.TrimSpace(in.Username)
	email := auth.NormalizeEmail(in.Email)

	if err := validateEmail(email); err != nil {
		return types.User{}, err
	}
	if err := validateUsername(username); err != nil {
		return types.User{}, err
	}
	if err := validatePassword(in.Password); err != nil {
		return types.User{}, err
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		IsActive:     true,
		IsStaff:      staff,
		IsSuperuser:  superuser,
	})
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return validationError("email is not a valid address")
	}
	return nil
}

// validateUsername accepts letters, digits and @.+-_ only.
func validateUsername(username string) error {
	if username == "" {
		return validationError("username is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return validationError("username must be at most %d characters", maxUsernameLength)
	}
	for _, r := range username {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("@.+-_", r) {
			continue
		}
		return validationError("username may contain only letters, digits and @.+-_")
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return validationError("password is required")
	}
	if len(password) > auth.MaxPasswordBytes {
		return validationError("password must be at most %d bytes", auth.MaxPasswordBytes)
	}
	return nil
}
