package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/planora/server/internal/auth"
	"github.com/planora/server/internal/domain/ids"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SignupInput is the untrusted signup payload. Role is restricted to
// organizer or participant; admins are provisioned out of band.
type SignupInput struct {
	Name     string `validate:"required,max=120"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=128"`
	Role     string `validate:"omitempty,oneof=organizer participant"`
}

type LoginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// ProfileInput carries optional profile updates from the account owner.
type ProfileInput struct {
	Name     *string `validate:"omitempty,min=1,max=120"`
	Email    *string `validate:"omitempty,email,max=254"`
	Password *string `validate:"omitempty,min=8,max=128"`
}

type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type Service struct {
	repo   Repository
	jwt    *auth.JWTManager
	logger zerolog.Logger
}

func NewService(repo Repository, jwt *auth.JWTManager, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		jwt:    jwt,
		logger: logger.With().Str("component", "users").Logger(),
	}
}

// Signup creates the account and returns it with a fresh token.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, string, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, "", asFieldError(err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, "", fmt.Errorf("mint user id: %w", err)
	}

	user, err := s.repo.Create(ctx, CreateParams{
		ID:           id,
		Name:         strings.TrimSpace(in.Name),
		Email:        in.Email,
		PasswordHash: hash,
		Role:         auth.NormalizeRole(in.Role),
	})
	if err != nil {
		return nil, "", err
	}

	token, err := s.jwt.Generate(user.ID, user.Role)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Login checks credentials and returns the account with a fresh token. A
// disabled account fails the same way as bad credentials; login must not
// reveal account state.
func (s *Service) Login(ctx context.Context, in LoginInput) (*User, string, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, "", asFieldError(err)
	}

	user, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if !auth.CheckPassword(user.PasswordHash, in.Password) || user.Status != StatusActive {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.jwt.Generate(user.ID, user.Role)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile lets the account owner (or an admin) change name, email or
// password. Passwords are re-hashed here; the repository only sees hashes.
func (s *Service) UpdateProfile(ctx context.Context, principal auth.Principal, userID string, in ProfileInput) (*User, error) {
	if !principal.IsAdmin() && principal.ID != userID {
		return nil, auth.ErrForbidden
	}
	if err := validate.Struct(in); err != nil {
		return nil, asFieldError(err)
	}

	patch := ProfilePatch{Name: in.Name}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		patch.Email = &email
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		patch.PasswordHash = &hash
	}

	if err := s.repo.UpdateProfile(ctx, userID, patch); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, userID)
}

// List returns every account, admin only.
func (s *Service) List(ctx context.Context, principal auth.Principal) ([]User, error) {
	if !principal.IsAdmin() {
		return nil, auth.ErrForbidden
	}
	return s.repo.List(ctx)
}

// ListOrganizers returns the organizer directory: active organizer accounts,
// visible to any signed-in user.
func (s *Service) ListOrganizers(ctx context.Context) ([]User, error) {
	return s.repo.ListOrganizers(ctx)
}

// SetStatus enables or disables an account, admin only. Admins cannot
// disable themselves; that path locks everyone out one click at a time.
func (s *Service) SetStatus(ctx context.Context, principal auth.Principal, userID string, status Status) error {
	if !principal.IsAdmin() {
		return auth.ErrForbidden
	}
	if principal.ID == userID && status == StatusInactive {
		return FieldError{Field: "status", Message: "cannot disable your own account"}
	}
	switch status {
	case StatusActive, StatusInactive:
	default:
		return FieldError{Field: "status", Message: "must be active or inactive"}
	}
	return s.repo.SetStatus(ctx, userID, status)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func asFieldError(err error) error {
	var violations validator.ValidationErrors
	if !errors.As(err, &violations) || len(violations) == 0 {
		return FieldError{Message: err.Error()}
	}
	v := violations[0]
	return FieldError{
		Field:   strings.ToLower(v.Field()),
		Message: "fails " + v.Tag() + " validation",
	}
}
