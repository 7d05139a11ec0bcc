package users

import (
	"context"
	"errors"
	"time"

	"github.com/planora/server/internal/auth"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         auth.Role
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateParams struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         auth.Role
}

// ProfilePatch carries profile updates. Nil means leave unchanged;
// PasswordHash is already hashed by the service.
type ProfilePatch struct {
	Name         *string
	Email        *string
	PasswordHash *string
}

type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	// ListOrganizers returns active organizer accounts only.
	ListOrganizers(ctx context.Context) ([]User, error)
	Create(ctx context.Context, params CreateParams) (*User, error)
	// UpdateProfile fails with ErrEmailTaken when the new email belongs to
	// another user.
	UpdateProfile(ctx context.Context, id string, patch ProfilePatch) error
	SetStatus(ctx context.Context, id string, status Status) error
}
