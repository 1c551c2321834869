package identity

import (
	"context"
	"time"
)

// User is eucl's canonical security principal.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	EmailNorm    string    `json:"-"`
	Phone        string    `json:"phone,omitempty"`
	NationalID   string    `json:"nationalId,omitempty"`
	PasswordHash string    `json:"-"`
	Roles        RoleSet   `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CreateUserInput is a fully prepared row: the password is already hashed
// and the fields normalized.
type CreateUserInput struct {
	Name         string
	Email        string
	Phone        string
	NationalID   string
	PasswordHash string
	Roles        RoleSet
	Now          time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	// GetUserByEmail looks up by normalized email.
	GetUserByEmail(ctx context.Context, emailNorm string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	// SetRoles replaces the role set of a user.
	SetRoles(ctx context.Context, id string, roles RoleSet) error
	// SetPasswordHash replaces the stored password hash of a user.
	SetPasswordHash(ctx context.Context, id, hash string) error
}
