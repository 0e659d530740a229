package identity

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository defines the user persistence operations the rest of the
// service builds on.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	// SearchPatientsByName matches patient-role users whose display name
	// contains the query, case-insensitively.
	SearchPatientsByName(ctx context.Context, query string) ([]*User, error)
	// SetFamilyID assigns or clears (nil) the user's family pointer.
	SetFamilyID(ctx context.Context, userID uuid.UUID, familyID *uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}
