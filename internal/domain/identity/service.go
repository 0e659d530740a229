package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/caregraph/caregraph/internal/platform/errs"
)

// Service provides user lookup and identifier resolution for the rest of
// the system.
type Service struct {
	users UserRepository
}

func NewService(users UserRepository) *Service {
	return &Service{users: users}
}

func (s *Service) CreateUser(ctx context.Context, u *User) error {
	if u.Email == "" {
		return errs.Conflict("email is required")
	}
	if u.Role == "" {
		u.Role = RolePatient
	}
	if !ValidRole(u.Role) {
		return errs.Conflict("invalid role %q", u.Role)
	}
	if u.DateOfBirth != nil && *u.DateOfBirth != "" {
		if _, err := ParseDateOfBirth(*u.DateOfBirth); err != nil {
			return errs.Conflict("invalid date of birth: %v", err)
		}
	}
	return s.users.Create(ctx, u)
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// SetFamilyID assigns or clears the user's family pointer. It joins any
// transaction carried by ctx.
func (s *Service) SetFamilyID(ctx context.Context, userID uuid.UUID, familyID *uuid.UUID) error {
	return s.users.SetFamilyID(ctx, userID, familyID)
}

// DeleteUser removes the user row. It joins any transaction carried by ctx.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.users.Delete(ctx, id)
}

// ResolveIdentifier finds the patient a free-form identifier refers to.
// Lookup order: exact email, exact phone, user id, then name substring. A
// name search matching more than one patient is ambiguous and rejected.
func (s *Service) ResolveIdentifier(ctx context.Context, identifier string) (*User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errs.NotFound("no patient matches an empty identifier")
	}

	if strings.Contains(identifier, "@") {
		if u, err := s.users.GetByEmail(ctx, identifier); err == nil {
			return requirePatient(u)
		}
	}

	if u, err := s.users.GetByPhone(ctx, identifier); err == nil {
		return requirePatient(u)
	}

	if id, err := uuid.Parse(identifier); err == nil {
		if u, err := s.users.GetByID(ctx, id); err == nil {
			return requirePatient(u)
		}
	}

	matches, err := s.users.SearchPatientsByName(ctx, identifier)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, errs.NotFound("no patient matches %q", identifier)
	case 1:
		return matches[0], nil
	default:
		return nil, errs.Conflict("identifier %q matches %d patients", identifier, len(matches))
	}
}

func requirePatient(u *User) (*User, error) {
	if u.Role != RolePatient {
		return nil, errs.NotFound("no patient matches identifier")
	}
	return u, nil
}
