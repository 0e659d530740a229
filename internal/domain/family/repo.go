package family

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists the family aggregate: family rows, member rows, and
// invitation rows. Mutations spanning more than one of these (plus the
// user's family pointer) run inside a TxRunner closure so the repository
// joins the ambient transaction.
type Repository interface {
	CreateFamily(ctx context.Context, f *Family) error
	GetFamily(ctx context.Context, id uuid.UUID) (*Family, error)
	// SetFamilyOwner reassigns created_by when the creator departs.
	SetFamilyOwner(ctx context.Context, familyID, newOwner uuid.UUID) error
	DeleteFamily(ctx context.Context, id uuid.UUID) error

	AddMember(ctx context.Context, m *FamilyMember) error
	GetMember(ctx context.Context, familyID, userID uuid.UUID) (*FamilyMember, error)
	// ListMembers returns members ordered by added_at, then user id, so
	// ownership transfer is deterministic.
	ListMembers(ctx context.Context, familyID uuid.UUID) ([]*FamilyMember, error)
	// RemoveMember deletes the member row; a concurrent removal that
	// already won surfaces as Conflict.
	RemoveMember(ctx context.Context, familyID, userID uuid.UUID) error

	CreateInvitation(ctx context.Context, inv *FamilyInvitation) error
	GetInvitation(ctx context.Context, id uuid.UUID) (*FamilyInvitation, error)
	ListInvitationsForUser(ctx context.Context, userID uuid.UUID) ([]*FamilyInvitation, error)
	HasPendingInvitation(ctx context.Context, familyID, userID uuid.UUID) (bool, error)
	// TransitionInvitation moves status from->to; a stale from state
	// surfaces as Conflict so racing accept/decline calls serialize.
	TransitionInvitation(ctx context.Context, id uuid.UUID, from, to string) error
	DeleteInvitationsForUser(ctx context.Context, userID uuid.UUID) error
}
