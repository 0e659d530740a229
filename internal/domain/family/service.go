package family

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/caregraph/caregraph/internal/domain/identity"
	"github.com/caregraph/caregraph/internal/platform/db"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

// UserDirectory is the slice of the identity service the family domain
// needs: lookups, free-form identifier resolution, and the family pointer.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
	ResolveIdentifier(ctx context.Context, identifier string) (*identity.User, error)
	SetFamilyID(ctx context.Context, userID uuid.UUID, familyID *uuid.UUID) error
}

// Notifier is told about invitations so an out-of-band channel (email,
// push) can surface them. Delivery failures never fail the mutation.
type Notifier interface {
	InvitationCreated(ctx context.Context, inv *FamilyInvitation)
}

// NopNotifier drops all notifications.
type NopNotifier struct{}

func (NopNotifier) InvitationCreated(context.Context, *FamilyInvitation) {}

/// Service owns the family lifecycle: creation, invitations, membership,
// and departures with ownership transfer.
type Service struct {
	repo     Repository
	users    UserDirectory
	tx       db.TxRunner
	notifier Notifier
	now      func() time.Time
}

func NewService(repo Repository, users UserDirectory, tx db.TxRunner, notifier Notifier) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{repo: repo, users: users, tx: tx, notifier: notifier, now: time.Now}
}

// CreateFamily starts a new family with the creator as its sole accepted
// member, relation self. A user already in a family cannot create another.
func (s *Service) CreateFamily(ctx context.Context, creatorID uuid.UUID, name string) (*Family, error) {
	creator, err := s.users.GetUser(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if creator.FamilyID != nil {
		return nil, errs.Conflict("user %s already belongs to a family", creatorID)
	}
	if name == "" {
		name = creator.DisplayName() + " family"
	}

	f := &Family{ID: uuid.New(), Name: name, CreatedBy: creatorID}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateFamily(ctx, f); err != nil {
			return err
		}
		m := &FamilyMember{
			FamilyID:  f.ID,
			UserID:    creatorID,
			FirstName: creator.FirstName,
			LastName:  creator.LastName,
			Email:     creator.Email,
			Relation:  RelationSelf,
			Status:    StatusAccepted,
			AddedBy:   creatorID,
		}
		if err := s.repo.AddMember(ctx, m); err != nil {
			return err
		}
		return s.users.SetFamilyID(ctx, creatorID, &f.ID)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) GetFamily(ctx context.Context, id uuid.UUID) (*Family, error) {
	return s.repo.GetFamily(ctx, id)
}

func (s *Service) ListMembers(ctx context.Context, familyID uuid.UUID) ([]*FamilyMember, error) {
	return s.repo.ListMembers(ctx, familyID)
}

// InviteMember creates a pending invitation for the patient the identifier
// resolves to. The inviter must be an accepted member of the family, the
// target must not already be in a family, and at most one pending
// invitation per (family, user) pair may exist.
func (s *Service) InviteMember(ctx context.Context, familyID, inviterID uuid.UUID, targetIdentifier, relation string) (*FamilyInvitation, error) {
	if !ValidRelation(relation) {
		return nil, errs.Conflict("invalid relation %q", relation)
	}

	inviter, err := s.repo.GetMember(ctx, familyID, inviterID)
	if err != nil {
		return nil, errs.Unauthorized("user %s is not a member of family %s", inviterID, familyID)
	}
	if inviter.Status != StatusAccepted {
		return nil, errs.Unauthorized("user %s is not an accepted member of family %s", inviterID, familyID)
	}

	target, err := s.users.ResolveIdentifier(ctx, targetIdentifier)
	if err != nil {
		return nil, err
	}
	if target.FamilyID != nil {
		return nil, errs.Conflict("user %s already belongs to a family", target.ID)
	}
	if target.ID == inviterID {
		return nil, errs.Conflict("cannot invite yourself")
	}

	pending, err := s.repo.HasPendingInvitation(ctx, familyID, target.ID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, errs.Conflict("a pending invitation for user %s already exists", target.ID)
	}

	now := s.now()
	inv := &FamilyInvitation{
		ID:            uuid.New(),
		FamilyID:      familyID,
		InvitedUserID: target.ID,
		InvitedBy:     inviterID,
		Relation:      relation,
		Status:        StatusPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(InvitationTTL),
	}
	if err := s.repo.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	s.notifier.InvitationCreated(ctx, inv)
	return inv, nil
}

// ListInvitations returns the invitations addressed to the user, most
// recent first.
func (s *Service) ListInvitations(ctx context.Context, userID uuid.UUID) ([]*FamilyInvitation, error) {
	return s.repo.ListInvitationsForUser(ctx, userID)
}

// AcceptInvitation turns a pending, unexpired invitation into an accepted
// membership. An expired invitation is rejected without mutating anything.
func (s *Service) AcceptInvitation(ctx context.Context, invitationID, userID uuid.UUID) (*FamilyMember, error) {
	inv, err := s.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.InvitedUserID != userID {
		return nil, errs.Unauthorized("invitation %s is not addressed to user %s", invitationID, userID)
	}
	if inv.Status != StatusPending {
		return nil, errs.Conflict("invitation %s is already %s", invitationID, inv.Status)
	}
	if inv.ExpiredAt(s.now()) {
		return nil, errs.Expired("invitation %s expired at %s", invitationID, inv.ExpiresAt.Format(time.RFC3339))
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.FamilyID != nil {
		return nil, errs.Conflict("user %s already belongs to a family", userID)
	}

	m := &FamilyMember{
		FamilyID:  inv.FamilyID,
		UserID:    userID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Relation:  inv.Relation,
		Status:    StatusAccepted,
		AddedBy:   inv.InvitedBy,
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.TransitionInvitation(ctx, invitationID, StatusPending, StatusAccepted); err != nil {
			return err
		}
		if err := s.repo.AddMember(ctx, m); err != nil {
			return err
		}
		return s.users.SetFamilyID(ctx, userID, &inv.FamilyID)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DeclineInvitation marks a pending invitation declined. Declining twice,
// or declining after acceptance, is a conflict.
func (s *Service) DeclineInvitation(ctx context.Context, invitationID, userID uuid.UUID) error {
	inv, err := s.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv.InvitedUserID != userID {
		return errs.Unauthorized("invitation %s is not addressed to user %s", invitationID, userID)
	}
	if inv.Status != StatusPending {
		return errs.Conflict("invitation %s is already %s", invitationID, inv.Status)
	}
	return s.repo.TransitionInvitation(ctx, invitationID, StatusPending, StatusDeclined)
}

// KickMember removes another member from the family. Only the family owner
// may kick, and never themselves.
func (s *Service) KickMember(ctx context.Context, familyID, memberUserID, requesterID uuid.UUID) error {
	f, err := s.repo.GetFamily(ctx, familyID)
	if err != nil {
		return err
	}
	if f.CreatedBy != requesterID {
		return errs.Unauthorized("only the family owner may remove members")
	}
	if memberUserID == requesterID {
		return errs.Unauthorized("the owner cannot remove themselves; leave the family instead")
	}
	if _, err := s.repo.GetMember(ctx, familyID, memberUserID); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.RemoveMember(ctx, familyID, memberUserID); err != nil {
			return err
		}
		return s.users.SetFamilyID(ctx, memberUserID, nil)
	})
}

// LeaveFamily removes the caller from their family. The last member out
// deletes the family; when the owner leaves a family that still has
// members, ownership transfers to the longest-standing remaining member.
func (s *Service) LeaveFamily(ctx context.Context, familyID, userID uuid.UUID) error {
	f, err := s.repo.GetFamily(ctx, familyID)
	if err != nil {
		return err
	}
	if _, err := s.repo.GetMember(ctx, familyID, userID); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.RemoveMember(ctx, familyID, userID); err != nil {
			return err
		}
		if err := s.users.SetFamilyID(ctx, userID, nil); err != nil {
			return err
		}
		remaining, err := s.repo.ListMembers(ctx, familyID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			return s.repo.DeleteFamily(ctx, familyID)
		}
		if f.CreatedBy == userID {
			return s.repo.SetFamilyOwner(ctx, familyID, remaining[0].UserID)
		}
		return nil
	})
}

// RemoveUser detaches a user from the family graph entirely: membership,
// ownership, and any invitations naming them. Called by account deletion.
func (s *Service) RemoveUser(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.FamilyID != nil {
		if err := s.LeaveFamily(ctx, *user.FamilyID, userID); err != nil {
			return err
		}
	}
	return s.repo.DeleteInvitationsForUser(ctx, userID)
}
