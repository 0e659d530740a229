package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/caregraph/caregraph/internal/domain/identity"
	"github.com/caregraph/caregraph/internal/platform/auth"
	"github.com/caregraph/caregraph/internal/platform/db"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

// UserDirectory is the slice of the identity service the accounts domain
// needs: profile lookups and child account creation.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
	CreateUser(ctx context.Context, u *identity.User) error
}

// Service owns parent/child account links: who a session may act as,
// minting the switched session, creating child accounts, and the child's
// own way out of the link once old enough.
type Service struct {
	repo   Repository
	users  UserDirectory
	tx     db.TxRunner
	issuer *auth.TokenIssuer
	now    func() time.Time
}

func NewService(repo Repository, users UserDirectory, tx db.TxRunner, issuer *auth.TokenIssuer) *Service {
	return &Service{repo: repo, users: users, tx: tx, issuer: issuer, now: time.Now}
}

// GetAccessibleAccounts returns the accounts the user may switch into: a
// linked child sees its parent, a parent sees each linked child. Most
// users see an empty set.
func (s *Service) GetAccessibleAccounts(ctx context.Context, userID uuid.UUID) ([]AccessibleAccount, error) {
	accessible := []AccessibleAccount{}

	link, err := s.repo.GetLinkByChild(ctx, userID)
	switch {
	case err == nil:
		parent, err := s.users.GetUser(ctx, link.ParentUserID)
		if err != nil {
			return nil, err
		}
		accessible = append(accessible, AccessibleAccount{
			UserID:    parent.ID,
			Type:      AccountTypeParent,
			FirstName: parent.FirstName,
			LastName:  parent.LastName,
		})
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}

	links, err := s.repo.ListLinksByParent(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		child, err := s.users.GetUser(ctx, l.ChildUserID)
		if err != nil {
			return nil, err
		}
		accessible = append(accessible, AccessibleAccount{
			UserID:    child.ID,
			Type:      AccountTypeChild,
			FirstName: child.FirstName,
			LastName:  child.LastName,
		})
	}
	return accessible, nil
}

// SwitchToAccount mints a session acting as target. The target must be in
// the accessible set of the session's root identity, never its current
// effective one, so switches cannot chain. Switching to the root identity
// itself clears the override.
func (s *Service) SwitchToAccount(ctx context.Context, rootID, targetID uuid.UUID, roles []string) (string, error) {
	if targetID != rootID {
		accessible, err := s.GetAccessibleAccounts(ctx, rootID)
		if err != nil {
			return "", err
		}
		allowed := false
		for _, a := range accessible {
			if a.UserID == targetID {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", errs.Unauthorized("account %s is not accessible from %s", targetID, rootID)
		}
	}
	return s.issuer.MintSession(rootID.String(), targetID.String(), roles, s.now())
}

// SwitchBack mints a session with no acting override.
func (s *Service) SwitchBack(rootID uuid.UUID, roles []string) (string, error) {
	return s.issuer.MintSession(rootID.String(), "", roles, s.now())
}

// CreateChildAccount creates a child profile under the parent: a new user
// row and the link row commit together.
func (s *Service) CreateChildAccount(ctx context.Context, parentID uuid.UUID, child *identity.User) (*identity.User, error) {
	parent, err := s.users.GetUser(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.Role != identity.RolePatient {
		return nil, errs.Unauthorized("only patients can create child accounts")
	}
	child.Role = identity.RolePatient
	child.IsChild = true
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.users.CreateUser(ctx, child); err != nil {
			return err
		}
		return s.repo.CreateLink(ctx, &AccountLink{ChildUserID: child.ID, ParentUserID: parentID})
	})
	if err != nil {
		return nil, err
	}
	return child, nil
}

// RemoveParentLink lets a child detach from their parent once they are at
// least 16. The age check fails closed: a missing or unparseable date of
// birth blocks the removal.
func (s *Service) RemoveParentLink(ctx context.Context, childID uuid.UUID) error {
	if _, err := s.repo.GetLinkByChild(ctx, childID); err != nil {
		return err
	}
	child, err := s.users.GetUser(ctx, childID)
	if err != nil {
		return err
	}
	if child.DateOfBirth == nil || *child.DateOfBirth == "" {
		return errs.Unauthorized("cannot verify age: no date of birth on record")
	}
	dob, err := identity.ParseDateOfBirth(*child.DateOfBirth)
	if err != nil {
		return errs.Unauthorized("cannot verify age: %v", err)
	}
	if identity.AgeAt(dob, s.now()) < MinSelfManageAge {
		return errs.Unauthorized("parent link removal requires age %d", MinSelfManageAge)
	}
	return s.repo.DeleteLinkByChild(ctx, childID)
}

// IsParentOf reports whether parentID holds the link to childID. Used by
// account deletion to validate parent-initiated child removal.
func (s *Service) IsParentOf(ctx context.Context, parentID, childID uuid.UUID) (bool, error) {
	link, err := s.repo.GetLinkByChild(ctx, childID)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return link.ParentUserID == parentID, nil
}

// DeleteLinksForUser removes every link naming the user. A deleted parent's
// children keep their accounts and simply lose the link.
func (s *Service) DeleteLinksForUser(ctx context.Context, userID uuid.UUID) error {
	return s.repo.DeleteLinksForUser(ctx, userID)
}
