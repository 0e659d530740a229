package grants

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/caregraph/caregraph/internal/domain/identity"
	"github.com/caregraph/caregraph/internal/platform/db"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

// UserDirectory is the slice of the identity service the grants domain
// needs for role checks on both sides of a grant.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// Service owns consent grants: patients issue time-bounded access to
// clinical staff, revoke it, and clinicians are checked against it on
// every record read.
type Service struct {
	repo       Repository
	users      UserDirectory
	tx         db.TxRunner
	notifier   Notifier
	defaultTTL time.Duration
	now        func() time.Time
}

func NewService(repo Repository, users UserDirectory, tx db.TxRunner, defaultTTL time.Duration, notifier Notifier) *Service {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{repo: repo, users: users, tx: tx, notifier: notifier, defaultTTL: defaultTTL, now: time.Now}
}

// HasActiveGrant reports whether the clinician currently holds usable
// access to the patient. Expiry is evaluated fresh on every call; a stale
// active row past its window does not count.
func (s *Service) HasActiveGrant(ctx context.Context, clinicianID, patientID uuid.UUID) (bool, error) {
	g, err := s.repo.GetActive(ctx, clinicianID, patientID)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !g.ExpiredAt(s.now()), nil
}

// Issue gives the clinician access to the patient's records until
// now+duration. An existing usable grant is extended in place; a stale
// expired one is superseded. At most one active row per pair survives.
func (s *Service) Issue(ctx context.Context, patientID, clinicianID uuid.UUID, duration time.Duration) (*AccessGrant, error) {
	if duration <= 0 {
		duration = s.defaultTTL
	}
	patient, err := s.users.GetUser(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.Role != identity.RolePatient {
		return nil, errs.Unauthorized("only patients can issue access grants")
	}
	clinician, err := s.users.GetUser(ctx, clinicianID)
	if err != nil {
		return nil, err
	}
	if clinician.Role != identity.RoleClinician && clinician.Role != identity.RoleLabAssistant {
		return nil, errs.Conflict("user %s is not clinical staff", clinicianID)
	}

	now := s.now()
	var issued *AccessGrant
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetActive(ctx, clinicianID, patientID)
		switch {
		case err == nil && !existing.ExpiredAt(now):
			existing.ExpiresAt = now.Add(duration)
			issued = existing
			return s.repo.ExtendExpiry(ctx, existing.ID, existing.ExpiresAt)
		case err == nil:
			// Stale active row past its window: supersede it.
			if err := s.repo.Deactivate(ctx, existing.ID, now); err != nil {
				return err
			}
		case !errors.Is(err, errs.ErrNotFound):
			return err
		}
		issued = &AccessGrant{
			ID:          uuid.New(),
			ClinicianID: clinicianID,
			PatientID:   patientID,
			Active:      true,
			GrantedAt:   now,
			ExpiresAt:   now.Add(duration),
		}
		return s.repo.Create(ctx, issued)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.GrantIssued(ctx, issued)
	return issued, nil
}

// Revoke withdraws the clinician's access immediately. Revoking a grant
// that does not exist, or revoking twice, is a no-op.
func (s *Service) Revoke(ctx context.Context, patientID, clinicianID uuid.UUID) error {
	g, err := s.repo.GetActive(ctx, clinicianID, patientID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	err = s.repo.Deactivate(ctx, g.ID, s.now())
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.notifier.GrantRevoked(ctx, g)
	return nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*AccessGrant, error) {
	return s.repo.ListForPatient(ctx, patientID)
}

func (s *Service) ListForClinician(ctx context.Context, clinicianID uuid.UUID) ([]*AccessGrant, error) {
	return s.repo.ListForClinician(ctx, clinicianID)
}

// DeleteForUser removes every grant naming the user on either side. Called
// by account deletion.
func (s *Service) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	return s.repo.DeleteForUser(ctx, userID)
}

// Now exposes the service clock so callers rendering RemainingLabel use
// the same time source.
func (s *Service) Now() time.Time {
	return s.now()
}
