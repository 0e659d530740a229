package grants

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists access grants. The table carries a partial unique
// index on (clinician_id, patient_id) WHERE active, so two active rows for
// the same pair can never coexist even under concurrent issuance.
type Repository interface {
	Create(ctx context.Context, g *AccessGrant) error
	// GetActive returns the active grant for the pair, expired or not.
	GetActive(ctx context.Context, clinicianID, patientID uuid.UUID) (*AccessGrant, error)
	ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	// Deactivate clears the active flag and stamps revoked_at.
	Deactivate(ctx context.Context, id uuid.UUID, revokedAt time.Time) error
	ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*AccessGrant, error)
	ListForClinician(ctx context.Context, clinicianID uuid.UUID) ([]*AccessGrant, error)
	// DeleteForUser removes every grant naming the user on either side.
	DeleteForUser(ctx context.Context, userID uuid.UUID) error
}
