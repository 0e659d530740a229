package records

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists patient record documents.
type Repository interface {
	Create(ctx context.Context, rec *PatientRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*PatientRecord, error)
	// ListForPatient returns one page of records plus the total count.
	ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*PatientRecord, int, error)
	SetBlobKey(ctx context.Context, id uuid.UUID, key string) error
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteForPatient removes every record row the patient owns.
	DeleteForPatient(ctx context.Context, patientID uuid.UUID) error
}
