package records

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PatientRecord maps to the patient_records table. Content is free-form
// structured data (lab values, visit notes); an optional attachment lives
// in object storage under BlobKey.
type PatientRecord struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	PatientID uuid.UUID       `db:"patient_id" json:"patient_id"`
	Title     string          `db:"title" json:"title"`
	Category  string          `db:"category" json:"category"`
	Content   json.RawMessage `db:"content" json:"content,omitempty"`
	BlobKey   *string         `db:"blob_key" json:"blob_key,omitempty"`
	CreatedBy uuid.UUID       `db:"created_by" json:"created_by"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// BlobPrefix is the object-storage namespace holding everything a patient
// owns. Purging a patient deletes this whole prefix.
func BlobPrefix(patientID uuid.UUID) string {
	return fmt.Sprintf("records/%s/", patientID)
}

// BlobKeyFor is the object-storage key for a record's attachment.
func BlobKeyFor(patientID, recordID uuid.UUID) string {
	return BlobPrefix(patientID) + recordID.String()
}
