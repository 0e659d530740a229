package grants

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL applies when a grant is issued without an explicit duration.
const DefaultTTL = 24 * time.Hour

// AccessGrant maps to the access_grants table. A clinician holds at most
// one active grant per patient; expiry is enforced lazily at read time.
type AccessGrant struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ClinicianID uuid.UUID  `db:"clinician_id" json:"clinician_id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Active      bool       `db:"active" json:"active"`
	GrantedAt   time.Time  `db:"granted_at" json:"granted_at"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt   *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// ExpiredAt reports whether the grant's validity window has passed. A grant
// is usable while now <= expires_at.
func (g *AccessGrant) ExpiredAt(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

// RemainingLabel renders how long a grant has left: "expired" once past,
// whole hours under a day, whole days from 24h up. Partial hours round up
// so a grant never reads shorter than it is.
func RemainingLabel(expiresAt, now time.Time) string {
	rem := expiresAt.Sub(now)
	if rem < 0 {
		return "expired"
	}
	if rem < 24*time.Hour {
		hours := (rem + time.Hour - 1) / time.Hour
		return fmt.Sprintf("%dh remaining", hours)
	}
	return fmt.Sprintf("%dd remaining", rem/(24*time.Hour))
}
