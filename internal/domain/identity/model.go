package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Roles a user account can carry.
const (
	RolePatient      = "patient"
	RoleClinician    = "clinician"
	RoleLabAssistant = "lab_assistant"
)

// User maps to the users table.
type User struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Role        string     `db:"role" json:"role"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	Email       string     `db:"email" json:"email"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	DateOfBirth *string    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	FamilyID    *uuid.UUID `db:"family_id" json:"family_id,omitempty"`
	IsChild     bool       `db:"is_child" json:"is_child"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// DisplayName returns "First Last" with empty parts collapsed.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

var validRoles = map[string]bool{
	RolePatient: true, RoleClinician: true, RoleLabAssistant: true,
}

// ValidRole reports whether role is one of the known account roles.
func ValidRole(role string) bool {
	return validRoles[role]
}

// dobLayouts are the date-of-birth encodings accepted across the data set.
var dobLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// ParseDateOfBirth parses a stored date-of-birth string. Unparseable values
// return an error; callers that gate on age must treat that as "cannot
// verify" rather than permitting the action.
func ParseDateOfBirth(raw string) (time.Time, error) {
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date of birth format %q", raw)
}

// AgeAt returns the whole-year age at the given instant. The birthday
// anniversary itself counts: a child born exactly sixteen years before now
// is 16.
func AgeAt(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	anniversary := dob.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}
