package family

import (
	"time"

	"github.com/google/uuid"
)

// InvitationTTL is how long an invitation stays acceptable.
const InvitationTTL = 7 * 24 * time.Hour

// Relations a family member can hold toward the family.
const (
	RelationSelf        = "self"
	RelationSpouse      = "spouse"
	RelationParent      = "parent"
	RelationChild       = "child"
	RelationSibling     = "sibling"
	RelationGrandparent = "grandparent"
	RelationGrandchild  = "grandchild"
	RelationUncle       = "uncle"
	RelationAunt        = "aunt"
	RelationCousin      = "cousin"
	RelationOther       = "other"
)

var validRelations = map[string]bool{
	RelationSelf: true, RelationSpouse: true, RelationParent: true,
	RelationChild: true, RelationSibling: true, RelationGrandparent: true,
	RelationGrandchild: true, RelationUncle: true, RelationAunt: true,
	RelationCousin: true, RelationOther: true,
}

// ValidRelation reports whether rel is one of the known relation values.
func ValidRelation(rel string) bool {
	return validRelations[rel]
}

// Membership and invitation statuses.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
)

// Family maps to the families table.
type Family struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedBy uuid.UUID `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FamilyMember maps to the family_members table. One row per user per
// family; the creator holds relation "self".
type FamilyMember struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FamilyID  uuid.UUID `db:"family_id" json:"family_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     string    `db:"email" json:"email"`
	Relation  string    `db:"relation" json:"relation"`
	Status    string    `db:"status" json:"status"`
	AddedBy   uuid.UUID `db:"added_by" json:"added_by"`
	AddedAt   time.Time `db:"added_at" json:"added_at"`
}

// FamilyInvitation maps to the family_invitations table.
type FamilyInvitation struct {
	ID            uuid.UUID `db:"id" json:"id"`
	FamilyID      uuid.UUID `db:"family_id" json:"family_id"`
	InvitedUserID uuid.UUID `db:"invited_user_id" json:"invited_user_id"`
	InvitedBy     uuid.UUID `db:"invited_by" json:"invited_by"`
	Relation      string    `db:"relation" json:"relation"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
}

// ExpiredAt reports whether the invitation's validity window has passed.
// Expiry is enforced lazily: the stored status may still read pending, so
// every consumer applies this check alongside the status.
func (i *FamilyInvitation) ExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
