package accounts

import (
	"time"

	"github.com/google/uuid"
)

// MinSelfManageAge is the age from which a child may detach their parent
// link themselves.
const MinSelfManageAge = 16

// Accessible account types, as seen from the calling user's side.
const (
	AccountTypeParent = "parent"
	AccountTypeChild  = "child"
)

// AccountLink maps to the account_links table. A child has at most one
// parent; a parent may have many children. child_user_id is the primary
// key, which is what enforces the single-parent rule.
type AccountLink struct {
	ChildUserID  uuid.UUID `db:"child_user_id" json:"child_user_id"`
	ParentUserID uuid.UUID `db:"parent_user_id" json:"parent_user_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// AccessibleAccount is one entry of the set a session may switch into: the
// child's parent, or each of the parent's children.
type AccessibleAccount struct {
	UserID    uuid.UUID `json:"user_id"`
	Type      string    `json:"type"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}
