package accounts

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists parent/child account links.
type Repository interface {
	// CreateLink inserts the link row; a child that is already linked
	// surfaces as Conflict.
	CreateLink(ctx context.Context, link *AccountLink) error
	GetLinkByChild(ctx context.Context, childID uuid.UUID) (*AccountLink, error)
	ListLinksByParent(ctx context.Context, parentID uuid.UUID) ([]*AccountLink, error)
	DeleteLinkByChild(ctx context.Context, childID uuid.UUID) error
	// DeleteLinksForUser removes every link naming the user on either side.
	DeleteLinksForUser(ctx context.Context, userID uuid.UUID) error
}
