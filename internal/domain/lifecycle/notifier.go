package lifecycle

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/caregraph/caregraph/internal/domain/identity"
	"github.com/caregraph/caregraph/internal/platform/notification"
)

// Notifier is told when an account and its data are gone.
type Notifier interface {
	AccountDeleted(ctx context.Context, user *identity.User)
}

// NopNotifier drops all notifications.
type NopNotifier struct{}

func (NopNotifier) AccountDeleted(context.Context, *identity.User) {}

// MailNotifier sends a final notice to the deleted account's address. The
// user row is already gone, so the snapshot captured during validation is
// all there is; delivery failures are logged and swallowed.
type MailNotifier struct {
	mgr *notification.Manager
	log zerolog.Logger
}

func NewMailNotifier(mgr *notification.Manager, log zerolog.Logger) *MailNotifier {
	return &MailNotifier{mgr: mgr, log: log}
}

func (n *MailNotifier) AccountDeleted(ctx context.Context, user *identity.User) {
	data := map[string]string{"user_name": user.DisplayName()}
	if _, err := n.mgr.SendFromTemplate(ctx, "account-deleted", data, user.Email); err != nil {
		n.log.Warn().Err(err).
			Stringer("user_id", user.ID).
			Str("recipient", user.Email).
			Msg("deletion notice delivery failed")
	}
}
