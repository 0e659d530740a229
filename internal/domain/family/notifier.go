package family

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/caregraph/caregraph/internal/platform/notification"
)

// MailNotifier delivers invitation notices by email through the notification
// manager. Lookup or delivery failures are logged and swallowed; a missed
// email must never roll back the invitation itself.
type MailNotifier struct {
	mgr   *notification.Manager
	repo  Repository
	users UserDirectory
	log   zerolog.Logger
}

func NewMailNotifier(mgr *notification.Manager, repo Repository, users UserDirectory, log zerolog.Logger) *MailNotifier {
	return &MailNotifier{mgr: mgr, repo: repo, users: users, log: log}
}

func (n *MailNotifier) InvitationCreated(ctx context.Context, inv *FamilyInvitation) {
	invitee, err := n.users.GetUser(ctx, inv.InvitedUserID)
	if err != nil {
		n.log.Warn().Err(err).
			Stringer("invitation_id", inv.ID).
			Msg("invitation notice skipped, invitee lookup failed")
		return
	}

	data := map[string]string{
		"invitee_name": invitee.DisplayName(),
		"relation":     inv.Relation,
		"expires":      inv.ExpiresAt.Format("2006-01-02"),
	}
	if inviter, err := n.users.GetUser(ctx, inv.InvitedBy); err == nil {
		data["inviter_name"] = inviter.DisplayName()
	}
	if fam, err := n.repo.GetFamily(ctx, inv.FamilyID); err == nil {
		data["family_name"] = fam.Name
	}

	if _, err := n.mgr.SendFromTemplate(ctx, "family-invitation", data, invitee.Email); err != nil {
		n.log.Warn().Err(err).
			Stringer("invitation_id", inv.ID).
			Str("recipient", invitee.Email).
			Msg("invitation notice delivery failed")
	}
}
