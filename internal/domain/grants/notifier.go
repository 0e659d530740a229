package grants

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/caregraph/caregraph/internal/platform/notification"
)

// Notifier is told about grant lifecycle events after they commit.
type Notifier interface {
	GrantIssued(ctx context.Context, g *AccessGrant)
	GrantRevoked(ctx context.Context, g *AccessGrant)
}

// NopNotifier drops all notifications.
type NopNotifier struct{}

func (NopNotifier) GrantIssued(context.Context, *AccessGrant)  {}
func (NopNotifier) GrantRevoked(context.Context, *AccessGrant) {}

// MailNotifier emails the patient when access to their records is granted
// or revoked. Lookup or delivery failures are logged and swallowed; a
// missed notice must never roll back the grant mutation itself.
type MailNotifier struct {
	mgr   *notification.Manager
	users UserDirectory
	log   zerolog.Logger
}

func NewMailNotifier(mgr *notification.Manager, users UserDirectory, log zerolog.Logger) *MailNotifier {
	return &MailNotifier{mgr: mgr, users: users, log: log}
}

func (n *MailNotifier) GrantIssued(ctx context.Context, g *AccessGrant) {
	n.send(ctx, "grant-issued", g)
}

func (n *MailNotifier) GrantRevoked(ctx context.Context, g *AccessGrant) {
	n.send(ctx, "grant-revoked", g)
}

func (n *MailNotifier) send(ctx context.Context, templateID string, g *AccessGrant) {
	patient, err := n.users.GetUser(ctx, g.PatientID)
	if err != nil {
		n.log.Warn().Err(err).
			Stringer("grant_id", g.ID).
			Msg("grant notice skipped, patient lookup failed")
		return
	}

	data := map[string]string{
		"patient_name": patient.DisplayName(),
		"expires":      g.ExpiresAt.Format("2006-01-02 15:04 MST"),
	}
	if clinician, err := n.users.GetUser(ctx, g.ClinicianID); err == nil {
		data["clinician_name"] = clinician.DisplayName()
	}

	if _, err := n.mgr.SendFromTemplate(ctx, templateID, data, patient.Email); err != nil {
		n.log.Warn().Err(err).
			Stringer("grant_id", g.ID).
			Str("recipient", patient.Email).
			Msg("grant notice delivery failed")
	}
}
