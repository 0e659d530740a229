package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caregraph/caregraph/internal/domain/identity"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

// Deletion stages, in execution order. A failure is reported against the
// stage it happened in; earlier stages stay committed, there are no
// automatic retries.
const (
	StageValidate              = "validate"
	StagePurgeRecords          = "purge_records"
	StagePurgeGrants           = "purge_grants"
	StagePurgeFamilyMembership = "purge_family_membership"
	StagePurgeAccountLinks     = "purge_account_links"
	StageDeleteIdentity        = "delete_identity"
)

// UserStore is the slice of the identity service deletion needs.
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// RecordPurger removes a patient's record documents and attachments.
type RecordPurger interface {
	PurgeForPatient(ctx context.Context, patientID uuid.UUID) error
}

// GrantPurger removes every grant naming the user on either side.
type GrantPurger interface {
	DeleteForUser(ctx context.Context, userID uuid.UUID) error
}

// FamilyPurger detaches the user from the family graph, transferring
// ownership or deleting the family as membership rules require.
type FamilyPurger interface {
	RemoveUser(ctx context.Context, userID uuid.UUID) error
}

// LinkStore answers parent/child questions and drops link rows.
type LinkStore interface {
	IsParentOf(ctx context.Context, parentID, childID uuid.UUID) (bool, error)
	DeleteLinksForUser(ctx context.Context, userID uuid.UUID) error
}

// Coordinator runs account deletion end to end. Each stage is a call into
// the owning domain service, so every domain's own invariants (ownership
// transfer, blob purge absorption) apply unchanged.
type Coordinator struct {
	users    UserStore
	records  RecordPurger
	grants   GrantPurger
	family   FamilyPurger
	links    LinkStore
	creds    CredentialStore
	notifier Notifier
	log      zerolog.Logger
}

func NewCoordinator(users UserStore, records RecordPurger, grants GrantPurger,
	family FamilyPurger, links LinkStore, creds CredentialStore, notifier Notifier,
	log zerolog.Logger) *Coordinator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Coordinator{
		users:    users,
		records:  records,
		grants:   grants,
		family:   family,
		links:    links,
		creds:    creds,
		notifier: notifier,
		log:      log,
	}
}

func stageFailed(stage string, err error) error {
	return fmt.Errorf("deletion failed at stage %s: %w", stage, err)
}

// DeleteAccount removes the target account and everything tied to it. The
// caller must be the target themselves or the target's linked parent.
// Parent-initiated child deletion purges all data but leaves the external
// credential in place, reported as a partial success.
func (c *Coordinator) DeleteAccount(ctx context.Context, callerID, targetID uuid.UUID) error {
	log := c.log.With().
		Str("caller_id", callerID.String()).
		Str("target_id", targetID.String()).
		Logger()

	// Validate. The user snapshot outlives the identity row; the final
	// notice is addressed from it.
	target, err := c.users.GetUser(ctx, targetID)
	if err != nil {
		return stageFailed(StageValidate, err)
	}
	if callerID != targetID {
		isParent, err := c.links.IsParentOf(ctx, callerID, targetID)
		if err != nil {
			return stageFailed(StageValidate, err)
		}
		if !isParent {
			return stageFailed(StageValidate,
				errs.Unauthorized("only the account holder or their linked parent may delete the account"))
		}
	}
	log.Info().Str("stage", StageValidate).Msg("account deletion started")

	if err := c.records.PurgeForPatient(ctx, targetID); err != nil {
		return stageFailed(StagePurgeRecords, err)
	}
	log.Info().Str("stage", StagePurgeRecords).Msg("records purged")

	if err := c.grants.DeleteForUser(ctx, targetID); err != nil {
		return stageFailed(StagePurgeGrants, err)
	}
	log.Info().Str("stage", StagePurgeGrants).Msg("grants purged")

	if err := c.family.RemoveUser(ctx, targetID); err != nil {
		return stageFailed(StagePurgeFamilyMembership, err)
	}
	log.Info().Str("stage", StagePurgeFamilyMembership).Msg("family membership purged")

	if err := c.links.DeleteLinksForUser(ctx, targetID); err != nil {
		return stageFailed(StagePurgeAccountLinks, err)
	}
	log.Info().Str("stage", StagePurgeAccountLinks).Msg("account links purged")

	if err := c.users.DeleteUser(ctx, targetID); err != nil {
		return stageFailed(StageDeleteIdentity, err)
	}
	if callerID != targetID {
		// A parent deleting a child cannot dispose of the child's external
		// credential; the data is gone but the credential stays.
		log.Warn().Str("stage", StageDeleteIdentity).Msg("credential retained, parent-initiated deletion")
		c.notifier.AccountDeleted(ctx, target)
		return fmt.Errorf("account data deleted, credential retained: %w", errs.ErrPartialSuccess)
	}
	if err := c.creds.DeleteCredential(ctx, targetID); err != nil {
		return stageFailed(StageDeleteIdentity, errs.External(err, "deleting credential for %s", targetID))
	}
	log.Info().Str("stage", StageDeleteIdentity).Msg("account deleted")
	c.notifier.AccountDeleted(ctx, target)
	return nil
}
