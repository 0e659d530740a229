package family

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caregraph/caregraph/internal/platform/db"
	"github.com/caregraph/caregraph/internal/platform/errs"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// =========== Families ===========

func (r *repoPG) CreateFamily(ctx context.Context, f *Family) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO families (id, name, created_by)
		VALUES ($1,$2,$3)`,
		f.ID, f.Name, f.CreatedBy)
	return err
}

func (r *repoPG) GetFamily(ctx context.Context, id uuid.UUID) (*Family, error) {
	var f Family
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, created_by, created_at, updated_at
		FROM families WHERE id = $1`, id).
		Scan(&f.ID, &f.Name, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("family %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *repoPG) SetFamilyOwner(ctx context.Context, familyID, newOwner uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE families SET created_by = $2, updated_at = NOW() WHERE id = $1`,
		familyID, newOwner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("family %s", familyID)
	}
	return nil
}

func (r *repoPG) DeleteFamily(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM families WHERE id = $1`, id)
	return err
}

// =========== Members ===========

const memberCols = `id, family_id, user_id, first_name, last_name, email,
	relation, status, added_by, added_at`

func scanMember(row pgx.Row) (*FamilyMember, error) {
	var m FamilyMember
	err := row.Scan(&m.ID, &m.FamilyID, &m.UserID, &m.FirstName, &m.LastName,
		&m.Email, &m.Relation, &m.Status, &m.AddedBy, &m.AddedAt)
	return &m, err
}

func (r *repoPG) AddMember(ctx context.Context, m *FamilyMember) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO family_members (id, family_id, user_id, first_name,
			last_name, email, relation, status, added_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.FamilyID, m.UserID, m.FirstName, m.LastName, m.Email,
		m.Relation, m.Status, m.AddedBy)
	if isUniqueViolation(err) {
		return errs.Conflict("user %s is already a family member", m.UserID)
	}
	return err
}

func (r *repoPG) GetMember(ctx context.Context, familyID, userID uuid.UUID) (*FamilyMember, error) {
	m, err := scanMember(r.conn(ctx).QueryRow(ctx, `
		SELECT `+memberCols+` FROM family_members
		WHERE family_id = $1 AND user_id = $2`, familyID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("member %s in family %s", userID, familyID)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *repoPG) ListMembers(ctx context.Context, familyID uuid.UUID) ([]*FamilyMember, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+memberCols+` FROM family_members
		WHERE family_id = $1
		ORDER BY added_at, user_id`, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*FamilyMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *repoPG) RemoveMember(ctx context.Context, familyID, userID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM family_members WHERE family_id = $1 AND user_id = $2`,
		familyID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.Conflict("member %s is no longer in family %s", userID, familyID)
	}
	return nil
}

// =========== Invitations ===========

const invitationCols = `id, family_id, invited_user_id, invited_by, relation,
	status, created_at, expires_at`

func scanInvitation(row pgx.Row) (*FamilyInvitation, error) {
	var inv FamilyInvitation
	err := row.Scan(&inv.ID, &inv.FamilyID, &inv.InvitedUserID, &inv.InvitedBy,
		&inv.Relation, &inv.Status, &inv.CreatedAt, &inv.ExpiresAt)
	return &inv, err
}

func (r *repoPG) CreateInvitation(ctx context.Context, inv *FamilyInvitation) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO family_invitations (id, family_id, invited_user_id,
			invited_by, relation, status, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		inv.ID, inv.FamilyID, inv.InvitedUserID, inv.InvitedBy,
		inv.Relation, inv.Status, inv.CreatedAt, inv.ExpiresAt)
	if isUniqueViolation(err) {
		return errs.Conflict("a pending invitation for user %s already exists", inv.InvitedUserID)
	}
	return err
}

func (r *repoPG) GetInvitation(ctx context.Context, id uuid.UUID) (*FamilyInvitation, error) {
	inv, err := scanInvitation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+invitationCols+` FROM family_invitations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("invitation %s", id)
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *repoPG) ListInvitationsForUser(ctx context.Context, userID uuid.UUID) ([]*FamilyInvitation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+invitationCols+` FROM family_invitations
		WHERE invited_user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []*FamilyInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

func (r *repoPG) HasPendingInvitation(ctx context.Context, familyID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM family_invitations
			WHERE family_id = $1 AND invited_user_id = $2 AND status = 'pending'
		)`, familyID, userID).Scan(&exists)
	return exists, err
}

func (r *repoPG) TransitionInvitation(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE family_invitations SET status = $3
		WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.Conflict("invitation %s is no longer %s", id, from)
	}
	return nil
}

func (r *repoPG) DeleteInvitationsForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM family_invitations WHERE invited_user_id = $1 OR invited_by = $1`,
		userID)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
