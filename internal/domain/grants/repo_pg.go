package grants

import (
	"context"
	"errors"
	"time"

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

const grantCols = `id, clinician_id, patient_id, active, granted_at, expires_at, revoked_at`

func scanGrant(row pgx.Row) (*AccessGrant, error) {
	var g AccessGrant
	err := row.Scan(&g.ID, &g.ClinicianID, &g.PatientID, &g.Active,
		&g.GrantedAt, &g.ExpiresAt, &g.RevokedAt)
	return &g, err
}

func (r *repoPG) Create(ctx context.Context, g *AccessGrant) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO access_grants (id, clinician_id, patient_id, active, granted_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		g.ID, g.ClinicianID, g.PatientID, g.Active, g.GrantedAt, g.ExpiresAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errs.Conflict("an active grant for this clinician and patient already exists")
	}
	return err
}

func (r *repoPG) GetActive(ctx context.Context, clinicianID, patientID uuid.UUID) (*AccessGrant, error) {
	g, err := scanGrant(r.conn(ctx).QueryRow(ctx, `
		SELECT `+grantCols+` FROM access_grants
		WHERE clinician_id = $1 AND patient_id = $2 AND active`,
		clinicianID, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("no active grant for clinician %s and patient %s", clinicianID, patientID)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *repoPG) ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE access_grants SET expires_at = $2 WHERE id = $1 AND active`,
		id, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("active grant %s", id)
	}
	return nil
}

func (r *repoPG) Deactivate(ctx context.Context, id uuid.UUID, revokedAt time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE access_grants SET active = FALSE, revoked_at = $2 WHERE id = $1 AND active`,
		id, revokedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("active grant %s", id)
	}
	return nil
}

func (r *repoPG) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*AccessGrant, error) {
	return r.list(ctx, `
		SELECT `+grantCols+` FROM access_grants
		WHERE patient_id = $1
		ORDER BY granted_at DESC`, patientID)
}

func (r *repoPG) ListForClinician(ctx context.Context, clinicianID uuid.UUID) ([]*AccessGrant, error) {
	return r.list(ctx, `
		SELECT `+grantCols+` FROM access_grants
		WHERE clinician_id = $1
		ORDER BY granted_at DESC`, clinicianID)
}

func (r *repoPG) list(ctx context.Context, sql string, arg interface{}) ([]*AccessGrant, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []*AccessGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (r *repoPG) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM access_grants WHERE patient_id = $1 OR clinician_id = $1`,
		userID)
	return err
}
