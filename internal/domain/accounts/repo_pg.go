package accounts

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

func (r *repoPG) CreateLink(ctx context.Context, link *AccountLink) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO account_links (child_user_id, parent_user_id)
		VALUES ($1,$2)`,
		link.ChildUserID, link.ParentUserID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errs.Conflict("child %s is already linked to a parent", link.ChildUserID)
	}
	return err
}

func (r *repoPG) GetLinkByChild(ctx context.Context, childID uuid.UUID) (*AccountLink, error) {
	var link AccountLink
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT child_user_id, parent_user_id, created_at
		FROM account_links WHERE child_user_id = $1`, childID).
		Scan(&link.ChildUserID, &link.ParentUserID, &link.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("no parent link for user %s", childID)
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *repoPG) ListLinksByParent(ctx context.Context, parentID uuid.UUID) ([]*AccountLink, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT child_user_id, parent_user_id, created_at
		FROM account_links
		WHERE parent_user_id = $1
		ORDER BY created_at`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*AccountLink
	for rows.Next() {
		var link AccountLink
		if err := rows.Scan(&link.ChildUserID, &link.ParentUserID, &link.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

func (r *repoPG) DeleteLinkByChild(ctx context.Context, childID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM account_links WHERE child_user_id = $1`, childID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("no parent link for user %s", childID)
	}
	return nil
}

func (r *repoPG) DeleteLinksForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM account_links WHERE child_user_id = $1 OR parent_user_id = $1`,
		userID)
	return err
}
