package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"accesscontrol/internal/domain"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

type inviteRepository struct {
	DB *sql.DB
}

// NewInviteRepository returns a domain.InviteRepository implemented with Postgres.
func NewInviteRepository(db *sql.DB) domain.InviteRepository {
	return &inviteRepository{DB: db}
}

// Create inserts inv as PENDING. A PENDING row that already holds the same value but is past
// its expiry is marked EXPIRED first so the value can be reused; a live one surfaces as
// domain.ErrTokenCollision through the partial unique index.
func (r *inviteRepository) Create(ctx context.Context, inv *domain.InviteToken) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	expireQuery := `
		UPDATE invite_tokens
		SET status = 'EXPIRED'
		WHERE token = $1 AND status = 'PENDING' AND expires_at <= $2
	`
	if _, err := tx.ExecContext(ctx, expireQuery, inv.Token, inv.CreatedAt); err != nil {
		return fmt.Errorf("expire stale token: %w", err)
	}

	insertQuery := `
		INSERT INTO invite_tokens (token, email, site_id, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, insertQuery, inv.Token, inv.Email, inv.SiteID, inv.Status, inv.ExpiresAt, inv.CreatedAt).
		Scan(&inv.ID)
	if err != nil {
		return mapInviteWriteErr(err)
	}
	if err := tx.Commit(); err != nil {
		return mapInviteWriteErr(err)
	}
	return nil
}

func mapInviteWriteErr(err error) error {
	var perr *pq.Error
	if errors.As(err, &perr) {
		switch perr.Code {
		case pqUniqueViolation:
			return domain.ErrTokenCollision
		case pqForeignKeyViolation:
			return domain.ErrSiteNotFound
		}
	}
	return err
}

func (r *inviteRepository) FindPending(ctx context.Context, token string, now time.Time) (*domain.InviteToken, error) {
	query := `
		SELECT id, token, email, site_id, status, expires_at, created_at, used_at
		FROM invite_tokens
		WHERE token = $1 AND status = 'PENDING' AND expires_at > $2
		LIMIT 1
	`
	inv, err := scanInvite(r.DB.QueryRowContext(ctx, query, token, now))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (r *inviteRepository) ListBySiteID(ctx context.Context, siteID string, params domain.PaginationParams) ([]*domain.InviteToken, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM invite_tokens WHERE site_id = $1`
	if err := r.DB.QueryRowContext(ctx, countQuery, siteID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, token, email, site_id, status, expires_at, created_at, used_at
		FROM invite_tokens
		WHERE site_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	// LIMIT NULL is no limit
	var limit any
	if params.Limit() > 0 {
		limit = params.Limit()
	}
	rows, err := r.DB.QueryContext(ctx, query, siteID, limit, params.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	invs := make([]*domain.InviteToken, 0)
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, 0, err
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return invs, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvite(row rowScanner) (*domain.InviteToken, error) {
	inv := &domain.InviteToken{}
	var status string
	var usedAt sql.NullTime
	if err := row.Scan(&inv.ID, &inv.Token, &inv.Email, &inv.SiteID, &status, &inv.ExpiresAt, &inv.CreatedAt, &usedAt); err != nil {
		return nil, err
	}
	inv.Status = domain.InviteStatus(status)
	if usedAt.Valid {
		t := usedAt.Time
		inv.UsedAt = &t
	}
	return inv, nil
}
