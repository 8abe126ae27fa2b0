package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"accesscontrol/internal/domain"
)

type enrollmentStore struct {
	DB *sql.DB
}

// NewEnrollmentStore returns a domain.EnrollmentStore that runs each enrollment in one
// Postgres transaction.
func NewEnrollmentStore(db *sql.DB) domain.EnrollmentStore {
	return &enrollmentStore{DB: db}
}

func (s *enrollmentStore) WithinTx(ctx context.Context, fn func(tx domain.EnrollmentTx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&enrollmentTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type enrollmentTx struct {
	tx *sql.Tx
}

func (t *enrollmentTx) GetTokenForUpdate(ctx context.Context, token string, now time.Time) (*domain.InviteToken, error) {
	query := `
		SELECT id, token, email, site_id, status, expires_at, created_at, used_at
		FROM invite_tokens
		WHERE token = $1 AND status = 'PENDING' AND expires_at > $2
		LIMIT 1
		FOR UPDATE
	`
	inv, err := scanInvite(t.tx.QueryRowContext(ctx, query, token, now))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (t *enrollmentTx) CreateResident(ctx context.Context, r *domain.Resident) error {
	query := `
		INSERT INTO residents (site_id, name, document, email, phone, photo, type, active, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
		RETURNING id
	`
	return t.tx.QueryRowContext(ctx, query,
		r.SiteID, r.Name, r.Document, r.Email, r.Phone, r.Photo, r.Type, r.Active, r.CreatedAt,
	).Scan(&r.ID)
}

func (t *enrollmentTx) SetTokenUsed(ctx context.Context, tokenID string, usedAt time.Time) (int64, error) {
	query := `
		UPDATE invite_tokens
		SET status = 'USED', used_at = $2
		WHERE id = $1 AND status = 'PENDING'
	`
	result, err := t.tx.ExecContext(ctx, query, tokenID, usedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
