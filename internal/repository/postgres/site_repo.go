package postgres

import (
	"context"
	"database/sql"

	"accesscontrol/internal/domain"
)

type siteRepository struct {
	DB *sql.DB
}

func NewSiteRepository(db *sql.DB) domain.SiteRepository {
	return &siteRepository{DB: db}
}

func (r *siteRepository) Exists(ctx context.Context, siteID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sites WHERE id = $1)`, siteID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
