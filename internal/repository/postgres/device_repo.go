package postgres

import (
	"context"
	"database/sql"

	"accesscontrol/internal/domain"
)

type deviceRepository struct {
	DB *sql.DB
}

// NewDeviceRepository returns a read-only domain.DeviceRegistry over the devices table.
func NewDeviceRepository(db *sql.DB) domain.DeviceRegistry {
	return &deviceRepository{DB: db}
}

func (r *deviceRepository) ListActiveBySite(ctx context.Context, siteID string) ([]*domain.Device, error) {
	query := `
		SELECT id, site_id, name, ip, port, active
		FROM devices
		WHERE site_id = $1 AND active = TRUE
		ORDER BY id
	`
	rows, err := r.DB.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]*domain.Device, 0)
	for rows.Next() {
		d := &domain.Device{}
		var name sql.NullString
		if err := rows.Scan(&d.ID, &d.SiteID, &name, &d.IP, &d.Port, &d.Active); err != nil {
			return nil, err
		}
		d.Name = name.String
		devices = append(devices, d)
	}
	return devices, rows.Err()
}
