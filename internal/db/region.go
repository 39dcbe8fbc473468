package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/virtual.ptz/internal/geometry"
)

// Region is a stored viewing region of a site.
type Region struct {
	geometry.Region
	SiteID int `json:"site_id"`
}

// DefaultRegionIcon is used when a region is created without an icon.
const DefaultRegionIcon = "📦"

func validateRegion(r *Region) error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("width and height must be positive, got %gx%g", r.Width, r.Height)
	}
	if r.X < 0 || r.Y < 0 {
		return fmt.Errorf("x and y must not be negative, got (%g, %g)", r.X, r.Y)
	}
	return nil
}

const regionColumns = `id, site_id, name, icon, x, y, width, height, is_default, display_order`

func scanRegion(row rowScanner) (*Region, error) {
	var r Region
	var isDefault int
	if err := row.Scan(&r.ID, &r.SiteID, &r.Name, &r.Icon, &r.X, &r.Y, &r.Width, &r.Height, &isDefault, &r.DisplayOrder); err != nil {
		return nil, err
	}
	r.IsDefault = isDefault == 1
	return &r, nil
}

// ListRegions returns the regions of a site in display order.
func (db *DB) ListRegions(siteID int) ([]Region, error) {
	rows, err := db.DB.Query(`SELECT `+regionColumns+` FROM machine_regions WHERE site_id = ? ORDER BY display_order, id`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	defer rows.Close()

	regions := []Region{}
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		regions = append(regions, *r)
	}
	return regions, rows.Err()
}

// GetRegion retrieves a region by ID.
func (db *DB) GetRegion(id int) (*Region, error) {
	r, err := scanRegion(db.DB.QueryRow(`SELECT `+regionColumns+` FROM machine_regions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("region %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get region: %w", err)
	}
	return r, nil
}

// CreateRegion inserts r for r.SiteID and sets its ID. Marking it default
// clears the flag on the site's other regions.
func (db *DB) CreateRegion(r *Region) error {
	if r.Icon == "" {
		r.Icon = DefaultRegionIcon
	}
	if err := validateRegion(r); err != nil {
		return invalid(err)
	}

	return db.inTx(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM sites WHERE id = ?`, r.SiteID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check site: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("site %d: %w", r.SiteID, ErrNotFound)
		}
		if r.IsDefault {
			if _, err := tx.Exec(`UPDATE machine_regions SET is_default = 0 WHERE site_id = ?`, r.SiteID); err != nil {
				return fmt.Errorf("failed to clear default region: %w", err)
			}
		}
		result, err := tx.Exec(`
			INSERT INTO machine_regions (site_id, name, icon, x, y, width, height, is_default, display_order)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.SiteID, r.Name, r.Icon, r.X, r.Y, r.Width, r.Height, boolInt(r.IsDefault), r.DisplayOrder,
		)
		if err != nil {
			return fmt.Errorf("failed to create region: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		r.ID = int(id)
		return nil
	})
}

// UpdateRegion overwrites an existing region. The site of a region never
// changes; r.SiteID is refreshed from the stored row.
func (db *DB) UpdateRegion(r *Region) error {
	if err := validateRegion(r); err != nil {
		return invalid(err)
	}

	return db.inTx(func(tx *sql.Tx) error {
		if err := tx.QueryRow(`SELECT site_id FROM machine_regions WHERE id = ?`, r.ID).Scan(&r.SiteID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("region %d: %w", r.ID, ErrNotFound)
			}
			return fmt.Errorf("failed to get region: %w", err)
		}
		if r.IsDefault {
			if _, err := tx.Exec(`UPDATE machine_regions SET is_default = 0 WHERE site_id = ? AND id != ?`, r.SiteID, r.ID); err != nil {
				return fmt.Errorf("failed to clear default region: %w", err)
			}
		}
		if _, err := tx.Exec(`
			UPDATE machine_regions
			SET name = ?, icon = ?, x = ?, y = ?, width = ?, height = ?, is_default = ?, display_order = ?
			WHERE id = ?`,
			r.Name, r.Icon, r.X, r.Y, r.Width, r.Height, boolInt(r.IsDefault), r.DisplayOrder, r.ID,
		); err != nil {
			return fmt.Errorf("failed to update region: %w", err)
		}
		return nil
	})
}

// DeleteRegion removes a region.
func (db *DB) DeleteRegion(id int) error {
	result, err := db.DB.Exec(`DELETE FROM machine_regions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete region: %w", err)
	}
	return expectOneRow(result, "region", id)
}

// ReorderRegions assigns display_order 0..n-1 following ids. Every id must
// belong to siteID.
func (db *DB) ReorderRegions(siteID int, ids []int) error {
	return db.inTx(func(tx *sql.Tx) error {
		for i, id := range ids {
			result, err := tx.Exec(`UPDATE machine_regions SET display_order = ? WHERE id = ? AND site_id = ?`, i, id, siteID)
			if err != nil {
				return fmt.Errorf("failed to reorder regions: %w", err)
			}
			if err := expectOneRow(result, "region", id); err != nil {
				return err
			}
		}
		return nil
	})
}

// inTx runs fn in a transaction, committing when it returns nil.
func (db *DB) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
