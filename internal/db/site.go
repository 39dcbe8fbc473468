package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/virtual.ptz/internal/dewarp"
	"github.com/banshee-data/virtual.ptz/internal/geometry"
	"github.com/banshee-data/virtual.ptz/internal/ptz"
)

// Site is one camera installation.
type Site struct {
	ID               int               `json:"id"`
	Name             string            `json:"name"`
	Location         string            `json:"location"`
	CameraURL        string            `json:"camera_url"`
	PTZURL           string            `json:"ptz_url"`
	CameraType       dewarp.CameraType `json:"camera_type"`
	StreamResolution string            `json:"stream_resolution"`
	Dewarp           dewarp.Params     `json:"dewarp_params"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// StreamSize is the encoder resolution of the camera stream. It describes the
// pixels the corrector works on; regions are always expressed in
// geometry.DefaultSourceFrame regardless of it.
func (s *Site) StreamSize() geometry.Size {
	size, err := geometry.ParseSize(s.StreamResolution)
	if err != nil {
		return geometry.DefaultSourceFrame
	}
	return size
}

// Validate checks the user-editable fields.
func (s *Site) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("name is required")
	}
	if _, err := dewarp.ParseCameraType(string(s.CameraType)); err != nil {
		return err
	}
	if s.PTZURL != "" {
		if _, err := ptz.ParseCameraURL(s.PTZURL, 0); err != nil {
			return fmt.Errorf("ptz_url: %w", err)
		}
	}
	if s.StreamResolution != "" {
		if _, err := geometry.ParseSize(s.StreamResolution); err != nil {
			return fmt.Errorf("stream_resolution: %w", err)
		}
	}
	if err := s.Dewarp.Validate(); err != nil {
		return fmt.Errorf("dewarp_params: %w", err)
	}
	return nil
}

const siteColumns = `
	id, name, location, camera_url, ptz_url, camera_type, stream_resolution,
	enable_dewarp, dewarp_cx, dewarp_cy, dewarp_k1, dewarp_k2,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSite(row rowScanner) (*Site, error) {
	var s Site
	var cameraType string
	var enable int
	var createdAt, updatedAt int64
	if err := row.Scan(
		&s.ID, &s.Name, &s.Location, &s.CameraURL, &s.PTZURL, &cameraType, &s.StreamResolution,
		&enable, &s.Dewarp.CX, &s.Dewarp.CY, &s.Dewarp.K1, &s.Dewarp.K2,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	s.CameraType = dewarp.CameraType(cameraType)
	s.Dewarp.Enabled = enable == 1
	s.CreatedAt = time.Unix(createdAt, 0)
	s.UpdatedAt = time.Unix(updatedAt, 0)
	return &s, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateSite inserts site and sets its ID and timestamps. An empty camera
// type becomes generic and an empty resolution the default source frame.
func (db *DB) CreateSite(site *Site) error {
	if site.CameraType == "" {
		site.CameraType = dewarp.CameraGeneric
	}
	if site.StreamResolution == "" {
		site.StreamResolution = geometry.DefaultSourceFrame.String()
	}
	if site.Dewarp == (dewarp.Params{}) {
		site.Dewarp = dewarp.DefaultParams()
	}
	if err := site.Validate(); err != nil {
		return invalid(err)
	}

	now := db.now()
	result, err := db.DB.Exec(`
		INSERT INTO sites (
			name, location, camera_url, ptz_url, camera_type, stream_resolution,
			enable_dewarp, dewarp_cx, dewarp_cy, dewarp_k1, dewarp_k2,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		site.Name, site.Location, site.CameraURL, site.PTZURL, string(site.CameraType), site.StreamResolution,
		boolInt(site.Dewarp.Enabled), site.Dewarp.CX, site.Dewarp.CY, site.Dewarp.K1, site.Dewarp.K2,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create site: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	site.ID = int(id)
	site.CreatedAt = time.Unix(now, 0)
	site.UpdatedAt = site.CreatedAt
	return nil
}

// GetSite retrieves a site by ID.
func (db *DB) GetSite(id int) (*Site, error) {
	site, err := scanSite(db.DB.QueryRow(`SELECT `+siteColumns+` FROM sites WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("site %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	return site, nil
}

// ListSites returns all sites, newest first.
func (db *DB) ListSites() ([]Site, error) {
	rows, err := db.DB.Query(`SELECT ` + siteColumns + ` FROM sites ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	sites := []Site{}
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, *s)
	}
	return sites, rows.Err()
}

// UpdateSite overwrites the editable fields of an existing site.
func (db *DB) UpdateSite(site *Site) error {
	if err := site.Validate(); err != nil {
		return invalid(err)
	}
	now := db.now()
	result, err := db.DB.Exec(`
		UPDATE sites SET
			name = ?, location = ?, camera_url = ?, ptz_url = ?, camera_type = ?, stream_resolution = ?,
			enable_dewarp = ?, dewarp_cx = ?, dewarp_cy = ?, dewarp_k1 = ?, dewarp_k2 = ?,
			updated_at = ?
		WHERE id = ?`,
		site.Name, site.Location, site.CameraURL, site.PTZURL, string(site.CameraType), site.StreamResolution,
		boolInt(site.Dewarp.Enabled), site.Dewarp.CX, site.Dewarp.CY, site.Dewarp.K1, site.Dewarp.K2,
		now, site.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}
	if err := expectOneRow(result, "site", site.ID); err != nil {
		return err
	}
	site.UpdatedAt = time.Unix(now, 0)
	return nil
}

// DeleteSite removes a site together with its regions and calibrations.
func (db *DB) DeleteSite(id int) error {
	result, err := db.DB.Exec(`DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	return expectOneRow(result, "site", id)
}

// SetDewarpParams stores confirmed lens parameters for a site.
func (db *DB) SetDewarpParams(siteID int, p dewarp.Params) error {
	if err := p.Validate(); err != nil {
		return invalid(err)
	}
	result, err := db.DB.Exec(`
		UPDATE sites SET enable_dewarp = ?, dewarp_cx = ?, dewarp_cy = ?, dewarp_k1 = ?, dewarp_k2 = ?, updated_at = ?
		WHERE id = ?`,
		boolInt(p.Enabled), p.CX, p.CY, p.K1, p.K2, db.now(), siteID,
	)
	if err != nil {
		return fmt.Errorf("failed to set dewarp params: %w", err)
	}
	return expectOneRow(result, "site", siteID)
}

// ControlURL returns the motor control address of a site: ptz_url when set,
// otherwise the stream URL.
func (db *DB) ControlURL(siteID int) (string, error) {
	var u string
	err := db.DB.QueryRow(`
		SELECT CASE WHEN ptz_url != '' THEN ptz_url ELSE camera_url END
		FROM sites WHERE id = ?`, siteID).Scan(&u)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("site %d: %w", siteID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get control url: %w", err)
	}
	return u, nil
}

// SeedDefaultSite creates a placeholder site when the database has none and
// reports whether it did.
func (db *DB) SeedDefaultSite() (bool, error) {
	var n int
	if err := db.DB.QueryRow(`SELECT COUNT(*) FROM sites`).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count sites: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	site := &Site{
		Name:             "Demo Center Site 1",
		CameraType:       dewarp.CameraGeneric,
		StreamResolution: "2560x1440",
		Dewarp:           dewarp.DefaultParams(),
	}
	if err := db.CreateSite(site); err != nil {
		return false, err
	}
	return true, nil
}

func expectOneRow(result sql.Result, what string, id int) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}
