package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/virtual.ptz/internal/dewarp"
)

// Calibration sources.
const (
	CalibrationDetected = "detected"
	CalibrationManual   = "manual"
	CalibrationPreset   = "preset"
)

// Calibration is one confirmed set of lens parameters, kept as history.
type Calibration struct {
	ID            string        `json:"id"`
	SiteID        int           `json:"site_id"`
	Source        string        `json:"source"`
	Params        dewarp.Params `json:"params"`
	Confidence    *int          `json:"confidence,omitempty"`
	LinesDetected *int          `json:"lines_detected,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ConfirmCalibration stores c.Params on the site and appends c to the
// calibration history in one transaction. ID and CreatedAt are assigned.
func (db *DB) ConfirmCalibration(c *Calibration) error {
	if err := c.Params.Validate(); err != nil {
		return invalid(err)
	}
	switch c.Source {
	case CalibrationDetected, CalibrationManual, CalibrationPreset:
	case "":
		c.Source = CalibrationManual
	default:
		return invalid(fmt.Errorf("unknown calibration source %q", c.Source))
	}

	return db.inTx(func(tx *sql.Tx) error {
		return db.confirmTx(tx, c)
	})
}

// ApplyCameraType switches a site to camera type t and stores the type's
// preset lens parameters as a preset calibration.
func (db *DB) ApplyCameraType(siteID int, t dewarp.CameraType) (*Calibration, error) {
	preset, err := dewarp.PresetFor(t)
	if err != nil {
		return nil, err
	}
	c := &Calibration{SiteID: siteID, Source: CalibrationPreset, Params: preset.Params}
	err = db.inTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`UPDATE sites SET camera_type = ? WHERE id = ?`, string(preset.Type), siteID)
		if err != nil {
			return fmt.Errorf("failed to set camera type: %w", err)
		}
		if err := expectOneRow(result, "site", siteID); err != nil {
			return err
		}
		return db.confirmTx(tx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (db *DB) confirmTx(tx *sql.Tx, c *Calibration) error {
	now := db.now()
	p := c.Params
	result, err := tx.Exec(`
		UPDATE sites SET enable_dewarp = ?, dewarp_cx = ?, dewarp_cy = ?, dewarp_k1 = ?, dewarp_k2 = ?, updated_at = ?
		WHERE id = ?`,
		boolInt(p.Enabled), p.CX, p.CY, p.K1, p.K2, now, c.SiteID,
	)
	if err != nil {
		return fmt.Errorf("failed to set dewarp params: %w", err)
	}
	if err := expectOneRow(result, "site", c.SiteID); err != nil {
		return err
	}

	id := uuid.NewString()
	if _, err := tx.Exec(`
		INSERT INTO dewarp_calibrations (
			calibration_id, site_id, source, enable_dewarp, cx, cy, k1, k2,
			confidence, lines_detected, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, c.SiteID, c.Source, boolInt(p.Enabled), p.CX, p.CY, p.K1, p.K2,
		c.Confidence, c.LinesDetected, now,
	); err != nil {
		return fmt.Errorf("failed to record calibration: %w", err)
	}
	c.ID = id
	c.CreatedAt = time.Unix(now, 0)
	return nil
}

// ListCalibrations returns up to limit calibrations of a site, newest first.
// A non-positive limit returns all of them.
func (db *DB) ListCalibrations(siteID, limit int) ([]Calibration, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.DB.Query(`
		SELECT calibration_id, site_id, source, enable_dewarp, cx, cy, k1, k2,
			confidence, lines_detected, created_at
		FROM dewarp_calibrations
		WHERE site_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list calibrations: %w", err)
	}
	defer rows.Close()

	out := []Calibration{}
	for rows.Next() {
		var c Calibration
		var enable int
		var confidence, lines sql.NullInt64
		var created int64
		if err := rows.Scan(&c.ID, &c.SiteID, &c.Source, &enable, &c.Params.CX, &c.Params.CY,
			&c.Params.K1, &c.Params.K2, &confidence, &lines, &created); err != nil {
			return nil, fmt.Errorf("failed to scan calibration: %w", err)
		}
		c.Params.Enabled = enable == 1
		if confidence.Valid {
			v := int(confidence.Int64)
			c.Confidence = &v
		}
		if lines.Valid {
			v := int(lines.Int64)
			c.LinesDetected = &v
		}
		c.CreatedAt = time.Unix(created, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}
