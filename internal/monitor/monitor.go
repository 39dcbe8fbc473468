// Package monitor serves debug-only chart pages for lens calibration: the
// calibration history of a site and the radial profile of its stored
// distortion model.
package monitor

import (
	"fmt"
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/banshee-data/virtual.ptz/internal/db"
	"github.com/banshee-data/virtual.ptz/internal/httputil"
)

// Store is the subset of the database the charts read.
type Store interface {
	GetSite(id int) (*db.Site, error)
	ListCalibrations(siteID, limit int) ([]db.Calibration, error)
}

// Charts renders calibration debug pages.
type Charts struct {
	store Store
}

func NewCharts(store Store) *Charts {
	return &Charts{store: store}
}

// AttachAdminRoutes mounts the chart pages under /debug/.
func (c *Charts) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("calibration-history", "Calibration history chart (?site_id=N)", c.handleHistory)
	debug.HandleFunc("dewarp-profile", "Radial distortion profile PNG (?site_id=N)", c.handleProfile)
}

// site loads the site named by the site_id query parameter, writing the
// error response itself when that fails.
func (c *Charts) site(w http.ResponseWriter, r *http.Request) (*db.Site, bool) {
	raw := r.URL.Query().Get("site_id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		httputil.BadRequest(w, fmt.Sprintf("invalid site_id %q", raw))
		return nil, false
	}
	site, err := c.store.GetSite(id)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return nil, false
	}
	return site, true
}
