package ptz

import (
	"fmt"
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/banshee-data/virtual.ptz/internal/httputil"
)

// AttachAdminRoutes mounts session debugging endpoints under /debug/.
func (c *Controller) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("ptz-sessions", "Cached PTZ control sessions", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, c.Sessions())
	})

	// POST site_id=N drops one session so the next command reconnects.
	debug.HandleSilentFunc("ptz-invalidate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		siteID, err := strconv.Atoi(r.FormValue("site_id"))
		if err != nil {
			http.Error(w, "Invalid site_id", http.StatusBadRequest)
			return
		}
		c.Invalidate(siteID)
		fmt.Fprintf(w, "Dropped PTZ session for site %d\n", siteID)
	})
}
