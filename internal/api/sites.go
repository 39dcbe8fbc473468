package api

import (
	"net/http"
	"strconv"

	"github.com/banshee-data/virtual.ptz/internal/db"
	"github.com/banshee-data/virtual.ptz/internal/geometry"
	"github.com/banshee-data/virtual.ptz/internal/httputil"
)

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.db.ListSites()
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteDataOK(w, sites)
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	site, err := s.db.GetSite(id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteDataOK(w, site)
}

func (s *Server) createSite(w http.ResponseWriter, r *http.Request) {
	var site db.Site
	if !decodeJSON(w, r, &site) {
		return
	}
	site.ID = 0
	if err := s.db.CreateSite(&site); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, site)
}

// updateSite applies the fields present in the body on top of the stored site.
func (s *Server) updateSite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	site, err := s.db.GetSite(id)
	if err != nil {
		writeError(w, err)
		return
	}
	before := *site
	if !decodeJSON(w, r, site) {
		return
	}
	site.ID = id
	if err := s.db.UpdateSite(site); err != nil {
		writeError(w, err)
		return
	}
	if site.CameraURL != before.CameraURL || site.PTZURL != before.PTZURL {
		s.ptz.Invalidate(id)
	}
	httputil.WriteDataOK(w, site)
}

func (s *Server) deleteSite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteSite(id); err != nil {
		writeError(w, err)
		return
	}
	s.ptz.Forget(id)
	httputil.WriteDataOK(w, map[string]int{"id": id})
}

func (s *Server) listRegions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.db.GetSite(id); err != nil {
		writeError(w, err)
		return
	}
	regions, err := s.db.ListRegions(id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteDataOK(w, regions)
}

func (s *Server) createRegion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var region db.Region
	if !decodeJSON(w, r, &region) {
		return
	}
	region.ID = 0
	region.SiteID = id
	if err := s.db.CreateRegion(&region); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, region)
}

func (s *Server) updateRegion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	region, err := s.db.GetRegion(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !decodeJSON(w, r, region) {
		return
	}
	region.ID = id
	if err := s.db.UpdateRegion(region); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteDataOK(w, region)
}

func (s *Server) deleteRegion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteRegion(id); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteDataOK(w, map[string]int{"id": id})
}

func (s *Server) reorderRegions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		RegionIDs []int `json:"region_ids"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := s.db.ReorderRegions(id, body.RegionIDs); err != nil {
		writeError(w, err)
		return
	}
	regions, err := s.db.ListRegions(id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteDataOK(w, regions)
}

// transformResponse is what the viewer needs to zoom a letterboxed video
// element onto a region.
type transformResponse struct {
	Region     *geometry.Region           `json:"region"`
	Source     geometry.Size              `json:"source"`
	Viewport   geometry.Size              `json:"viewport"`
	Video      geometry.Rect              `json:"video"`
	Transform  geometry.ViewportTransform `json:"transform"`
	ScaledSize *geometry.Size             `json:"scaled_size,omitempty"`
	Overlay    *geometry.Rect             `json:"overlay,omitempty"`
}

// transform computes the zoom for a site's region. Without region_id the
// site's default region is used; region_id=0 asks for the full frame.
// An optional canvas=WxH also maps the region outline onto that canvas.
func (s *Server) transform(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	viewport, err := geometry.ParseSize(q.Get("viewport"))
	if err != nil {
		httputil.BadRequest(w, "viewport must be WIDTHxHEIGHT: "+err.Error())
		return
	}

	if _, err := s.db.GetSite(id); err != nil {
		writeError(w, err)
		return
	}
	stored, err := s.db.ListRegions(id)
	if err != nil {
		writeError(w, err)
		return
	}
	regions := make([]geometry.Region, len(stored))
	for i := range stored {
		regions[i] = stored[i].Region
	}

	var region *geometry.Region
	switch raw := q.Get("region_id"); raw {
	case "":
		region = geometry.DefaultRegion(regions)
	case "0":
	default:
		rid, err := strconv.Atoi(raw)
		if err != nil {
			httputil.BadRequest(w, "invalid region_id")
			return
		}
		if region = geometry.FindRegion(regions, rid); region == nil {
			httputil.NotFound(w, "region not found for this site")
			return
		}
	}

	// regions live in the fixed logical frame, not the stream resolution
	source := geometry.DefaultSourceFrame
	resp := transformResponse{
		Region:    region,
		Source:    source,
		Viewport:  viewport,
		Video:     geometry.Letterbox(source, viewport),
		Transform: geometry.ComputeTransform(region, source, viewport),
	}
	if region != nil {
		size := geometry.ScaledRegionSize(*region, source, viewport, resp.Transform)
		resp.ScaledSize = &size
	}
	if c := q.Get("canvas"); c != "" && region != nil {
		canvas, err := geometry.ParseSize(c)
		if err != nil {
			httputil.BadRequest(w, "canvas must be WIDTHxHEIGHT: "+err.Error())
			return
		}
		overlay := geometry.ScaleRegion(region.ClampTo(source), source, canvas)
		resp.Overlay = &overlay
	}
	httputil.WriteDataOK(w, resp)
}
