package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"mime"
	"net/http"
	"strconv"

	"github.com/banshee-data/virtual.ptz/internal/db"
	"github.com/banshee-data/virtual.ptz/internal/dewarp"
	"github.com/banshee-data/virtual.ptz/internal/frame"
	"github.com/banshee-data/virtual.ptz/internal/httputil"
)

// readFrame loads the frame of a detect or preview request. The body is
// either an encoded image or, with a JSON content type,
// {"snapshot_url": "..."} naming a camera snapshot to download.
func (s *Server) readFrame(w http.ResponseWriter, r *http.Request) (image.Image, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body struct {
			SnapshotURL string `json:"snapshot_url"`
		}
		if !decodeJSON(w, r, &body) {
			return nil, false
		}
		if body.SnapshotURL == "" {
			httputil.BadRequest(w, "snapshot_url is required")
			return nil, false
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.tuning.GetSnapshotTimeout())
		defer cancel()
		img, err := frame.Fetch(ctx, s.snapshots, body.SnapshotURL)
		if err != nil {
			httputil.BadGateway(w, err.Error())
			return nil, false
		}
		return img, true
	}

	img, _, err := frame.Decode(r.Body)
	if err != nil {
		if errors.Is(err, frame.ErrTooLarge) {
			httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
		} else {
			httputil.BadRequest(w, err.Error())
		}
		return nil, false
	}
	return img, true
}

// detect estimates lens parameters from one frame. A failed detection is
// still a 200 with success=false inside the result; nothing is persisted.
func (s *Server) detect(w http.ResponseWriter, r *http.Request) {
	img, ok := s.readFrame(w, r)
	if !ok {
		return
	}
	if !s.acquireWorker(w, r) {
		return
	}
	defer s.releaseWorker()

	httputil.WriteDataOK(w, s.detector.Detect(img))
}

// previewParams starts from the site's stored parameters and applies any of
// the k1, k2, cx, cy query overrides.
func previewParams(r *http.Request, base dewarp.Params) (dewarp.Params, error) {
	p := base
	q := r.URL.Query()
	for name, dst := range map[string]*float64{"k1": &p.K1, "k2": &p.K2, "cx": &p.CX, "cy": &p.CY} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p, fmt.Errorf("invalid %s %q", name, raw)
		}
		*dst = v
	}
	return p, nil
}

// preview returns the uploaded frame corrected with candidate parameters as
// a JPEG, optionally downscaled to max_width.
func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	site, err := s.db.GetSite(id)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := previewParams(r, site.Dewarp)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	maxWidth := 0
	if raw := r.URL.Query().Get("max_width"); raw != "" {
		if maxWidth, err = strconv.Atoi(raw); err != nil || maxWidth < 0 {
			httputil.BadRequest(w, "invalid max_width")
			return
		}
	}

	img, ok := s.readFrame(w, r)
	if !ok {
		return
	}
	if !s.acquireWorker(w, r) {
		return
	}
	defer s.releaseWorker()

	corrected, err := s.correct(img, p)
	if err != nil {
		if errors.Is(err, dewarp.ErrInvalidInput) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to correct frame: %v", err))
		return
	}

	var buf bytes.Buffer
	if err := frame.EncodeJPEG(&buf, frame.Fit(corrected, maxWidth), s.tuning.GetJPEGQuality()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to encode preview: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// confirmRequest persists parameters chosen in the calibration dialog.
type confirmRequest struct {
	Params        dewarp.Params `json:"params"`
	Source        string        `json:"source"`
	Confidence    *int          `json:"confidence"`
	LinesDetected *int          `json:"lines_detected"`
}

func (s *Server) confirmDewarp(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c := &db.Calibration{
		SiteID:        id,
		Source:        req.Source,
		Params:        req.Params,
		Confidence:    req.Confidence,
		LinesDetected: req.LinesDetected,
	}
	if err := s.db.ConfirmCalibration(c); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteDataOK(w, c)
}

func (s *Server) listCalibrations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			httputil.BadRequest(w, "invalid limit")
			return
		}
	}
	if _, err := s.db.GetSite(id); err != nil {
		writeError(w, err)
		return
	}
	history, err := s.db.ListCalibrations(id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteDataOK(w, history)
}

func (s *Server) applyCameraType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		CameraType string `json:"camera_type"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	t, err := dewarp.ParseCameraType(body.CameraType)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.db.ApplyCameraType(id, t)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteDataOK(w, c)
}

func (s *Server) listCameraTypes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteDataOK(w, dewarp.Presets())
}
