// Package api exposes sites, regions, virtual PTZ transforms, lens
// calibration and motor control as a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/banshee-data/virtual.ptz/internal/config"
	"github.com/banshee-data/virtual.ptz/internal/db"
	"github.com/banshee-data/virtual.ptz/internal/dewarp"
	"github.com/banshee-data/virtual.ptz/internal/httputil"
	"github.com/banshee-data/virtual.ptz/internal/ptz"
	"github.com/banshee-data/virtual.ptz/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// Mover sends motor commands to the camera of a site and drops cached
// control sessions when a site's camera changes or goes away.
type Mover interface {
	Move(ctx context.Context, siteID int, dir ptz.Direction, speed float64) error
	Invalidate(siteID int)
	Forget(siteID int)
}

type Server struct {
	db        *db.DB
	ptz       Mover
	detector  *dewarp.Detector
	tuning    *config.TuningConfig
	snapshots httputil.HTTPClient
	workers   *semaphore.Weighted
	correct   func(image.Image, dewarp.Params) (image.Image, error)
}

// NewServer wires the API to its store, motor controller and detector.
// snapshots fetches frames for detection by URL; tuning may be nil.
func NewServer(store *db.DB, mover Mover, detector *dewarp.Detector, snapshots httputil.HTTPClient, tuning *config.TuningConfig) *Server {
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	return &Server{
		db:        store,
		ptz:       mover,
		detector:  detector,
		tuning:    tuning,
		snapshots: snapshots,
		workers:   semaphore.NewWeighted(int64(tuning.GetDetectionWorkers())),
		correct: func(img image.Image, p dewarp.Params) (image.Image, error) {
			return dewarp.Correct(img, p)
		},
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/sites", s.listSites)
	mux.HandleFunc("POST /api/sites", s.createSite)
	mux.HandleFunc("GET /api/sites/{id}", s.getSite)
	mux.HandleFunc("PUT /api/sites/{id}", s.updateSite)
	mux.HandleFunc("DELETE /api/sites/{id}", s.deleteSite)

	mux.HandleFunc("GET /api/sites/{id}/regions", s.listRegions)
	mux.HandleFunc("POST /api/sites/{id}/regions", s.createRegion)
	mux.HandleFunc("PUT /api/sites/{id}/regions/order", s.reorderRegions)
	mux.HandleFunc("PUT /api/regions/{id}", s.updateRegion)
	mux.HandleFunc("DELETE /api/regions/{id}", s.deleteRegion)

	mux.HandleFunc("GET /api/sites/{id}/transform", s.transform)
	mux.HandleFunc("POST /api/sites/{id}/ptz", s.movePTZ)

	mux.HandleFunc("POST /api/dewarp/detect", s.detect)
	mux.HandleFunc("POST /api/sites/{id}/dewarp/preview", s.preview)
	mux.HandleFunc("PUT /api/sites/{id}/dewarp", s.confirmDewarp)
	mux.HandleFunc("GET /api/sites/{id}/calibrations", s.listCalibrations)
	mux.HandleFunc("PUT /api/sites/{id}/camera-type", s.applyCameraType)
	mux.HandleFunc("GET /api/camera-types", s.listCameraTypes)

	mux.HandleFunc("GET /api/version", s.showVersion)
	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteDataOK(w, version.Current())
}

// pathID parses the {id} wildcard. It writes a 400 and returns false when
// the value is not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.PathValue("id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		httputil.BadRequest(w, fmt.Sprintf("invalid id %q", raw))
		return 0, false
	}
	return id, true
}

// decodeJSON reads a JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, db.ErrInvalid),
		errors.Is(err, dewarp.ErrUnknownCameraType),
		errors.Is(err, ptz.ErrInvalidSpeed),
		errors.Is(err, ptz.ErrUnknownDirection):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, ptz.ErrNoCamera):
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ptz.ErrConnection), errors.Is(err, ptz.ErrProtocol):
		httputil.BadGateway(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

// acquireWorker blocks until a frame processing slot is free. It writes a
// 503 and returns false if the client goes away first.
func (s *Server) acquireWorker(w http.ResponseWriter, r *http.Request) bool {
	if err := s.workers.Acquire(r.Context(), 1); err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "request cancelled while waiting for a worker")
		return false
	}
	return true
}

func (s *Server) releaseWorker() {
	s.workers.Release(1)
}
