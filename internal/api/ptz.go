package api

import (
	"net/http"

	"github.com/banshee-data/virtual.ptz/internal/httputil"
	"github.com/banshee-data/virtual.ptz/internal/ptz"
)

// DefaultPTZSpeed is used when a move request omits speed.
const DefaultPTZSpeed = 0.5

type ptzRequest struct {
	Action    string   `json:"action"`
	Direction string   `json:"direction"`
	Speed     *float64 `json:"speed"`
}

// movePTZ starts a continuous move or stops the motors. The client sends
// stop when the control is released; the device safety timeout covers a
// lost stop.
func (s *Server) movePTZ(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ptzRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var dir ptz.Direction
	switch req.Action {
	case "stop":
		dir = ptz.Stop
	case "move", "":
		var err error
		if dir, err = ptz.ParseDirection(req.Direction); err != nil {
			writeError(w, err)
			return
		}
	default:
		httputil.BadRequest(w, "action must be move or stop")
		return
	}

	speed := DefaultPTZSpeed
	if req.Speed != nil {
		speed = *req.Speed
	}
	if err := s.ptz.Move(r.Context(), id, dir, speed); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteDataOK(w, map[string]interface{}{
		"site_id":   id,
		"direction": dir,
	})
}
