// Package ptz drives the motorised pan/tilt/zoom of network cameras over
// ONVIF, or of analog heads over a Pelco-D serial line. Sessions are opened
// lazily per site, cached, and dropped on the first failure so the next
// command reconnects from scratch.
package ptz

import "errors"

var (
	// ErrConnection means the camera could not be reached or rejected the
	// credentials.
	ErrConnection = errors.New("camera connection failed")

	// ErrProtocol means the camera answered with a fault or a response that
	// could not be understood.
	ErrProtocol = errors.New("camera protocol error")

	ErrInvalidSpeed     = errors.New("speed must be greater than 0 and at most 1")
	ErrUnknownDirection = errors.New("unknown direction")
	ErrNoCamera         = errors.New("site has no camera url")
)
