// Package dewarp estimates and corrects radial (barrel/fisheye) lens
// distortion in captured camera frames.
//
// The estimator and the corrector share one sign convention: a negative k1
// undoes barrel distortion. Parameters produced by Detect are persisted and
// later fed to Correct unchanged, so neither side may change the convention
// on its own.
package dewarp

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Params are the radial distortion coefficients for one camera.
type Params struct {
	Enabled bool    `json:"enable_dewarp"`
	CX      float64 `json:"cx"`
	CY      float64 `json:"cy"`
	K1      float64 `json:"k1"`
	K2      float64 `json:"k2"`
}

// DefaultParams returns centred, zero-coefficient, disabled parameters.
func DefaultParams() Params {
	return Params{CX: 0.5, CY: 0.5}
}

// Normalized returns a copy with the principal point clamped into [0, 1].
func (p Params) Normalized() Params {
	p.CX = clampUnit(p.CX)
	p.CY = clampUnit(p.CY)
	return p
}

// IsIdentity reports whether correcting with p leaves a frame unchanged.
func (p Params) IsIdentity() bool {
	return p.K1 == 0 && p.K2 == 0
}

// Validate rejects parameters that are not finite or whose principal point
// lies outside the frame.
func (p Params) Validate() error {
	if p.CX < 0 || p.CX > 1 {
		return fmt.Errorf("cx must be between 0 and 1, got %f", p.CX)
	}
	if p.CY < 0 || p.CY > 1 {
		return fmt.Errorf("cy must be between 0 and 1, got %f", p.CY)
	}
	for _, k := range []float64{p.K1, p.K2} {
		if math.IsNaN(k) || math.IsInf(k, 0) {
			return errors.New("k1 and k2 must be finite")
		}
	}
	return nil
}

func clampUnit(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CameraType identifies a camera model with a known lens preset.
type CameraType string

const (
	CameraGeneric        CameraType = "generic"
	CameraRTSP           CameraType = "rtsp"
	CameraWebcam         CameraType = "webcam"
	CameraTapoC200       CameraType = "tapo-c200"
	CameraTapoC310       CameraType = "tapo-c310"
	CameraTapoC510W      CameraType = "tapo-c510w"
	CameraWyze           CameraType = "wyze-cam"
	CameraFisheye        CameraType = "fisheye"
	CameraReolinkFisheye CameraType = "reolink-fisheye"
)

// ErrUnknownCameraType is returned for camera types without a preset.
var ErrUnknownCameraType = errors.New("unknown camera type")

// Preset describes the lens correction applied when a camera type is chosen.
type Preset struct {
	Type   CameraType `json:"camera_type"`
	Label  string     `json:"label"`
	Params Params     `json:"params"`
}

var presets = map[CameraType]Preset{
	CameraGeneric:   {Type: CameraGeneric, Label: "Generic IP Camera", Params: DefaultParams()},
	CameraRTSP:      {Type: CameraRTSP, Label: "RTSP Stream (Generic)", Params: DefaultParams()},
	CameraWebcam:    {Type: CameraWebcam, Label: "USB Webcam", Params: DefaultParams()},
	CameraTapoC200:  {Type: CameraTapoC200, Label: "TP-Link Tapo C200/C210", Params: DefaultParams()},
	CameraTapoC310:  {Type: CameraTapoC310, Label: "TP-Link Tapo C310/C320", Params: DefaultParams()},
	CameraTapoC510W: {Type: CameraTapoC510W, Label: "TP-Link Tapo C510W", Params: Params{Enabled: true, CX: 0.5, CY: 0.5, K1: -0.22, K2: -0.02}},
	CameraWyze:      {Type: CameraWyze, Label: "Wyze Cam v3/v4", Params: DefaultParams()},
	CameraFisheye:   {Type: CameraFisheye, Label: "Generic Fisheye (180°)", Params: Params{Enabled: true, CX: 0.5, CY: 0.5, K1: -0.23, K2: -0.02}},
	CameraReolinkFisheye: {
		Type: CameraReolinkFisheye, Label: "Reolink Fisheye",
		Params: Params{Enabled: true, CX: 0.5, CY: 0.5, K1: -0.28, K2: -0.03},
	},
}

// ParseCameraType validates a camera type name. An empty name is generic.
func ParseCameraType(s string) (CameraType, error) {
	t := CameraType(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return CameraGeneric, nil
	}
	if _, ok := presets[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCameraType, s)
	}
	return t, nil
}

// PresetFor returns the lens preset for a camera type.
func PresetFor(t CameraType) (Preset, error) {
	p, ok := presets[t]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownCameraType, t)
	}
	return p, nil
}

// Presets returns every known preset ordered by camera type.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
