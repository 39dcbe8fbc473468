// Package geometry maps calibrated regions of a fixed wide camera frame onto a
// viewport ("virtual PTZ") and holds the line-segment helpers shared by the
// lens-distortion estimator.
package geometry

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultSourceFrame is the logical resolution every region is expressed in.
var DefaultSourceFrame = Size{Width: 1920, Height: 1080}

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Aspect returns width/height. Callers must check Valid first.
func (s Size) Aspect() float64 {
	return s.Width / s.Height
}

func (s Size) String() string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

// ParseSize parses a "WIDTHxHEIGHT" string such as "2560x1440".
func ParseSize(s string) (Size, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return Size{}, fmt.Errorf("invalid size %q: expected WIDTHxHEIGHT", s)
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Size{}, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Size{}, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	size := Size{Width: w, Height: h}
	if !size.Valid() {
		return Size{}, fmt.Errorf("invalid size %q: dimensions must be positive", s)
	}
	return size, nil
}

// Rect is an axis-aligned rectangle. X/Y is the top-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the rectangle's centre point.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Region is a named, calibrated area of the source frame that the viewer can
// zoom to.
type Region struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Icon         string  `json:"icon"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	IsDefault    bool    `json:"is_default"`
	DisplayOrder int     `json:"display_order"`
}

// Rect returns the region's bounding box.
func (r Region) Rect() Rect {
	return Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

// ClampTo clips the region's bounding box to the given frame. A box that lies
// entirely outside the frame collapses to zero width or height on that axis;
// ComputeTransform then applies its degenerate-dimension policy.
func (r Region) ClampTo(frame Size) Rect {
	x0 := clamp(r.X, 0, frame.Width)
	y0 := clamp(r.Y, 0, frame.Height)
	x1 := clamp(r.X+r.Width, 0, frame.Width)
	y1 := clamp(r.Y+r.Height, 0, frame.Height)
	return Rect{X: x0, Y: y0, Width: max(x1-x0, 0), Height: max(y1-y0, 0)}
}

// ViewportTransform is the CSS-style scale/translate that brings a region to
// the centre of the viewport. Translations are percentages of the source
// frame's own dimensions, applied before scaling.
type ViewportTransform struct {
	Scale             float64 `json:"scale"`
	TranslateXPercent float64 `json:"translate_x"`
	TranslateYPercent float64 `json:"translate_y"`
}

// Identity is the full-frame, unzoomed transform.
var Identity = ViewportTransform{Scale: 1}

// Letterbox returns the rectangle the source occupies inside the viewport
// under aspect-preserving fit-within layout. When the viewport is relatively
// wider than the source the video spans the full viewport height and the bars
// are horizontal padding; otherwise it spans the full width.
func Letterbox(source, viewport Size) Rect {
	if !source.Valid() || !viewport.Valid() {
		return Rect{}
	}
	if viewport.Aspect() > source.Aspect() {
		w := viewport.Height * source.Aspect()
		return Rect{X: (viewport.Width - w) / 2, Width: w, Height: viewport.Height}
	}
	h := viewport.Width / source.Aspect()
	return Rect{Y: (viewport.Height - h) / 2, Width: viewport.Width, Height: h}
}

// ComputeTransform returns the transform that makes region fill the displayed
// video as far as possible without overflowing it on either axis, with the
// region's centre at the viewport centre.
//
// A nil region yields Identity. Degenerate inputs never fail: an invalid
// source or viewport yields Identity, and a region dimension that is zero
// after clamping to the source frame is treated as 1px.
func ComputeTransform(region *Region, source, viewport Size) ViewportTransform {
	if region == nil || !source.Valid() || !viewport.Valid() {
		return Identity
	}

	box := region.ClampTo(source)
	if box.Width < 1 {
		box.Width = 1
	}
	if box.Height < 1 {
		box.Height = 1
	}

	video := Letterbox(source, viewport)

	// region size once displayed at the current letterboxed size
	regionDisplayW := box.Width * video.Width / source.Width
	regionDisplayH := box.Height * video.Height / source.Height

	scaleX := video.Width / regionDisplayW
	scaleY := video.Height / regionDisplayH
	scale := min(scaleX, scaleY)

	cx, cy := box.Center()
	return ViewportTransform{
		Scale:             scale,
		TranslateXPercent: ((source.Width/2 - cx) / source.Width) * 100,
		TranslateYPercent: ((source.Height/2 - cy) / source.Height) * 100,
	}
}

// ScaledRegionSize returns the on-screen size of the region after the
// transform is applied, in viewport pixels.
func ScaledRegionSize(region Region, source, viewport Size, t ViewportTransform) Size {
	video := Letterbox(source, viewport)
	if !source.Valid() {
		return Size{}
	}
	box := region.ClampTo(source)
	return Size{
		Width:  max(box.Width, 1) * video.Width / source.Width * t.Scale,
		Height: max(box.Height, 1) * video.Height / source.Height * t.Scale,
	}
}

// ScaleRegion maps a source-frame region onto a canvas of a different size,
// e.g. for drawing region outlines over a preview.
func ScaleRegion(r Rect, source, canvas Size) Rect {
	if !source.Valid() {
		return Rect{}
	}
	sx := canvas.Width / source.Width
	sy := canvas.Height / source.Height
	return Rect{X: r.X * sx, Y: r.Y * sy, Width: r.Width * sx, Height: r.Height * sy}
}

// DefaultRegion returns the first region flagged as default, or nil.
func DefaultRegion(regions []Region) *Region {
	for i := range regions {
		if regions[i].IsDefault {
			return &regions[i]
		}
	}
	return nil
}

// FindRegion returns the region with the given ID, or nil.
func FindRegion(regions []Region, id int) *Region {
	for i := range regions {
		if regions[i].ID == id {
			return &regions[i]
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
