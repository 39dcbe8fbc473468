// Package testutil provides shared test fixtures: synthetic camera frames
// with known edge content and small assertion helpers for HTTP handlers.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"
)

// Grid bar positions. They fit a 1280x720 frame with margin.
var (
	gridRows = []int{80, 240, 400, 560, 640}
	gridCols = []int{100, 380, 640, 900, 1180}
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// UniformFrame returns a w x h frame filled with c.
func UniformFrame(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// GridFrame draws dark 6px bars on white: five horizontal and five vertical
// long straight edges, enough for the line detector to succeed. Bars that
// fall outside a small frame are clipped away.
func GridFrame(w, h int) *image.RGBA {
	img := UniformFrame(w, h, color.White)
	black := &image.Uniform{C: color.Black}
	for _, y := range gridRows {
		draw.Draw(img, image.Rect(40, y, w-40, y+6), black, image.Point{}, draw.Src)
	}
	for _, x := range gridCols {
		draw.Draw(img, image.Rect(x, 40, x+6, h-40), black, image.Point{}, draw.Src)
	}
	return img
}

// EncodePNG encodes img, failing the test on error.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}
