package dewarp

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"gocv.io/x/gocv"
)

// toRGBA returns img as a zero-origin *image.RGBA, copying only when needed.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == 4*rgba.Rect.Dx() {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// matFromImage converts img to an 8-bit BGR Mat. The caller must Close it.
func matFromImage(img image.Image) (gocv.Mat, error) {
	rgba := toRGBA(img)
	b := rgba.Bounds()
	if b.Empty() {
		return gocv.NewMat(), errors.New("empty frame")
	}

	raw, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to convert frame: %w", err)
	}
	defer raw.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(raw, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}

// imageFromMat converts an 8-bit BGR Mat back to an *image.RGBA.
func imageFromMat(bgr gocv.Mat) (*image.RGBA, error) {
	if bgr.Empty() {
		return nil, errors.New("empty mat")
	}
	rgbaMat := gocv.NewMat()
	defer rgbaMat.Close()
	gocv.CvtColor(bgr, &rgbaMat, gocv.ColorBGRToRGBA)

	w, h := rgbaMat.Cols(), rgbaMat.Rows()
	pix := rgbaMat.ToBytes()
	if len(pix) != w*h*4 {
		return nil, fmt.Errorf("unexpected buffer size %d for %dx%d frame", len(pix), w, h)
	}
	return &image.RGBA{Pix: pix, Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}, nil
}
