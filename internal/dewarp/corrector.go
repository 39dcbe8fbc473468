package dewarp

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrInvalidInput is wrapped by Correct errors caused by the caller's frame
// or parameters rather than by the undistort itself.
var ErrInvalidInput = errors.New("invalid correction input")

// Correct undistorts img with the pinhole plus radial model described by p.
// The camera matrix uses the frame width as focal length and (w*cx, h*cy) as
// principal point, with cx and cy clamped into [0, 1]. The output has the
// input's dimensions and areas with no source pixel are black. Zero
// coefficients return an exact copy.
func Correct(img image.Image, p Params) (*image.RGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidInput)
	}
	p = p.Normalized()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if p.IsIdentity() {
		src := toRGBA(img)
		out := image.NewRGBA(src.Rect)
		copy(out.Pix, src.Pix)
		return out, nil
	}

	src, err := matFromImage(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	w, h := src.Cols(), src.Rows()

	k := cameraMatrix(w, h, p)
	defer k.Close()
	d := distCoeffs(p)
	defer d.Close()

	size := image.Point{X: w, Y: h}
	newK, _ := gocv.GetOptimalNewCameraMatrixWithParams(k, d, size, 1, size, false)
	defer newK.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Undistort(src, &dst, k, d, newK)

	out, err := imageFromMat(dst)
	if err != nil {
		return nil, fmt.Errorf("undistort failed: %w", err)
	}
	return out, nil
}

func cameraMatrix(w, h int, p Params) gocv.Mat {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))
	f := float64(w)
	m.SetDoubleAt(0, 0, f)
	m.SetDoubleAt(1, 1, f)
	m.SetDoubleAt(0, 2, float64(w)*p.CX)
	m.SetDoubleAt(1, 2, float64(h)*p.CY)
	m.SetDoubleAt(2, 2, 1)
	return m
}

// distCoeffs is the 1x5 [k1 k2 p1 p2 k3] vector; tangential and k3 terms are unused.
func distCoeffs(p Params) gocv.Mat {
	m := gocv.NewMatWithSize(1, 5, gocv.MatTypeCV64F)
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))
	m.SetDoubleAt(0, 0, p.K1)
	m.SetDoubleAt(0, 1, p.K2)
	return m
}
