// Package frame decodes, fetches and encodes single camera frames.
package frame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/banshee-data/virtual.ptz/internal/httputil"
)

// Limits on accepted frames.
const (
	MaxBytes  = 20 << 20
	MaxPixels = 8192 * 8192

	DefaultJPEGQuality = 90
)

var (
	// ErrTooLarge is returned for frames above MaxBytes or MaxPixels.
	ErrTooLarge = errors.New("frame too large")
	// ErrEmpty is returned for an empty body.
	ErrEmpty = errors.New("empty frame")
)

// Decode reads one still image in any registered format. The header is
// checked against MaxPixels before pixel data is decoded.
func Decode(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read frame: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes is Decode for an in-memory frame.
func DecodeBytes(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmpty
	}
	if len(data) > MaxBytes {
		return nil, "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, MaxBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("unsupported image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", ErrEmpty
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s: %w", format, err)
	}
	return img, format, nil
}

// Fetch downloads and decodes a snapshot from url.
func Fetch(ctx context.Context, c httputil.HTTPClient, url string) (image.Image, error) {
	resp, err := httputil.Get(ctx, c, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch snapshot: HTTP %d", resp.StatusCode)
	}

	data, err := httputil.ReadBody(resp, MaxBytes)
	if errors.Is(err, httputil.ErrBodyTooLarge) {
		return nil, fmt.Errorf("%w: %w", ErrTooLarge, err)
	}
	if err != nil {
		return nil, err
	}
	img, _, err := DecodeBytes(data)
	return img, err
}

// EncodeJPEG writes img as a JPEG. A quality outside 1..100 uses
// DefaultJPEGQuality.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// Fit scales img down so that it is at most maxWidth pixels wide, keeping
// the aspect ratio. Smaller images and a non-positive maxWidth are returned
// unchanged.
func Fit(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
