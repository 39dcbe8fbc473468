package monitor

import (
	"fmt"
	"image/color"
	"math"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/virtual.ptz/internal/db"
	"github.com/banshee-data/virtual.ptz/internal/dewarp"
	"github.com/banshee-data/virtual.ptz/internal/geometry"
	"github.com/banshee-data/virtual.ptz/internal/httputil"
	"github.com/banshee-data/virtual.ptz/internal/security"
)

// maxRadius is the normalised distance from the principal point to the
// farthest frame corner. The camera model uses the frame width as focal
// length, so radii are in units of frame width.
func maxRadius(p dewarp.Params, frame geometry.Size) float64 {
	p = p.Normalized()
	dx := math.Max(p.CX, 1-p.CX) * frame.Width
	dy := math.Max(p.CY, 1-p.CY) * frame.Height
	return math.Hypot(dx, dy) / frame.Width
}

// radialScale is the factor the distortion model applies at radius r.
func radialScale(p dewarp.Params, r float64) float64 {
	r2 := r * r
	return 1 + p.K1*r2 + p.K2*r2*r2
}

// ProfilePlot plots the radial scale 1 + k1 r^2 + k2 r^4 from the principal
// point out to the farthest corner of frame.
func ProfilePlot(p dewarp.Params, frame geometry.Size) *plot.Plot {
	if !frame.Valid() {
		frame = geometry.DefaultSourceFrame
	}
	rmax := maxRadius(p, frame)

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Radial distortion k1=%.3f k2=%.3f", p.K1, p.K2)
	pl.X.Label.Text = "radius (frame widths)"
	pl.Y.Label.Text = "scale"
	pl.X.Min, pl.X.Max = 0, rmax
	pl.Add(plotter.NewGrid())

	identity := plotter.NewFunction(func(float64) float64 { return 1 })
	identity.XMin, identity.XMax = 0, rmax
	identity.Color = color.RGBA{R: 158, G: 158, B: 158, A: 255}
	identity.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	model := plotter.NewFunction(func(r float64) float64 { return radialScale(p, r) })
	model.XMin, model.XMax = 0, rmax
	model.Samples = 100
	model.Color = color.RGBA{R: 255, G: 82, B: 82, A: 255}
	model.Width = vg.Points(2)

	pl.Add(identity, model)
	pl.Legend.Add("none", identity)
	pl.Legend.Add("model", model)
	pl.Legend.Top = false
	return pl
}

// handleProfile renders the stored lens model of a site as a PNG. With
// download=1 the image is offered as a file named after the site.
func (c *Charts) handleProfile(w http.ResponseWriter, r *http.Request) {
	site, ok := c.site(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", security.AttachmentDisposition("dewarp-profile", site.Name, "png"))
	}
	writeProfile(w, site)
}

func writeProfile(w http.ResponseWriter, site *db.Site) {
	wt, err := ProfilePlot(site.Dewarp, site.StreamSize()).WriterTo(8*vg.Inch, 4.5*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}
