package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/virtual.ptz/internal/db"
	"github.com/banshee-data/virtual.ptz/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// defaultHistoryLimit bounds the number of calibrations charted.
const defaultHistoryLimit = 200

// historyPage builds a page with the k1/k2 trend and the confidence of each
// calibration, oldest first. history is expected newest first.
func historyPage(site *db.Site, history []db.Calibration) *components.Page {
	n := len(history)
	x := make([]string, n)
	k1 := make([]opts.LineData, n)
	k2 := make([]opts.LineData, n)
	conf := make([]opts.BarData, n)
	for i, c := range history {
		j := n - 1 - i
		x[j] = c.CreatedAt.UTC().Format("2006-01-02 15:04:05")
		k1[j] = opts.LineData{Value: c.Params.K1, Name: c.Source}
		k2[j] = opts.LineData{Value: c.Params.K2, Name: c.Source}
		if c.Confidence != nil {
			conf[j] = opts.BarData{Value: *c.Confidence}
		} else {
			// echarts renders "-" as a gap
			conf[j] = opts.BarData{Value: "-"}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Lens Calibration", Width: "100%", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Distortion coefficients", Subtitle: fmt.Sprintf("site=%d %s calibrations=%d", site.ID, site.Name, n)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "coefficient", Max: 0}),
	)
	line.SetXAxis(x).
		AddSeries("k1", k1).
		AddSeries("k2", k2)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Detection confidence"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "%", Min: 0, Max: 100}),
	)
	bar.SetXAxis(x).AddSeries("confidence", conf)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(line, bar)
	return page
}

// handleHistory renders the calibration history of a site as HTML.
// Query params:
//   - site_id (required)
//   - limit (optional; default 200)
func (c *Charts) handleHistory(w http.ResponseWriter, r *http.Request) {
	site, ok := c.site(w, r)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 5000 {
			limit = v
		}
	}

	history, err := c.store.ListCalibrations(site.ID, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := historyPage(site, history).Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
