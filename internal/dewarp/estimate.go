package dewarp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/virtual.ptz/internal/geometry"
)

// Bounds of the estimate. These are part of the persisted-data contract and
// are not tunable.
const (
	MinK1   = -0.35
	MaxK1   = 0.0
	K2Ratio = 0.08

	// EnableThreshold is the |k1| above which correction is switched on.
	EnableThreshold = 0.05

	// longSegmentPx is the absolute length a segment needs to count as long
	// for the confidence score.
	longSegmentPx = 150
)

// EstimatorWeights are the empirically chosen heuristics used to turn a set of
// line segments into a k1 estimate. DefaultWeights reproduces the values
// existing calibrations were made with.
type EstimatorWeights struct {
	EdgeDistMin     float64 // segments further than this from centre are "edge" segments
	EdgeDistGate    float64 // mean edge distance must exceed this to contribute
	EdgeDistDefault float64 // mean edge distance used when no segment qualifies
	EdgeDistWeight  float64

	SpreadTopN          int
	SpreadMinDegrees    float64
	SpreadLongestFrac   float64 // fraction of frame width the longest segment must exceed
	SpreadPenalty       float64
	VarianceTopN        int
	VarianceGate        float64
	VarianceWeight      float64
	CoverageMinPerGroup int
	CoverageBoost       float64
}

// DefaultWeights returns the stock heuristic weights.
func DefaultWeights() EstimatorWeights {
	return EstimatorWeights{
		EdgeDistMin:     0.3,
		EdgeDistGate:    0.4,
		EdgeDistDefault: 0.5,
		EdgeDistWeight:  0.08,

		SpreadTopN:          15,
		SpreadMinDegrees:    30,
		SpreadLongestFrac:   0.15,
		SpreadPenalty:       0.05,
		VarianceTopN:        20,
		VarianceGate:        0.3,
		VarianceWeight:      0.03,
		CoverageMinPerGroup: 3,
		CoverageBoost:       1.2,
	}
}

// Estimate is the outcome of analysing a set of line segments.
type Estimate struct {
	K1          float64
	K2          float64
	Confidence  int
	Horizontal  int
	Vertical    int
	AvgEdgeDist float64
}

// EstimateDistortion derives k1/k2 and a confidence score from segments that
// are already sorted longest first. frameWidth is in pixels.
func EstimateDistortion(lines []geometry.LineSegment, frameWidth float64, w EstimatorWeights) Estimate {
	if len(lines) == 0 {
		return Estimate{}
	}

	var horizontal, vertical int
	for _, l := range lines {
		if l.IsHorizontal() {
			horizontal++
		}
		if l.IsVertical() {
			vertical++
		}
	}

	avgEdgeDist := meanEdgeDistance(lines, w.EdgeDistMin, w.EdgeDistDefault)

	lengths := make([]float64, 0, w.VarianceTopN)
	for _, l := range geometry.Head(lines, w.VarianceTopN) {
		lengths = append(lengths, l.Length)
	}
	normalizedSpread := 0.0
	if mean, std := stat.PopMeanStdDev(lengths, nil); mean > 0 {
		normalizedSpread = std / mean
	}

	angleSpread := geometry.AngleSpread(geometry.Head(lines, w.SpreadTopN))

	k1 := 0.0
	if avgEdgeDist > w.EdgeDistGate {
		k1 -= w.EdgeDistWeight * avgEdgeDist
	}
	if angleSpread > w.SpreadMinDegrees && lines[0].Length > frameWidth*w.SpreadLongestFrac {
		k1 -= w.SpreadPenalty
	}
	if normalizedSpread > w.VarianceGate {
		k1 -= w.VarianceWeight * normalizedSpread
	}
	if horizontal >= w.CoverageMinPerGroup && vertical >= w.CoverageMinPerGroup {
		k1 *= w.CoverageBoost
	}

	k1 = roundCoefficient(math.Max(MinK1, math.Min(MaxK1, k1)))

	return Estimate{
		K1:          k1,
		K2:          K2Ratio * k1,
		Confidence:  confidenceScore(lines, horizontal, vertical, avgEdgeDist),
		Horizontal:  horizontal,
		Vertical:    vertical,
		AvgEdgeDist: avgEdgeDist,
	}
}

func meanEdgeDistance(lines []geometry.LineSegment, minDist, fallback float64) float64 {
	var sum float64
	var n int
	for _, l := range lines {
		if l.DistFromCenter > minDist {
			sum += l.DistFromCenter
			n++
		}
	}
	if n == 0 {
		return fallback
	}
	return sum / float64(n)
}

// roundCoefficient keeps three decimals, the precision stored with a site.
// NaN (never produced by the clamp above) is mapped to zero.
func roundCoefficient(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Round(v*1000) / 1000
}

// confidenceScore is an additive 0-100 quality score.
func confidenceScore(lines []geometry.LineSegment, horizontal, vertical int, avgEdgeDist float64) int {
	score := 0

	switch n := len(lines); {
	case n >= 20:
		score += 30
	case n >= 10:
		score += 20
	case n >= 5:
		score += 10
	}

	switch {
	case horizontal >= 3 && vertical >= 3:
		score += 25
	case horizontal >= 2 || vertical >= 2:
		score += 15
	}

	switch {
	case avgEdgeDist > 0.5:
		score += 20
	case avgEdgeDist > 0.3:
		score += 10
	}

	long := 0
	for _, l := range lines {
		if l.Length > longSegmentPx {
			long++
		}
	}
	switch {
	case long >= 5:
		score += 25
	case long >= 2:
		score += 15
	}

	return min(score, 100)
}

// ConfidenceMessage summarises an estimate for the operator.
func ConfidenceMessage(confidence int, k1 float64) string {
	var level string
	switch d := math.Abs(k1); {
	case d < 0.05:
		level = "minimal distortion detected"
	case d < 0.15:
		level = "mild fisheye detected"
	case d < 0.25:
		level = "moderate fisheye detected"
	default:
		level = "strong fisheye detected"
	}

	switch {
	case confidence >= 80:
		return fmt.Sprintf("High confidence: %s", level)
	case confidence >= 50:
		return fmt.Sprintf("Medium confidence: %s. You may want to fine-tune.", level)
	default:
		return fmt.Sprintf("Low confidence: %s. Consider manual adjustment.", level)
	}
}
