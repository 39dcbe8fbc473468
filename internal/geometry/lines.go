package geometry

import (
	"math"
	"sort"
)

// LineSegment is a detected straight edge in frame pixel coordinates.
type LineSegment struct {
	X1, Y1, X2, Y2 float64
	Length         float64
	Angle          float64 // degrees, atan2(dy, dx), in (-180, 180]
	DistFromCenter float64 // midpoint distance from frame centre / half-diagonal, in [0, 1]
}

// NewLineSegment measures the segment between two endpoints in a frame of
// the given size.
func NewLineSegment(x1, y1, x2, y2 float64, frame Size) LineSegment {
	dx := x2 - x1
	dy := y2 - y1

	cx, cy := frame.Width/2, frame.Height/2
	halfDiag := math.Hypot(cx, cy)

	var dist float64
	if halfDiag > 0 {
		midX := (x1 + x2) / 2
		midY := (y1 + y2) / 2
		dist = math.Min(math.Hypot(midX-cx, midY-cy)/halfDiag, 1)
	}

	return LineSegment{
		X1: x1, Y1: y1, X2: x2, Y2: y2,
		Length:         math.Hypot(dx, dy),
		Angle:          math.Atan2(dy, dx) * 180 / math.Pi,
		DistFromCenter: dist,
	}
}

// IsHorizontal reports whether the segment is within 30° of horizontal.
func (l LineSegment) IsHorizontal() bool {
	a := math.Abs(l.Angle)
	return a < 30 || a > 150
}

// IsVertical reports whether the segment is within 30° of vertical.
func (l LineSegment) IsVertical() bool {
	a := math.Abs(l.Angle)
	return a > 60 && a < 120
}

// SortByLength orders segments longest first. Ties keep their input order so
// the result is deterministic.
func SortByLength(lines []LineSegment) {
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Length > lines[j].Length
	})
}

// FoldAngle maps an angle in degrees onto [0, 180), treating a segment and
// its reverse as the same direction.
func FoldAngle(deg float64) float64 {
	a := math.Mod(deg, 180)
	if a < 0 {
		a += 180
	}
	return a
}

// AngleSpread returns max-min of the folded angles. Fewer than two segments
// have no spread.
func AngleSpread(lines []LineSegment) float64 {
	if len(lines) < 2 {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, l := range lines {
		a := FoldAngle(l.Angle)
		lo = math.Min(lo, a)
		hi = math.Max(hi, a)
	}
	return hi - lo
}

// Head returns at most the first n segments.
func Head(lines []LineSegment, n int) []LineSegment {
	if len(lines) <= n {
		return lines
	}
	return lines[:n]
}
