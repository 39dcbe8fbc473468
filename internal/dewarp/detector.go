package dewarp

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/banshee-data/virtual.ptz/internal/geometry"
	"github.com/banshee-data/virtual.ptz/internal/monitoring"
	"github.com/banshee-data/virtual.ptz/internal/timeutil"
)

// MinSegments is the hard floor of detected segments below which no
// estimate is attempted. DetectorConfig may raise it, never lower it.
const MinSegments = 3

// MessageInsufficientEdges is reported when a frame has too few straight edges.
const MessageInsufficientEdges = "insufficient straight edges detected. Try pointing the camera at walls, doorframes, or windows."

// DetectionResult is the outcome of one detection run. A failed run still
// carries default parameters so callers can render it without nil checks.
type DetectionResult struct {
	Success          bool    `json:"success"`
	Params           Params  `json:"params"`
	Confidence       int     `json:"confidence"`
	LinesDetected    int     `json:"lines_detected"`
	Message          string  `json:"message"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// DetectorConfig holds the fixed parameters of the edge and line pipeline.
type DetectorConfig struct {
	BlurKernel     int     // odd Gaussian kernel size
	CannyLow       float32 // hysteresis thresholds
	CannyHigh      float32
	HoughRho       float32 // distance resolution in pixels
	HoughTheta     float32 // angle resolution in radians
	HoughThreshold int     // accumulator votes
	MinLineLength  float32
	MaxLineGap     float32
	MinSegments    int
	Weights        EstimatorWeights
}

// DefaultDetectorConfig returns the stock pipeline settings.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		BlurKernel:     5,
		CannyLow:       50,
		CannyHigh:      150,
		HoughRho:       1,
		HoughTheta:     math.Pi / 180,
		HoughThreshold: 80,
		MinLineLength:  100,
		MaxLineGap:     20,
		MinSegments:    MinSegments,
		Weights:        DefaultWeights(),
	}
}

// Detector runs the distortion estimation pipeline. It holds no per-run
// state and is safe for concurrent use; every run allocates and releases its
// own image buffers.
type Detector struct {
	cfg   DetectorConfig
	clock timeutil.Clock
}

// NewDetector creates a Detector. A nil clock uses the wall clock.
func NewDetector(cfg DetectorConfig, clock timeutil.Clock) *Detector {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	def := DefaultDetectorConfig()
	if cfg.BlurKernel <= 0 || cfg.BlurKernel%2 == 0 {
		cfg.BlurKernel = def.BlurKernel
	}
	// OpenCV asserts on these; a failed assertion aborts in C++ where
	// recover cannot reach it
	if !(cfg.HoughRho > 0) {
		cfg.HoughRho = def.HoughRho
	}
	if !(cfg.HoughTheta > 0) {
		cfg.HoughTheta = def.HoughTheta
	}
	if cfg.HoughThreshold <= 0 {
		cfg.HoughThreshold = def.HoughThreshold
	}
	if !(cfg.CannyLow >= 0) || !(cfg.CannyHigh >= cfg.CannyLow) {
		cfg.CannyLow, cfg.CannyHigh = def.CannyLow, def.CannyHigh
	}
	if cfg.MinSegments < MinSegments {
		cfg.MinSegments = MinSegments
	}
	return &Detector{cfg: cfg, clock: clock}
}

// Detect analyses the straight edges in img and estimates the radial
// distortion coefficients. Failures are reported as a result with Success
// set to false rather than an error. The deferred recover only covers Go
// panics; OpenCV exceptions raised inside cgo calls cannot be recovered, so
// the frame and the config are checked before any Mat is built.
func (d *Detector) Detect(img image.Image) (result DetectionResult) {
	start := d.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			result = failure(fmt.Sprintf("Detection failed: %v", r), 0)
		}
		result.ProcessingTimeMs = float64(d.clock.Since(start).Microseconds()) / 1000
	}()

	if img == nil || img.Bounds().Empty() {
		return failure("Detection failed: empty frame", 0)
	}
	bounds := img.Bounds()
	frame := geometry.Size{Width: float64(bounds.Dx()), Height: float64(bounds.Dy())}

	lines, err := d.extractSegments(img, frame)
	if err != nil {
		return failure(fmt.Sprintf("Detection failed: %v", err), 0)
	}
	monitoring.Logf("dewarp: detected %d line segments in %v frame", len(lines), frame)

	if len(lines) < d.cfg.MinSegments {
		return failure(MessageInsufficientEdges, len(lines))
	}

	return d.estimate(lines, frame)
}

// estimate turns the extracted segments into a successful result.
func (d *Detector) estimate(lines []geometry.LineSegment, frame geometry.Size) DetectionResult {
	geometry.SortByLength(lines)
	est := EstimateDistortion(lines, frame.Width, d.cfg.Weights)

	monitoring.Logf("dewarp: estimated k1=%.4f k2=%.4f confidence=%d%% (h=%d v=%d)",
		est.K1, est.K2, est.Confidence, est.Horizontal, est.Vertical)

	return DetectionResult{
		Success: true,
		Params: Params{
			Enabled: math.Abs(est.K1) > EnableThreshold,
			CX:      0.5,
			CY:      0.5,
			K1:      est.K1,
			K2:      est.K2,
		},
		Confidence:    est.Confidence,
		LinesDetected: len(lines),
		Message:       ConfidenceMessage(est.Confidence, est.K1),
	}
}

func failure(msg string, lines int) DetectionResult {
	return DetectionResult{
		Success:       false,
		Params:        DefaultParams(),
		Confidence:    0,
		LinesDetected: lines,
		Message:       msg,
	}
}

// extractSegments runs grayscale, blur, edge and probabilistic Hough stages
// and returns the measured segments in input order.
func (d *Detector) extractSegments(img image.Image, frame geometry.Size) ([]geometry.LineSegment, error) {
	src, err := matFromImage(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := d.cfg.BlurKernel
	gocv.GaussianBlur(gray, &blurred, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, d.cfg.CannyLow, d.cfg.CannyHigh)

	lines := gocv.NewMat()
	defer lines.Close()
	gocv.HoughLinesPWithParams(edges, &lines,
		d.cfg.HoughRho, d.cfg.HoughTheta, d.cfg.HoughThreshold,
		d.cfg.MinLineLength, d.cfg.MaxLineGap)

	segments := make([]geometry.LineSegment, 0, lines.Rows())
	for i := 0; i < lines.Rows(); i++ {
		v := lines.GetVeciAt(i, 0)
		if len(v) < 4 {
			return nil, fmt.Errorf("malformed line %d: %d components", i, len(v))
		}
		segments = append(segments, geometry.NewLineSegment(
			float64(v[0]), float64(v[1]), float64(v[2]), float64(v[3]), frame))
	}
	return segments, nil
}
