package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/virtual.ptz/internal/dewarp"
	"github.com/banshee-data/virtual.ptz/internal/ptz"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the operator-tunable parameters of detection, PTZ
// control and the API worker pool. Every field is optional; the Get*
// methods supply defaults for omitted ones.
type TuningConfig struct {
	// Edge and line detection
	BlurKernel     *int     `json:"blur_kernel,omitempty"`
	CannyLow       *float64 `json:"canny_low,omitempty"`
	CannyHigh      *float64 `json:"canny_high,omitempty"`
	HoughThreshold *int     `json:"hough_threshold,omitempty"`
	MinLineLength  *float64 `json:"min_line_length,omitempty"`
	MaxLineGap     *float64 `json:"max_line_gap,omitempty"`
	MinSegments    *int     `json:"min_segments,omitempty"`

	// Estimator heuristics
	EdgeDistGate     *float64 `json:"edge_dist_gate,omitempty"`
	EdgeDistWeight   *float64 `json:"edge_dist_weight,omitempty"`
	SpreadMinDegrees *float64 `json:"spread_min_degrees,omitempty"`
	SpreadPenalty    *float64 `json:"spread_penalty,omitempty"`
	VarianceGate     *float64 `json:"variance_gate,omitempty"`
	VarianceWeight   *float64 `json:"variance_weight,omitempty"`
	CoverageBoost    *float64 `json:"coverage_boost,omitempty"`

	// PTZ
	PTZSafetyTimeout    *string `json:"ptz_safety_timeout,omitempty"` // duration string like "30s"
	ONVIFPort           *int    `json:"onvif_port,omitempty"`
	ONVIFRequestTimeout *string `json:"onvif_request_timeout,omitempty"`

	// Frame processing
	DetectionWorkers *int    `json:"detection_workers,omitempty"`
	JPEGQuality      *int    `json:"jpeg_quality,omitempty"`
	SnapshotTimeout  *string `json:"snapshot_timeout,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file fall back to their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded; intended for
// test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.BlurKernel != nil && (*c.BlurKernel <= 0 || *c.BlurKernel%2 == 0) {
		return fmt.Errorf("blur_kernel must be a positive odd number, got %d", *c.BlurKernel)
	}
	if c.GetCannyLow() < 0 || c.GetCannyLow() >= c.GetCannyHigh() {
		return fmt.Errorf("canny_low must be non-negative and below canny_high, got %g/%g", c.GetCannyLow(), c.GetCannyHigh())
	}
	if c.HoughThreshold != nil && *c.HoughThreshold < 1 {
		return fmt.Errorf("hough_threshold must be positive, got %d", *c.HoughThreshold)
	}
	if c.MinLineLength != nil && *c.MinLineLength < 0 {
		return fmt.Errorf("min_line_length must be non-negative, got %g", *c.MinLineLength)
	}
	if c.MaxLineGap != nil && *c.MaxLineGap < 0 {
		return fmt.Errorf("max_line_gap must be non-negative, got %g", *c.MaxLineGap)
	}
	if c.MinSegments != nil && *c.MinSegments < dewarp.MinSegments {
		return fmt.Errorf("min_segments must be at least %d, got %d", dewarp.MinSegments, *c.MinSegments)
	}

	for name, v := range map[string]*float64{
		"edge_dist_gate":     c.EdgeDistGate,
		"edge_dist_weight":   c.EdgeDistWeight,
		"spread_min_degrees": c.SpreadMinDegrees,
		"spread_penalty":     c.SpreadPenalty,
		"variance_gate":      c.VarianceGate,
		"variance_weight":    c.VarianceWeight,
	} {
		if v != nil && (*v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%s must be a finite non-negative number, got %g", name, *v)
		}
	}
	if c.CoverageBoost != nil && (*c.CoverageBoost < 1 || math.IsInf(*c.CoverageBoost, 0)) {
		return fmt.Errorf("coverage_boost must be at least 1, got %g", *c.CoverageBoost)
	}

	for name, v := range map[string]*string{
		"ptz_safety_timeout":    c.PTZSafetyTimeout,
		"onvif_request_timeout": c.ONVIFRequestTimeout,
		"snapshot_timeout":      c.SnapshotTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}
	// the device timeout is sent in whole seconds
	if c.GetPTZSafetyTimeout() < time.Second {
		return fmt.Errorf("ptz_safety_timeout must be at least 1s, got %s", c.GetPTZSafetyTimeout())
	}
	if c.ONVIFPort != nil && (*c.ONVIFPort < 1 || *c.ONVIFPort > 65535) {
		return fmt.Errorf("onvif_port must be between 1 and 65535, got %d", *c.ONVIFPort)
	}

	if c.DetectionWorkers != nil && *c.DetectionWorkers < 1 {
		return fmt.Errorf("detection_workers must be at least 1, got %d", *c.DetectionWorkers)
	}
	if c.JPEGQuality != nil && (*c.JPEGQuality < 1 || *c.JPEGQuality > 100) {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", *c.JPEGQuality)
	}
	return nil
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetBlurKernel returns the blur_kernel value or the default.
func (c *TuningConfig) GetBlurKernel() int {
	if c.BlurKernel == nil {
		return 5
	}
	return *c.BlurKernel
}

// GetCannyLow returns the canny_low value or the default.
func (c *TuningConfig) GetCannyLow() float64 {
	if c.CannyLow == nil {
		return 50
	}
	return *c.CannyLow
}

// GetCannyHigh returns the canny_high value or the default.
func (c *TuningConfig) GetCannyHigh() float64 {
	if c.CannyHigh == nil {
		return 150
	}
	return *c.CannyHigh
}

// GetHoughThreshold returns the hough_threshold value or the default.
func (c *TuningConfig) GetHoughThreshold() int {
	if c.HoughThreshold == nil {
		return 80
	}
	return *c.HoughThreshold
}

// GetMinLineLength returns the min_line_length value or the default.
func (c *TuningConfig) GetMinLineLength() float64 {
	if c.MinLineLength == nil {
		return 100
	}
	return *c.MinLineLength
}

// GetMaxLineGap returns the max_line_gap value or the default.
func (c *TuningConfig) GetMaxLineGap() float64 {
	if c.MaxLineGap == nil {
		return 20
	}
	return *c.MaxLineGap
}

// GetMinSegments returns the min_segments value or the default.
func (c *TuningConfig) GetMinSegments() int {
	if c.MinSegments == nil {
		return dewarp.MinSegments
	}
	return *c.MinSegments
}

// Weights returns the estimator heuristics with configured overrides applied.
func (c *TuningConfig) Weights() dewarp.EstimatorWeights {
	w := dewarp.DefaultWeights()
	override := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	override(&w.EdgeDistGate, c.EdgeDistGate)
	override(&w.EdgeDistWeight, c.EdgeDistWeight)
	override(&w.SpreadMinDegrees, c.SpreadMinDegrees)
	override(&w.SpreadPenalty, c.SpreadPenalty)
	override(&w.VarianceGate, c.VarianceGate)
	override(&w.VarianceWeight, c.VarianceWeight)
	override(&w.CoverageBoost, c.CoverageBoost)
	return w
}

// DetectorConfig builds the detection pipeline settings.
func (c *TuningConfig) DetectorConfig() dewarp.DetectorConfig {
	cfg := dewarp.DefaultDetectorConfig()
	cfg.BlurKernel = c.GetBlurKernel()
	cfg.CannyLow = float32(c.GetCannyLow())
	cfg.CannyHigh = float32(c.GetCannyHigh())
	cfg.HoughThreshold = c.GetHoughThreshold()
	cfg.MinLineLength = float32(c.GetMinLineLength())
	cfg.MaxLineGap = float32(c.GetMaxLineGap())
	cfg.MinSegments = c.GetMinSegments()
	cfg.Weights = c.Weights()
	return cfg
}

// GetPTZSafetyTimeout returns the device-side auto-stop timeout.
func (c *TuningConfig) GetPTZSafetyTimeout() time.Duration {
	return getDuration(c.PTZSafetyTimeout, ptz.DefaultSafetyTimeout)
}

// GetONVIFPort returns the onvif_port value or the default.
func (c *TuningConfig) GetONVIFPort() int {
	if c.ONVIFPort == nil {
		return ptz.DefaultControlPort
	}
	return *c.ONVIFPort
}

// GetONVIFRequestTimeout bounds a single SOAP round trip.
func (c *TuningConfig) GetONVIFRequestTimeout() time.Duration {
	return getDuration(c.ONVIFRequestTimeout, 5*time.Second)
}

// PTZConfig builds the controller settings.
func (c *TuningConfig) PTZConfig() ptz.Config {
	return ptz.Config{
		SafetyTimeout: c.GetPTZSafetyTimeout(),
		ControlPort:   c.GetONVIFPort(),
	}
}

// GetDetectionWorkers returns how many detections or previews may run at once.
func (c *TuningConfig) GetDetectionWorkers() int {
	if c.DetectionWorkers == nil {
		return 2
	}
	return *c.DetectionWorkers
}

// GetJPEGQuality returns the preview encoding quality.
func (c *TuningConfig) GetJPEGQuality() int {
	if c.JPEGQuality == nil {
		return 85
	}
	return *c.JPEGQuality
}

// GetSnapshotTimeout bounds a camera snapshot download.
func (c *TuningConfig) GetSnapshotTimeout() time.Duration {
	return getDuration(c.SnapshotTimeout, 10*time.Second)
}
