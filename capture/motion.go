package capture

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// MotionConfig configures frame-difference motion gating.
type MotionConfig struct {
	// Threshold is the smoothed motion score a frame needs to be admitted.
	Threshold float64 `json:"threshold" yaml:"threshold"`
	// MinContourArea is the minimum area of a contour to be considered motion.
	MinContourArea float64 `json:"min_contour_area" yaml:"min_contour_area"`
	// DifferenceThreshold is the gray level change that marks a pixel as moving.
	DifferenceThreshold float64 `json:"difference_threshold" yaml:"difference_threshold"`
	// BlurKernelSize controls noise reduction, must be odd.
	BlurKernelSize int `json:"blur_kernel_size" yaml:"blur_kernel_size"`
	// HistoryFrames is how many recent scores are averaged.
	HistoryFrames int `json:"history_frames" yaml:"history_frames"`
}

// DefaultMotionConfig returns a default configuration for motion gating.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		Threshold:           0.01,
		MinContourArea:      500.0,
		DifferenceThreshold: 30.0,
		BlurKernelSize:      21,
		HistoryFrames:       5,
	}
}

// MotionDetector scores the change between consecutive frames.
//
// The score is the share of the frame covered by changed contours, smoothed
// over the last HistoryFrames frames with recent frames weighted higher.
type MotionDetector struct {
	config   MotionConfig
	previous gocv.Mat
	history  []float64
	primed   bool
	closed   bool
	mu       sync.Mutex
}

// NewMotionDetector creates a motion detector.
//
// Arguments:
//   - config: The motion configuration; zero fields take the defaults.
//
// Returns:
//   - *MotionDetector: The detector. Close releases its OpenCV buffers.
func NewMotionDetector(config MotionConfig) *MotionDetector {
	def := DefaultMotionConfig()
	if config.MinContourArea <= 0 {
		config.MinContourArea = def.MinContourArea
	}
	if config.DifferenceThreshold <= 0 {
		config.DifferenceThreshold = def.DifferenceThreshold
	}
	if config.BlurKernelSize <= 0 {
		config.BlurKernelSize = def.BlurKernelSize
	}
	if config.BlurKernelSize%2 == 0 {
		config.BlurKernelSize++
	}
	if config.HistoryFrames <= 0 {
		config.HistoryFrames = def.HistoryFrames
	}

	return &MotionDetector{
		config:   config,
		previous: gocv.NewMat(),
		history:  make([]float64, 0, config.HistoryFrames),
	}
}

// Score compares img with the previous frame.
//
// Arguments:
//   - img: The frame to analyze.
//
// Returns:
//   - float64: The smoothed motion score in [0, 1]. The first frame scores 0.
//   - error: If the frame cannot be converted or the detector is closed.
func (d *MotionDetector) Score(img image.Image) (float64, error) {
	if img == nil || img.Bounds().Empty() {
		return 0, errors.New("input image is empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, errors.New("motion detector is closed")
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return 0, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := d.config.BlurKernelSize
	gocv.GaussianBlur(gray, &blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	// A size change restarts the comparison.
	if !d.primed || d.previous.Rows() != blurred.Rows() || d.previous.Cols() != blurred.Cols() {
		blurred.CopyTo(&d.previous)
		d.primed = true
		d.history = d.history[:0]
		return 0, nil
	}

	score := d.difference(blurred)
	blurred.CopyTo(&d.previous)

	d.history = append(d.history, score)
	if len(d.history) > d.config.HistoryFrames {
		d.history = d.history[len(d.history)-d.config.HistoryFrames:]
	}
	return smoothed(d.history), nil
}

// difference measures the contour area that changed since the previous frame.
func (d *MotionDetector) difference(current gocv.Mat) float64 {
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(current, d.previous, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, float32(d.config.DifferenceThreshold), 255, gocv.ThresholdBinary)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	moving := 0.0
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		contour.Close()

		if area >= d.config.MinContourArea {
			moving += area
		}
	}

	frameArea := float64(current.Rows() * current.Cols())
	return math.Min(moving/frameArea, 1.0)
}

// smoothed is the linearly weighted mean of scores, latest weighted highest.
func smoothed(scores []float64) float64 {
	var total, weights float64
	for i, score := range scores {
		w := float64(i + 1)
		total += score * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return total / weights
}

// Admit reports whether the frame moved enough to be worth running through
// the model. The first frame after a reset is always admitted.
func (d *MotionDetector) Admit(img image.Image) (bool, error) {
	d.mu.Lock()
	first := !d.primed
	d.mu.Unlock()

	score, err := d.Score(img)
	if err != nil {
		return false, err
	}
	return first || score >= d.config.Threshold, nil
}

// Reset forgets the previous frame and the score history.
func (d *MotionDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.primed = false
	d.history = d.history[:0]
}

// Close releases the OpenCV buffers.
func (d *MotionDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.previous.Close()
}
