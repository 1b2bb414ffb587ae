package capture

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// CascadeDetector finds regions with an OpenCV Haar/LBP cascade, such as
// haarcascade_frontalface_default.xml.
type CascadeDetector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	closed     bool
}

// NewCascadeDetector loads a cascade file.
//
// Arguments:
//   - path: The cascade XML file.
//
// Returns:
//   - *CascadeDetector: The detector.
//   - error: If the file cannot be loaded.
func NewCascadeDetector(path string) (*CascadeDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("error reading cascade file: %s", path)
	}
	return &CascadeDetector{classifier: classifier}, nil
}

// DetectRegions converts the frame to grayscale and runs multi-scale detection.
func (d *CascadeDetector) DetectRegions(img image.Image) ([]image.Rectangle, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("cascade detector is closed")
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	rects := d.classifier.DetectMultiScale(gray)

	// Results are relative to the Mat; shift them back into frame coordinates.
	offset := img.Bounds().Min
	for i := range rects {
		rects[i] = rects[i].Add(offset)
	}
	return rects, nil
}

// Ready reports whether the cascade is loaded.
func (d *CascadeDetector) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.classifier.Close()
}
