// Package yolov8 - Decoding of anchor-free YOLOv8 style detection outputs.
package yolov8

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-livedetect/images"
	"github.com/nvr-ai/go-livedetect/inference"
	"github.com/nvr-ai/go-livedetect/models/model"
	"github.com/nvr-ai/go-livedetect/models/postprocess"
)

// DefaultConfidenceThreshold keeps candidates whose best class score is at least 0.25.
const DefaultConfidenceThreshold = 0.25

var (
	// ErrInvalidShape is returned for outputs that are not [1, A, B] with at least one class.
	ErrInvalidShape = errors.New("invalid detection output shape")
	// ErrLayoutMismatch is returned when the feature axis does not hold 4 box values plus one score per label.
	ErrLayoutMismatch = errors.New("detection output does not match label count")
)

// Layout tells the decoder which trailing axis enumerates candidates.
type Layout int

const (
	// LayoutAuto picks the larger trailing axis as the candidate axis.
	LayoutAuto Layout = iota
	// LayoutChannelsFirst is [1, 4+C, N]: features on axis 1, candidates on axis 2.
	LayoutChannelsFirst
	// LayoutChannelsLast is [1, N, 4+C]: candidates on axis 1, features on axis 2.
	LayoutChannelsLast
)

// String returns the configuration name of the layout.
func (l Layout) String() string {
	switch l {
	case LayoutChannelsFirst:
		return "channels_first"
	case LayoutChannelsLast:
		return "channels_last"
	default:
		return "auto"
	}
}

// ParseLayout converts a configuration value into a Layout.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return LayoutAuto, nil
	case "channels_first", "nhw", "nchw":
		return LayoutChannelsFirst, nil
	case "channels_last", "nwh", "nhwc":
		return LayoutChannelsLast, nil
	default:
		return LayoutAuto, fmt.Errorf("unknown output layout: %q", s)
	}
}

// Geometry is the resolved interpretation of a detection output shape.
type Geometry struct {
	// Layout is never LayoutAuto once resolved.
	Layout Layout
	// Candidates is the number of candidate boxes.
	Candidates int
	// Features is 4 box values plus one score per class.
	Features int
	// CandidateStride is the distance in values between two consecutive candidates.
	CandidateStride int
	// FeatureStride is the distance in values between two consecutive features of a candidate.
	FeatureStride int
}

// Classes returns the number of class scores per candidate.
func (g Geometry) Classes() int {
	return g.Features - 4
}

// Decoder turns a raw detection tensor into thresholded detections in tensor space.
type Decoder struct {
	// Threshold is the minimum best-class score; equal scores are kept.
	Threshold float32
	// Layout forces the output layout, LayoutAuto applies the size heuristic.
	Layout Layout
	// Labels resolves class names and, when non-empty, fixes the expected class count.
	Labels model.Labels
}

// NewDecoder creates a decoder.
//
// Arguments:
//   - threshold: The confidence threshold, see DefaultConfidenceThreshold.
//   - layout: The output layout, LayoutAuto to infer it.
//   - labels: The ordered label list, nil to infer the class count from the shape.
//
// Returns:
//   - *Decoder: The decoder.
func NewDecoder(threshold float32, layout Layout, labels model.Labels) *Decoder {
	return &Decoder{
		Threshold: threshold,
		Layout:    layout,
		Labels:    labels,
	}
}

// Resolve interprets an output shape.
//
// With LayoutAuto the larger of the two trailing extents is the candidate
// axis; equal extents resolve to LayoutChannelsLast. A model whose candidate
// count is smaller than 4+classes would be misread by the heuristic, which is
// why a known label count is checked against the feature extent.
//
// Arguments:
//   - shape: The output dimensions.
//   - strides: The row-major strides of the output.
//
// Returns:
//   - Geometry: The resolved layout, extents and strides.
//   - error: ErrInvalidShape or ErrLayoutMismatch.
func (d *Decoder) Resolve(shape []int, strides []int) (Geometry, error) {
	if len(shape) != 3 || len(strides) != 3 || shape[0] != 1 {
		return Geometry{}, fmt.Errorf("%w: want [1, A, B], got %v", ErrInvalidShape, shape)
	}

	layout := d.Layout
	if layout == LayoutAuto {
		layout = LayoutChannelsLast
		if shape[2] > shape[1] {
			layout = LayoutChannelsFirst
		}
	}

	g := Geometry{Layout: layout}
	switch layout {
	case LayoutChannelsFirst:
		g.Features, g.Candidates = shape[1], shape[2]
		g.FeatureStride, g.CandidateStride = strides[1], strides[2]
	default:
		g.Candidates, g.Features = shape[1], shape[2]
		g.CandidateStride, g.FeatureStride = strides[1], strides[2]
	}

	if g.Features < 5 {
		return Geometry{}, fmt.Errorf("%w: feature extent %d leaves no class scores", ErrInvalidShape, g.Features)
	}
	if d.Labels != nil && d.Labels.Len() > 0 && g.Classes() != d.Labels.Len() {
		return Geometry{}, fmt.Errorf("%w: %s layout of %v has %d class scores, %d labels configured",
			ErrLayoutMismatch, layout, shape, g.Classes(), d.Labels.Len())
	}
	return g, nil
}

// Decode extracts candidates at or above the threshold.
//
// For every candidate the box (cx, cy, w, h) and the class scores are read
// with a stride; one linear scan yields the best score and the lowest class
// index holding it. Boxes are converted to corners in tensor space, and
// boxes lying entirely left of or above the canvas origin (x2 <= 0 or
// y2 <= 0) are culled before any remapping.
//
// Arguments:
//   - out: The raw model output.
//
// Returns:
//   - []postprocess.Detection: Detections in decode order, boxes in tensor coordinates.
//   - error: ErrInvalidShape or ErrLayoutMismatch.
func (d *Decoder) Decode(out *inference.Output) ([]postprocess.Detection, error) {
	if out == nil {
		return nil, fmt.Errorf("%w: nil output", ErrInvalidShape)
	}

	g, err := d.Resolve(out.Shape(), out.Strides())
	if err != nil {
		return nil, err
	}

	data := out.Data()
	fs := g.FeatureStride
	var detections []postprocess.Detection

	for i := 0; i < g.Candidates; i++ {
		base := i * g.CandidateStride

		scores := base + 4*fs
		classID := 0
		maxConf := math32.Inf(-1)
		for c := 0; c < g.Classes(); c++ {
			// NaN never compares greater, so it cannot hide a later class.
			if v := data[scores+c*fs]; v > maxConf {
				maxConf, classID = v, c
			}
		}

		// Negated so NaN scores are dropped too.
		if !(maxConf >= d.Threshold) {
			continue
		}

		box := images.RectFromCenter(data[base], data[base+fs], data[base+2*fs], data[base+3*fs])
		if box.X2 <= 0 || box.Y2 <= 0 {
			continue
		}

		detections = append(detections, postprocess.Detection{
			Box:        box,
			ClassID:    classID,
			ClassName:  d.label(classID),
			Confidence: maxConf,
		})
	}

	return detections, nil
}

func (d *Decoder) label(idx int) string {
	if d.Labels == nil {
		return fmt.Sprintf("unknown_%d", idx)
	}
	return d.Labels.Label(idx)
}
