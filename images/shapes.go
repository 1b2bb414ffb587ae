// Package images - Box geometry and letterbox transforms shared by the pre- and post-processing stages.
package images

import (
	"image"

	"github.com/chewxy/math32"
)

// IoUEpsilon is added to the union area so degenerate (zero-area) boxes never divide by zero.
const IoUEpsilon = 1e-6

// Rect is a corner-form bounding box in floating point pixel coordinates.
//
// The coordinate space depends on the pipeline stage: decoded boxes live in the
// preprocessed tensor space until they are remapped onto the source frame.
type Rect struct {
	X1 float32 `json:"x1" yaml:"x1"`
	Y1 float32 `json:"y1" yaml:"y1"`
	X2 float32 `json:"x2" yaml:"x2"`
	Y2 float32 `json:"y2" yaml:"y2"`
}

// RectFromCenter converts a center-form box (cx, cy, w, h) into corner form.
//
// Arguments:
//   - cx, cy: The box center.
//   - w, h: The box width and height.
//
// Returns:
//   - Rect: The corner-form box.
func RectFromCenter(cx, cy, w, h float32) Rect {
	return Rect{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// Width returns the horizontal extent of the box, or zero for inverted boxes.
func (r Rect) Width() float32 {
	return math32.Max(0, r.X2-r.X1)
}

// Height returns the vertical extent of the box, or zero for inverted boxes.
func (r Rect) Height() float32 {
	return math32.Max(0, r.Y2-r.Y1)
}

// Area returns the area of the box in square pixels.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Rectangle converts the box to an integral image.Rectangle for drawing.
//
// Fractional pixels are truncated, so the result is only suitable for
// rendering, never for further geometry.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(int(r.X1), int(r.Y1), int(r.X2), int(r.Y2)).Canon()
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// IoU = area(r ∩ o) / (area(r ∪ o) + IoUEpsilon)
//
// The intersection is bounded by the larger of the two top-left corners and
// the smaller of the two bottom-right corners; when that region has no
// positive width or height the boxes do not overlap and the result is 0.
// The union uses inclusion-exclusion: area(r) + area(o) - intersection.
//
// Arguments:
//   - r: The first box.
//   - o: The other box.
//
// Returns:
//   - float32: A value in [0, 1). Identical boxes score just under 1 because of the epsilon.
//
// Example:
//
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iou := CalculateIoU(a, b) // 25 / 175 ≈ 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH

	union := r.Area() + o.Area() - inter
	return inter / (union + IoUEpsilon)
}

// LargestRectangle returns the rectangle with the greatest area.
//
// Ties keep the first rectangle seen. The second return value is false when
// rects is empty.
func LargestRectangle(rects []image.Rectangle) (image.Rectangle, bool) {
	if len(rects) == 0 {
		return image.Rectangle{}, false
	}

	best := rects[0]
	bestArea := best.Dx() * best.Dy()
	for _, r := range rects[1:] {
		if area := r.Dx() * r.Dy(); area > bestArea {
			best, bestArea = r, area
		}
	}
	return best, true
}
