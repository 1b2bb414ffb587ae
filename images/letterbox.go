package images

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

// ErrEmptyFrame is returned when a frame has no pixels to letterbox.
var ErrEmptyFrame = errors.New("frame has zero width or height")

// Transform records how a source frame was placed inside a square letterbox canvas.
//
// It is produced once per frame by the preprocessor and consumed by Remap for
// that same frame. The zero value is not a valid transform.
type Transform struct {
	// Scale is the uniform factor applied to the source frame.
	Scale float32 `json:"scale" yaml:"scale"`
	// PadX is the left padding in canvas pixels.
	PadX int `json:"pad_x" yaml:"pad_x"`
	// PadY is the top padding in canvas pixels.
	PadY int `json:"pad_y" yaml:"pad_y"`
	// ScaledWidth is round(W * Scale).
	ScaledWidth int `json:"scaled_width" yaml:"scaled_width"`
	// ScaledHeight is round(H * Scale).
	ScaledHeight int `json:"scaled_height" yaml:"scaled_height"`
	// Size is the side of the square canvas.
	Size int `json:"size" yaml:"size"`
}

// NewTransform computes the letterbox placement of a width x height frame on a size x size canvas.
//
// scale = min(S/W, S/H), sw = round(W*scale), sh = round(H*scale),
// padX = floor((S-sw)/2), padY = floor((S-sh)/2).
//
// Arguments:
//   - width: The source frame width.
//   - height: The source frame height.
//   - size: The square target size S.
//
// Returns:
//   - Transform: The placement.
//   - error: ErrEmptyFrame for zero-area frames, or an error for a non-positive size.
//
// Example:
//
// ```go
//
//	t, _ := NewTransform(1280, 720, 640)
//	// t.Scale == 0.5, t.ScaledWidth == 640, t.ScaledHeight == 360, t.PadX == 0, t.PadY == 140
//
// ```
func NewTransform(width, height, size int) (Transform, error) {
	if width <= 0 || height <= 0 {
		return Transform{}, fmt.Errorf("%w: %dx%d", ErrEmptyFrame, width, height)
	}
	if size <= 0 {
		return Transform{}, fmt.Errorf("invalid letterbox size: %d", size)
	}

	s := float32(size)
	scale := math32.Min(s/float32(width), s/float32(height))

	// Extreme aspect ratios can round one side to zero; keep at least one pixel row.
	sw := max(1, int(math32.Round(float32(width)*scale)))
	sh := max(1, int(math32.Round(float32(height)*scale)))

	return Transform{
		Scale:        scale,
		PadX:         (size - sw) / 2,
		PadY:         (size - sh) / 2,
		ScaledWidth:  sw,
		ScaledHeight: sh,
		Size:         size,
	}, nil
}

// Apply maps a source-frame point onto the letterbox canvas.
func (t Transform) Apply(x, y float32) (float32, float32) {
	return x*t.Scale + float32(t.PadX), y*t.Scale + float32(t.PadY)
}

// Invert maps a letterbox canvas point back onto the source frame.
//
// Padding is removed before the scale is reversed. No clamping is applied.
func (t Transform) Invert(x, y float32) (float32, float32) {
	return (x - float32(t.PadX)) / t.Scale, (y - float32(t.PadY)) / t.Scale
}

// Remap converts a box from letterbox canvas coordinates to source-frame coordinates.
//
// The top-left corner is clamped to be non-negative. There is no upper clamp;
// clipping to the visible surface belongs to the renderer.
//
// Arguments:
//   - r: The box in canvas (tensor) coordinates.
//
// Returns:
//   - Rect: The box in source-frame pixel coordinates.
func (t Transform) Remap(r Rect) Rect {
	x1, y1 := t.Invert(r.X1, r.Y1)
	x2, y2 := t.Invert(r.X2, r.Y2)
	return Rect{
		X1: math32.Max(0, x1),
		Y1: math32.Max(0, y1),
		X2: x2,
		Y2: y2,
	}
}
