package images

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCalculateIoU validates the overlap score for representative box pairs.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestCalculateIoU(t *testing.T) {
	tests := []struct {
		name     string
		r1       Rect
		r2       Rect
		expected float32
	}{
		{
			name:     "Identical boxes",
			r1:       Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			r2:       Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			expected: 1,
		},
		{
			name:     "Partial overlap",
			r1:       Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			r2:       Rect{X1: 5, Y1: 5, X2: 15, Y2: 15},
			expected: 25.0 / 175.0,
		},
		{
			name:     "Heavy overlap",
			r1:       Rect{X1: 100, Y1: 100, X2: 200, Y2: 200},
			r2:       Rect{X1: 110, Y1: 110, X2: 210, Y2: 210},
			expected: 8100.0 / 11900.0,
		},
		{
			name:     "Disjoint boxes",
			r1:       Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			r2:       Rect{X1: 20, Y1: 20, X2: 30, Y2: 30},
			expected: 0,
		},
		{
			name:     "Touching edges",
			r1:       Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			r2:       Rect{X1: 10, Y1: 0, X2: 20, Y2: 10},
			expected: 0,
		},
		{
			name:     "Contained box",
			r1:       Rect{X1: 0, Y1: 0, X2: 20, Y2: 20},
			r2:       Rect{X1: 5, Y1: 5, X2: 15, Y2: 15},
			expected: 100.0 / 400.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateIoU(tt.r1, tt.r2)
			assert.InDelta(t, tt.expected, got, 1e-4, "IoU should match expected value")
			assert.InDelta(t, got, CalculateIoU(tt.r2, tt.r1), 1e-7, "IoU should be symmetric")
		})
	}
}

// TestIoU_EdgeCases tests degenerate boxes never produce NaN or leave [0, 1].
func TestIoU_EdgeCases(t *testing.T) {
	tests := []struct {
		name string
		r1   Rect
		r2   Rect
	}{
		{"Zero area rectangle 1", Rect{0, 0, 0, 0}, Rect{0, 0, 100, 100}},
		{"Zero area rectangle 2", Rect{0, 0, 100, 100}, Rect{50, 50, 50, 50}},
		{"Both zero area", Rect{0, 0, 0, 0}, Rect{0, 0, 0, 0}},
		{"Inverted box", Rect{10, 10, 0, 0}, Rect{0, 0, 10, 10}},
		{"Negative coordinates", Rect{-100, -100, 0, 0}, Rect{-50, -50, 50, 50}},
		{"Very large coordinates", Rect{0, 0, 999999, 999999}, Rect{500000, 500000, 999999, 999999}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.r1, tt.r2)
			assert.False(t, result != result, "IoU should never be NaN")
			assert.GreaterOrEqual(t, result, float32(0))
			assert.LessOrEqual(t, result, float32(1))
		})
	}
}

// TestRectFromCenter validates the center-form to corner-form conversion.
func TestRectFromCenter(t *testing.T) {
	r := RectFromCenter(320, 240, 100, 50)

	assert.Equal(t, Rect{X1: 270, Y1: 215, X2: 370, Y2: 265}, r)
	assert.Equal(t, float32(100), r.Width())
	assert.Equal(t, float32(50), r.Height())
	assert.Equal(t, float32(5000), r.Area())
}

// TestRect_Rectangle validates integral conversion used for drawing.
func TestRect_Rectangle(t *testing.T) {
	r := Rect{X1: 10.7, Y1: 20.2, X2: 30.9, Y2: 40.5}
	assert.Equal(t, image.Rect(10, 20, 30, 40), r.Rectangle())

	inverted := Rect{X1: 30, Y1: 40, X2: 10, Y2: 20}
	assert.Equal(t, image.Rect(10, 20, 30, 40), inverted.Rectangle(), "Rectangle should be canonical")
	assert.Zero(t, inverted.Area(), "Inverted boxes should have zero area")
}

// TestLargestRectangle validates ROI selection by area.
func TestLargestRectangle(t *testing.T) {
	tests := []struct {
		name     string
		rects    []image.Rectangle
		expected image.Rectangle
		ok       bool
	}{
		{
			name:  "Empty input",
			rects: nil,
			ok:    false,
		},
		{
			name:     "Single rectangle",
			rects:    []image.Rectangle{image.Rect(0, 0, 5, 5)},
			expected: image.Rect(0, 0, 5, 5),
			ok:       true,
		},
		{
			name: "Largest wins",
			rects: []image.Rectangle{
				image.Rect(0, 0, 10, 10),
				image.Rect(100, 100, 160, 160),
				image.Rect(50, 50, 70, 70),
			},
			expected: image.Rect(100, 100, 160, 160),
			ok:       true,
		},
		{
			name: "Tie keeps first",
			rects: []image.Rectangle{
				image.Rect(0, 0, 10, 20),
				image.Rect(50, 50, 70, 60),
			},
			expected: image.Rect(0, 0, 10, 20),
			ok:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LargestRectangle(tt.rects)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}
