package capture

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sceneFrame draws an optional white square on a black 200x200 frame.
func sceneFrame(square image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(img, square, image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

// TestMotionDetector validates static scenes are refused and changes are admitted.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestMotionDetector(t *testing.T) {
	d := NewMotionDetector(MotionConfig{Threshold: 0.05, HistoryFrames: 1})
	t.Cleanup(func() { _ = d.Close() })

	still := sceneFrame(image.Rectangle{})
	moved := sceneFrame(image.Rect(50, 50, 150, 150))

	admit, err := d.Admit(still)
	require.NoError(t, err)
	assert.True(t, admit, "The first frame is always admitted")

	admit, err = d.Admit(still)
	require.NoError(t, err)
	assert.False(t, admit)

	score, err := d.Score(moved)
	require.NoError(t, err)
	assert.Greater(t, score, 0.05)

	d.Reset()
	admit, err = d.Admit(moved)
	require.NoError(t, err)
	assert.True(t, admit)

	require.NoError(t, d.Close())
	_, err = d.Score(still)
	assert.Error(t, err)
	assert.NoError(t, d.Close())
}

// TestMotionDetector_EmptyFrame validates empty frames are rejected.
func TestMotionDetector_EmptyFrame(t *testing.T) {
	d := NewMotionDetector(DefaultMotionConfig())
	t.Cleanup(func() { _ = d.Close() })

	_, err := d.Score(nil)
	assert.Error(t, err)
	_, err = d.Score(image.NewRGBA(image.Rect(0, 0, 0, 4)))
	assert.Error(t, err)
}

// TestSmoothed validates recent scores weigh more.
func TestSmoothed(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{"Empty", nil, 0},
		{"Single", []float64{0.4}, 0.4},
		{"RecentHigher", []float64{0, 0.3}, 0.2},
		{"Constant", []float64{0.5, 0.5, 0.5}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, smoothed(tt.scores), 1e-9)
		})
	}
}

// TestNewMotionDetector_Defaults validates zero fields take the defaults.
func TestNewMotionDetector_Defaults(t *testing.T) {
	d := NewMotionDetector(MotionConfig{BlurKernelSize: 4})
	t.Cleanup(func() { _ = d.Close() })

	assert.Equal(t, 5, d.config.BlurKernelSize, "Kernel sizes are made odd")
	assert.Equal(t, DefaultMotionConfig().HistoryFrames, d.config.HistoryFrames)
	assert.Equal(t, DefaultMotionConfig().MinContourArea, d.config.MinContourArea)
}
