package yolov8

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-livedetect/images"
	"github.com/nvr-ai/go-livedetect/inference"
	"github.com/nvr-ai/go-livedetect/models"
	"github.com/nvr-ai/go-livedetect/models/postprocess"
)

// candidate is one synthetic row of a detection output.
type candidate struct {
	cx, cy, w, h float32
	scores       []float32
}

// buildOutput lays candidates out as [1, 4+C, N] or [1, N, 4+C], zero filled up to n candidates.
func buildOutput(t *testing.T, layout Layout, n, classes int, cands ...candidate) *inference.Output {
	t.Helper()

	features := 4 + classes
	data := make([]float32, n*features)
	set := func(i, f int, v float32) {
		if layout == LayoutChannelsFirst {
			data[f*n+i] = v
		} else {
			data[i*features+f] = v
		}
	}

	for i, c := range cands {
		set(i, 0, c.cx)
		set(i, 1, c.cy)
		set(i, 2, c.w)
		set(i, 3, c.h)
		for k, s := range c.scores {
			set(i, 4+k, s)
		}
	}

	shape := []int{1, n, features}
	if layout == LayoutChannelsFirst {
		shape = []int{1, features, n}
	}
	out, err := inference.NewOutput(data, shape...)
	require.NoError(t, err)
	return out
}

// TestDecoder_LayoutScenario validates [1,10,8400] and [1,8400,10] decode to the same detections.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestDecoder_LayoutScenario(t *testing.T) {
	labels := models.NewLabelSet("six", []string{"a", "b", "c", "d", "e", "f"})
	cands := []candidate{
		{cx: 100, cy: 100, w: 50, h: 40, scores: []float32{0.1, 0.9, 0, 0, 0, 0}},
		{cx: 300, cy: 200, w: 20, h: 20, scores: []float32{0, 0, 0, 0, 0, 0.6}},
	}

	for _, layout := range []Layout{LayoutChannelsFirst, LayoutChannelsLast} {
		t.Run(layout.String(), func(t *testing.T) {
			out := buildOutput(t, layout, 8400, 6, cands...)
			d := NewDecoder(DefaultConfidenceThreshold, LayoutAuto, labels)

			g, err := d.Resolve(out.Shape(), out.Strides())
			require.NoError(t, err)
			assert.Equal(t, layout, g.Layout)
			assert.Equal(t, 8400, g.Candidates)
			assert.Equal(t, 10, g.Features)
			assert.Equal(t, 6, g.Classes())

			dets, err := d.Decode(out)
			require.NoError(t, err)
			require.Len(t, dets, 2)

			assert.Equal(t, postprocess.Detection{
				Box:        images.Rect{X1: 75, Y1: 80, X2: 125, Y2: 120},
				ClassID:    1,
				ClassName:  "b",
				Confidence: 0.9,
			}, dets[0])
			assert.Equal(t, 5, dets[1].ClassID)
			assert.Equal(t, "f", dets[1].ClassName)
		})
	}
}

// TestDecoder_ThresholdBoundary validates equality keeps and strictly below drops.
func TestDecoder_ThresholdBoundary(t *testing.T) {
	below := float32(math.Nextafter32(0.25, 0))
	out := buildOutput(t, LayoutChannelsLast, 4, 2,
		candidate{cx: 10, cy: 10, w: 4, h: 4, scores: []float32{0.25, 0}},
		candidate{cx: 20, cy: 20, w: 4, h: 4, scores: []float32{0, below}},
		candidate{cx: 30, cy: 30, w: 4, h: 4, scores: []float32{float32(math.NaN()), 0.1}},
	)

	dets, err := NewDecoder(0.25, LayoutChannelsLast, nil).Decode(out)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, float32(0.25), dets[0].Confidence)
	assert.Equal(t, "unknown_0", dets[0].ClassName, "Without labels names are synthetic")
}

// TestDecoder_ArgMaxTies validates the lowest index wins a tie.
func TestDecoder_ArgMaxTies(t *testing.T) {
	out := buildOutput(t, LayoutChannelsLast, 2, 3,
		candidate{cx: 10, cy: 10, w: 4, h: 4, scores: []float32{0.2, 0.7, 0.7}},
	)

	dets, err := NewDecoder(0.25, LayoutChannelsLast, nil).Decode(out)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 1, dets[0].ClassID)
}

// TestDecoder_NaNScores validates a NaN class score does not mask the other classes.
func TestDecoder_NaNScores(t *testing.T) {
	nan := float32(math.NaN())
	out := buildOutput(t, LayoutChannelsLast, 3, 3,
		candidate{cx: 10, cy: 10, w: 4, h: 4, scores: []float32{nan, 0.9, 0.3}},
		candidate{cx: 20, cy: 20, w: 4, h: 4, scores: []float32{0.3, nan, 0.6}},
		candidate{cx: 30, cy: 30, w: 4, h: 4, scores: []float32{nan, nan, nan}},
	)

	dets, err := NewDecoder(0.25, LayoutChannelsLast, nil).Decode(out)
	require.NoError(t, err)
	require.Len(t, dets, 2, "An all-NaN candidate is dropped")
	assert.Equal(t, 1, dets[0].ClassID)
	assert.Equal(t, float32(0.9), dets[0].Confidence)
	assert.Equal(t, 2, dets[1].ClassID)
	assert.Equal(t, float32(0.6), dets[1].Confidence)
}

// TestDecoder_Culling validates boxes are culled in tensor space before remapping.
//
// The culling point is the letterbox canvas origin, not the frame. A box
// inside the top padding band survives decoding even though it lies outside
// the frame, and is only clamped at remap.
func TestDecoder_Culling(t *testing.T) {
	out := buildOutput(t, LayoutChannelsLast, 4, 1,
		// x2 = -5, culled.
		candidate{cx: -10, cy: 50, w: 10, h: 10, scores: []float32{0.9}},
		// y2 = 0, culled.
		candidate{cx: 50, cy: -5, w: 10, h: 10, scores: []float32{0.9}},
		// Partly off canvas, kept.
		candidate{cx: 2, cy: 2, w: 10, h: 10, scores: []float32{0.9}},
		// Inside the top padding band, kept.
		candidate{cx: 320, cy: 60, w: 40, h: 40, scores: []float32{0.8}},
	)

	dets, err := NewDecoder(0.25, LayoutChannelsLast, nil).Decode(out)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, images.Rect{X1: -3, Y1: -3, X2: 7, Y2: 7}, dets[0].Box)

	tr, err := images.NewTransform(1280, 720, 640)
	require.NoError(t, err)
	remapped := postprocess.Remap(dets, tr)

	assert.Equal(t, images.Rect{X1: 0, Y1: 0, X2: 14, Y2: -266}, remapped[0].Box)
	assert.Equal(t, float32(0), remapped[1].Box.Y1)
	assert.Less(t, remapped[1].Box.Y2, float32(0), "Padding-band boxes remap above the frame")
}

// TestDecoder_ShapeErrors validates malformed outputs are rejected.
func TestDecoder_ShapeErrors(t *testing.T) {
	coco := models.COCOLabels()

	tests := []struct {
		name    string
		data    int
		shape   []int
		layout  Layout
		labels  *models.LabelSet
		wantErr error
	}{
		{"Two dimensions", 84 * 10, []int{84, 10}, LayoutAuto, nil, ErrInvalidShape},
		{"Batch of two", 2 * 84 * 10, []int{2, 84, 10}, LayoutAuto, nil, ErrInvalidShape},
		{"No class scores", 4 * 100, []int{1, 4, 100}, LayoutAuto, nil, ErrInvalidShape},
		{"Label count mismatch", 10 * 8400, []int{1, 10, 8400}, LayoutAuto, coco, ErrLayoutMismatch},
		{"Heuristic misfire", 84 * 50, []int{1, 84, 50}, LayoutAuto, coco, ErrLayoutMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := inference.NewOutput(make([]float32, tt.data), tt.shape...)
			require.NoError(t, err)

			// A nil *LabelSet must not become a non-nil interface.
			d := NewDecoder(0.25, tt.layout, nil)
			if tt.labels != nil {
				d.Labels = tt.labels
			}
			_, err = d.Decode(out)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := NewDecoder(0.25, LayoutAuto, nil).Decode(nil)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

// TestDecoder_ExplicitLayout validates an explicit layout overrides the heuristic.
func TestDecoder_ExplicitLayout(t *testing.T) {
	// 50 candidates with 84 features: the heuristic would read 84 candidates.
	out := buildOutput(t, LayoutChannelsFirst, 50, 80,
		candidate{cx: 100, cy: 100, w: 10, h: 10, scores: append(make([]float32, 79), 0.95)},
	)
	require.Equal(t, 84, out.Shape()[1])

	d := NewDecoder(0.25, LayoutChannelsFirst, models.COCOLabels())
	dets, err := d.Decode(out)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "toothbrush", dets[0].ClassName)
}

// TestParseLayout validates layout names from configuration.
func TestParseLayout(t *testing.T) {
	tests := map[string]Layout{
		"":               LayoutAuto,
		"auto":           LayoutAuto,
		"channels_first": LayoutChannelsFirst,
		"NHW":            LayoutChannelsFirst,
		"channels_last":  LayoutChannelsLast,
	}
	for in, expected := range tests {
		got, err := ParseLayout(in)
		require.NoError(t, err, in)
		assert.Equal(t, expected, got, in)
	}

	_, err := ParseLayout("diagonal")
	assert.Error(t, err)
}
