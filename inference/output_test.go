package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// TestNewOutput validates shape checks on raw model outputs.
func TestNewOutput(t *testing.T) {
	tests := []struct {
		name    string
		data    []float32
		shape   []int
		wantErr error
	}{
		{"Detection layout", make([]float32, 10*8400), []int{1, 10, 8400}, nil},
		{"Flat logits", make([]float32, 8), []int{8}, nil},
		{"Empty shape", make([]float32, 8), nil, ErrEmptyShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewOutput(tt.data, tt.shape...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape(tt.shape), out.Shape())
			assert.Equal(t, len(tt.data), out.Len())
		})
	}

	_, err := NewOutput(make([]float32, 5), 2, 3)
	assert.Error(t, err, "Volume mismatch should fail")

	_, err = NewOutput(nil, 0)
	assert.Error(t, err, "Zero extent should fail")
}

// TestOutput_Strides validates row-major strides used by the decoders.
func TestOutput_Strides(t *testing.T) {
	out, err := NewOutput(make([]float32, 2*3*4), 2, 3, 4)
	require.NoError(t, err)

	assert.Equal(t, []int{12, 4, 1}, out.Strides())

	shape := out.Shape()
	shape[0] = 99
	assert.Equal(t, 2, out.Shape()[0], "Shape should be a copy")

	out.Data()[5] = 7
	assert.Equal(t, float32(7), out.Dense().Data().([]float32)[5], "Data should share the backing buffer")
}
