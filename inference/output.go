package inference

import (
	"errors"
	"fmt"

	"gorgonia.org/tensor"
)

// ErrEmptyShape is returned when an output is built without dimensions.
var ErrEmptyShape = errors.New("output shape is empty")

// Output is the raw float32 tensor produced by a model run.
type Output struct {
	dense *tensor.Dense
}

// NewOutput wraps a float32 buffer with its shape.
//
// The buffer is used as is, not copied.
//
// Arguments:
//   - data: The row-major tensor values.
//   - shape: The tensor dimensions. The product must equal len(data).
//
// Returns:
//   - *Output: The tensor.
//   - error: ErrEmptyShape, or a volume mismatch.
func NewOutput(data []float32, shape ...int) (*Output, error) {
	if len(shape) == 0 {
		return nil, ErrEmptyShape
	}

	volume := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("invalid output dimension %d in shape %v", d, shape)
		}
		volume *= d
	}
	if volume != len(data) {
		return nil, fmt.Errorf("output shape %v needs %d values, got %d", shape, volume, len(data))
	}

	return &Output{
		dense: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)),
	}, nil
}

// Shape returns a copy of the tensor dimensions.
func (o *Output) Shape() tensor.Shape {
	return o.dense.Shape().Clone()
}

// Strides returns the row-major element strides of each dimension.
func (o *Output) Strides() []int {
	return o.dense.Strides()
}

// Data returns the underlying buffer.
func (o *Output) Data() []float32 {
	return o.dense.Data().([]float32)
}

// Len returns the number of values in the tensor.
func (o *Output) Len() int {
	return o.dense.Len()
}

// Dense exposes the gorgonia tensor for callers that need tensor operations.
func (o *Output) Dense() *tensor.Dense {
	return o.dense
}
