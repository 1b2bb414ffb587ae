// Package inference - Model execution backends behind a common runner contract.
package inference

import (
	"context"
	"errors"
)

// ErrRunnerClosed is returned by Run after Close.
var ErrRunnerClosed = errors.New("runner is closed")

// Runner executes a model on a single preprocessed input tensor.
//
// Implementations must be safe for concurrent use; a runner never executes
// two inputs at the same time.
type Runner interface {
	// Run executes the model and returns a copy of its raw output.
	Run(ctx context.Context, input []float32) (*Output, error)
	// Ready reports whether the runner can accept input.
	Ready() bool
	// Close releases the native resources held by the runner.
	Close() error
}
