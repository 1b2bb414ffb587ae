package inference

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GraphBuilder attaches the model head to the input node and returns the output node.
type GraphBuilder func(g *G.ExprGraph, input *G.Node) (*G.Node, error)

// GraphRunner executes a pure Go gorgonia expression graph.
//
// It serves small heads that do not justify a native runtime, such as a
// linear classifier over the letterboxed ROI.
type GraphRunner struct {
	mu         sync.Mutex
	graph      *G.ExprGraph
	input      *G.Node
	output     *G.Node
	machine    G.VM
	inputShape tensor.Shape
}

// NewGraphRunner builds the graph and compiles it into a tape machine.
//
// Arguments:
//   - inputShape: The fixed input shape, e.g. [1, 3, 64, 64].
//   - build: Attaches the model head to the input node.
//
// Returns:
//   - *GraphRunner: The ready runner.
//   - error: If the builder fails.
func NewGraphRunner(inputShape []int, build GraphBuilder) (*GraphRunner, error) {
	if len(inputShape) == 0 {
		return nil, ErrEmptyShape
	}

	g := G.NewGraph()
	input := G.NewTensor(g, tensor.Float32, len(inputShape), G.WithShape(inputShape...), G.WithName("input"))

	output, err := build(g, input)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build graph")
	}

	return &GraphRunner{
		graph:      g,
		input:      input,
		output:     output,
		machine:    G.NewTapeMachine(g),
		inputShape: tensor.Shape(inputShape).Clone(),
	}, nil
}

// Run binds input to the graph, executes it and copies the output value.
func (r *GraphRunner) Run(ctx context.Context, input []float32) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.machine == nil {
		return nil, ErrRunnerClosed
	}
	if len(input) != r.inputShape.TotalSize() {
		return nil, fmt.Errorf("input holds %d values, graph expects %d", len(input), r.inputShape.TotalSize())
	}

	backing := make([]float32, len(input))
	copy(backing, input)
	value := tensor.New(tensor.WithShape(r.inputShape...), tensor.Of(tensor.Float32), tensor.WithBacking(backing))

	if err := G.Let(r.input, value); err != nil {
		return nil, errors.Wrap(err, "failed to bind input")
	}
	defer r.machine.Reset()

	if err := r.machine.RunAll(); err != nil {
		return nil, errors.Wrap(err, "graph run failed")
	}

	dense, ok := r.output.Value().(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("graph output is %T, want *tensor.Dense", r.output.Value())
	}
	src, ok := dense.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("graph output holds %T, want []float32", dense.Data())
	}

	data := make([]float32, len(src))
	copy(data, src)
	return NewOutput(data, dense.Shape()...)
}

// Ready reports whether the runner is open.
func (r *GraphRunner) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine != nil
}

// Close releases the tape machine.
func (r *GraphRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.machine == nil {
		return nil
	}
	err := r.machine.Close()
	r.machine = nil
	return err
}

// LinearHead returns a builder computing logits = W x flatten(input) + b.
//
// Arguments:
//   - weights: A [classes, features] matrix where features is the input volume.
//   - bias: A [classes] vector.
//
// Returns:
//   - GraphBuilder: The head builder.
func LinearHead(weights, bias *tensor.Dense) GraphBuilder {
	return func(g *G.ExprGraph, input *G.Node) (*G.Node, error) {
		ws := weights.Shape()
		if ws.Dims() != 2 || bias.Shape().TotalSize() != ws[0] {
			return nil, fmt.Errorf("linear head needs [C, N] weights and [C] bias, got %v and %v", ws, bias.Shape())
		}
		if input.Shape().TotalSize() != ws[1] {
			return nil, fmt.Errorf("linear head expects %d features, input has %d", ws[1], input.Shape().TotalSize())
		}

		w := G.NewMatrix(g, tensor.Float32, G.WithShape(ws...), G.WithName("weights"), G.WithValue(weights))
		b := G.NewVector(g, tensor.Float32, G.WithShape(ws[0]), G.WithName("bias"), G.WithValue(bias))

		flat, err := G.Reshape(input, tensor.Shape{ws[1]})
		if err != nil {
			return nil, err
		}
		prod, err := G.Mul(w, flat)
		if err != nil {
			return nil, err
		}
		return G.Add(prod, b)
	}
}

// LoadLinearHead reads a linear head from two NumPy .npy files.
//
// Arguments:
//   - weightsPath: A float32 [classes, features] array.
//   - biasPath: A float32 [classes] array.
//
// Returns:
//   - GraphBuilder: The head builder.
//   - error: If either file cannot be read.
func LoadLinearHead(weightsPath, biasPath string) (GraphBuilder, error) {
	weights, err := readNpy(weightsPath)
	if err != nil {
		return nil, err
	}
	bias, err := readNpy(biasPath)
	if err != nil {
		return nil, err
	}
	return LinearHead(weights, bias), nil
}

func readNpy(path string) (*tensor.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	t := new(tensor.Dense)
	if err := t.ReadNpy(f); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return t, nil
}
