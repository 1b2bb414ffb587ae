package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-livedetect/inference/providers"
)

// SessionConfig describes an ONNX model with a single named input and output.
type SessionConfig struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// LibraryPath is the ONNX Runtime shared library.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// InputName is the input node name, e.g. "images".
	InputName string `json:"input_name" yaml:"input_name"`
	// OutputName is the output node name, e.g. "output0".
	OutputName string `json:"output_name" yaml:"output_name"`
	// InputShape is the fixed input shape, e.g. [1, 3, 640, 640].
	InputShape []int64 `json:"input_shape" yaml:"input_shape"`
	// OutputShape is the fixed output shape, e.g. [1, 84, 8400].
	OutputShape []int64 `json:"output_shape" yaml:"output_shape"`
	// Provider selects the execution provider.
	Provider providers.Config `json:"provider" yaml:"provider"`
}

// Session runs an ONNX model through onnxruntime with preallocated tensors.
type Session struct {
	mu          sync.Mutex
	session     *ort.AdvancedSession
	input       *ort.Tensor[float32]
	output      *ort.Tensor[float32]
	outputShape []int
	logger      *zap.Logger
	runs        int64
	totalTime   time.Duration
}

// NewSession creates a new ONNX Runtime session with preallocated input and output tensors.
//
// Order of operations:
//  1. Environment setup: loads the native runtime once per process.
//  2. Tensor allocation: fixed-shape buffers for input/output data.
//  3. Session options: threading, optimization level, execution provider.
//  4. Session creation: loads the model and binds the tensors.
//
// Arguments:
//   - cfg: The model description.
//   - logger: The logger, nil for none.
//
// Returns:
//   - *Session: The ready session.
//   - error: An error if any step fails; partially created resources are released.
func NewSession(cfg SessionConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.InputShape) == 0 || len(cfg.OutputShape) == 0 {
		return nil, fmt.Errorf("input and output shapes are required")
	}

	if err := providers.InitializeRuntime(cfg.LibraryPath); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.OutputShape...))
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("error creating output tensor: %w", err), input.Destroy())
	}

	provider, err := providers.NewProvider(cfg.Provider)
	if err != nil {
		return nil, multierr.Combine(err, input.Destroy(), output.Destroy())
	}

	options, err := providers.NewSessionOptions(provider, cfg.Provider)
	if err != nil {
		return nil, multierr.Combine(err, input.Destroy(), output.Destroy())
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		return nil, multierr.Combine(
			fmt.Errorf("error creating ORT session: %w", err),
			input.Destroy(),
			output.Destroy(),
		)
	}

	outputShape := make([]int, len(cfg.OutputShape))
	for i, d := range cfg.OutputShape {
		outputShape[i] = int(d)
	}

	logger.Info("onnx session ready",
		zap.String("model", cfg.ModelPath),
		zap.String("provider", string(provider.Backend())),
		zap.Int64s("input_shape", cfg.InputShape),
		zap.Int64s("output_shape", cfg.OutputShape),
	)

	return &Session{
		session:     session,
		input:       input,
		output:      output,
		outputShape: outputShape,
		logger:      logger,
	}, nil
}

// Run copies input into the bound tensor, executes the model and copies the output.
//
// The runtime cannot be interrupted, so ctx is only checked before the call.
func (s *Session) Run(ctx context.Context, input []float32) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrRunnerClosed
	}

	dst := s.input.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("input holds %d values, model expects %d", len(input), len(dst))
	}
	copy(dst, input)

	start := time.Now()
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	elapsed := time.Since(start)
	s.runs++
	s.totalTime += elapsed

	s.logger.Debug("onnx run", zap.Duration("elapsed", elapsed))

	src := s.output.GetData()
	data := make([]float32, len(src))
	copy(data, src)

	return NewOutput(data, s.outputShape...)
}

// Ready reports whether the session is open.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// AverageRunTime returns the mean model execution time.
func (s *Session) AverageRunTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == 0 {
		return 0
	}
	return s.totalTime / time.Duration(s.runs)
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}

	err := multierr.Combine(
		s.session.Destroy(),
		s.input.Destroy(),
		s.output.Destroy(),
	)
	s.session, s.input, s.output = nil, nil, nil
	if err != nil {
		return fmt.Errorf("error destroying ORT session: %w", err)
	}
	return nil
}
