// Package providers - ONNX Runtime execution provider selection.
package providers

import (
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers
type ProviderBackend string

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	isProviderOptions()
}

// ExecutionProvider represents the contract that all execution providers must implement.
type ExecutionProvider interface {
	// Backend identifies the provider.
	Backend() ProviderBackend
	// Options returns the provider specific options.
	Options() ProviderOptions
	// Apply registers the provider on a set of session options.
	Apply(options *ort.SessionOptions) error
}

// Config selects and tunes the execution provider for a session.
type Config struct {
	// Backend specifies the backend to use.
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// IntraOpThreads sets threads for parallelizing ops, 0 lets the runtime decide.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads sets threads for parallelizing independent ops, 0 lets the runtime decide.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
	// CoreML options, used when Backend is coreml.
	CoreML CoreMLOptions `json:"coreml" yaml:"coreml"`
	// OpenVINO options, used when Backend is openvino.
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
	// CUDA options, used when Backend is cuda.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`
}

// DefaultConfig returns a CPU configuration with runtime-chosen thread counts.
func DefaultConfig() Config {
	return Config{Backend: CPUProviderBackend}
}

// ParseBackend converts a user supplied name into a ProviderBackend.
//
// Arguments:
//   - name: The backend name, case insensitive. Empty selects the CPU backend.
//
// Returns:
//   - ProviderBackend: The backend.
//   - error: If the name is not a supported backend.
func ParseBackend(name string) (ProviderBackend, error) {
	switch b := ProviderBackend(strings.ToLower(strings.TrimSpace(name))); b {
	case "":
		return CPUProviderBackend, nil
	case CPUProviderBackend, CoreMLProviderBackend, OpenVINOProviderBackend, CUDAProviderBackend:
		return b, nil
	default:
		return "", fmt.Errorf("unsupported provider backend: %q", name)
	}
}

// NewProvider creates a new provider based on the required backend.
//
// Arguments:
//   - cfg: The provider configuration.
//
// Returns:
//   - ExecutionProvider: The new provider.
//   - error: An error if the backend is not supported.
func NewProvider(cfg Config) (ExecutionProvider, error) {
	switch cfg.Backend {
	case CPUProviderBackend, "":
		return NewCPUProvider(), nil
	case CoreMLProviderBackend:
		return NewCoreMLProvider(cfg.CoreML), nil
	case OpenVINOProviderBackend:
		return NewOpenVINOProvider(cfg.OpenVINO), nil
	case CUDAProviderBackend:
		return NewCUDAProvider(cfg.CUDA), nil
	default:
		return nil, fmt.Errorf("unsupported provider backend: %q", cfg.Backend)
	}
}
