package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CUDAProviderBackend uses NVIDIA CUDA for inference optimization.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"device_id" yaml:"device_id"`
	// The size limit of the device memory arena in bytes, 0 for no limit.
	GPUMemLimit int64 `json:"gpu_mem_limit" yaml:"gpu_mem_limit"`
	// The strategy for extending the device memory arena.
	// 0: kNextPowerOfTwo - subsequent extensions extend by larger amounts (multiplied by powers of
	// two)
	// 1: kSameAsRequested - extend by the requested amount
	ArenaExtendStrategy int `json:"arena_extend_strategy" yaml:"arena_extend_strategy"`
	// The type of search done for cuDNN convolution algorithms.
	// 0: EXHAUSTIVE, 1: HEURISTIC, 2: DEFAULT
	CudnnConvAlgoSearch int `json:"cudnn_conv_algo_search" yaml:"cudnn_conv_algo_search"`
	// Whether to do copies in the default stream or use separate streams.
	DoCopyInDefaultStream bool `json:"do_copy_in_default_stream" yaml:"do_copy_in_default_stream"`
}

// isProviderOptions is a marker function to ensure the options are valid.
func (CUDAOptions) isProviderOptions() {}

// toMap renders the options in the key/value form expected by the runtime.
func (o CUDAOptions) toMap() map[string]string {
	m := map[string]string{
		"device_id":                 fmt.Sprintf("%d", o.DeviceID),
		"arena_extend_strategy":     "kNextPowerOfTwo",
		"cudnn_conv_algo_search":    "EXHAUSTIVE",
		"do_copy_in_default_stream": fmt.Sprintf("%d", boolToInt(o.DoCopyInDefaultStream)),
	}
	if o.ArenaExtendStrategy == 1 {
		m["arena_extend_strategy"] = "kSameAsRequested"
	}
	switch o.CudnnConvAlgoSearch {
	case 1:
		m["cudnn_conv_algo_search"] = "HEURISTIC"
	case 2:
		m["cudnn_conv_algo_search"] = "DEFAULT"
	}
	if o.GPUMemLimit > 0 {
		m["gpu_mem_limit"] = fmt.Sprintf("%d", o.GPUMemLimit)
	}
	return m
}

// CUDAProvider implements the ExecutionProvider interface.
type CUDAProvider struct {
	options CUDAOptions
}

// NewCUDAProvider creates a new CUDA provider.
func NewCUDAProvider(args CUDAOptions) *CUDAProvider {
	return &CUDAProvider{
		options: args,
	}
}

// Backend returns the backend of the CUDA provider.
func (p *CUDAProvider) Backend() ProviderBackend {
	return CUDAProviderBackend
}

// Options returns the options of the CUDA provider.
func (p *CUDAProvider) Options() ProviderOptions {
	return p.options
}

// Apply registers CUDA on the session options.
func (p *CUDAProvider) Apply(options *ort.SessionOptions) error {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("error creating CUDA options: %w", err)
	}
	defer cuda.Destroy()

	if err := cuda.Update(p.options.toMap()); err != nil {
		return fmt.Errorf("error converting CUDA options: %w", err)
	}
	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		return fmt.Errorf("error enabling CUDA: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
