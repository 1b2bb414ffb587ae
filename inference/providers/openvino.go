package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// Overrides the accelerator hardware type (CPU, GPU, NPU) at runtime.
	DeviceType string `json:"device_type" yaml:"device_type"`
	// Supported precisions for HW {CPU:FP32, GPU:[FP32, FP16, ACCURACY], NPU:FP16}.
	Precision string `json:"precision" yaml:"precision"`
	// Overrides the accelerator default number of threads, 0 keeps the default.
	NumOfThreads int `json:"num_of_threads" yaml:"num_of_threads"`
	// Overrides the accelerator default streams, 0 keeps the default.
	NumStreams int `json:"num_streams" yaml:"num_streams"`
	// Rewrites dynamic shaped models to static shape at runtime.
	DisableDynamicShapes bool `json:"disable_dynamic_shapes" yaml:"disable_dynamic_shapes"`
}

// isProviderOptions is a marker function to ensure the options are valid.
func (OpenVINOOptions) isProviderOptions() {}

// toMap renders the options in the key/value form expected by the runtime.
func (o OpenVINOOptions) toMap() map[string]string {
	m := map[string]string{}
	if o.DeviceType != "" {
		m["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		m["precision"] = o.Precision
	}
	if o.NumOfThreads > 0 {
		m["num_of_threads"] = fmt.Sprintf("%d", o.NumOfThreads)
	}
	if o.NumStreams > 0 {
		m["num_streams"] = fmt.Sprintf("%d", o.NumStreams)
	}
	if o.DisableDynamicShapes {
		m["disable_dynamic_shapes"] = "true"
	}
	return m
}

// OpenVINOProvider implements the ExecutionProvider interface.
type OpenVINOProvider struct {
	options OpenVINOOptions
}

// NewOpenVINOProvider creates a new OpenVINO provider.
func NewOpenVINOProvider(args OpenVINOOptions) *OpenVINOProvider {
	return &OpenVINOProvider{
		options: args,
	}
}

// Backend returns the backend of the OpenVINO provider.
func (p *OpenVINOProvider) Backend() ProviderBackend {
	return OpenVINOProviderBackend
}

// Options returns the options of the OpenVINO provider.
func (p *OpenVINOProvider) Options() ProviderOptions {
	return p.options
}

// Apply registers OpenVINO on the session options.
func (p *OpenVINOProvider) Apply(options *ort.SessionOptions) error {
	if err := options.AppendExecutionProviderOpenVINO(p.options.toMap()); err != nil {
		return fmt.Errorf("error enabling OpenVINO: %w", err)
	}
	return nil
}
