package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// CoreML flags, mirroring the COREML_FLAG_* values of the ONNX Runtime C API.
const (
	coreMLFlagUseCPUOnly                uint32 = 0x001
	coreMLFlagEnableOnSubgraph          uint32 = 0x002
	coreMLFlagOnlyEnableDeviceWithANE   uint32 = 0x004
	coreMLFlagOnlyAllowStaticInputShape uint32 = 0x008
	coreMLFlagCreateMLProgram           uint32 = 0x010
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	CPUOnly bool `json:"cpu_only" yaml:"cpu_only"`
	// Enable CoreML EP to run on a subgraph in the body of a control flow operator.
	EnableOnSubgraphs bool `json:"enable_on_subgraphs" yaml:"enable_on_subgraphs"`
	// Only enable CoreML on devices with an Apple Neural Engine.
	RequireANE bool `json:"require_ane" yaml:"require_ane"`
	// Only allow nodes with static input shapes on the CoreML EP.
	RequireStaticInputShapes bool `json:"require_static_input_shapes" yaml:"require_static_input_shapes"`
	// Create an MLProgram format model instead of a NeuralNetwork. Requires Core ML 5 or later.
	MLProgram bool `json:"ml_program" yaml:"ml_program"`
}

func (CoreMLOptions) isProviderOptions() {}

// flags packs the options into the bit set expected by the runtime.
func (o CoreMLOptions) flags() uint32 {
	var f uint32
	if o.CPUOnly {
		f |= coreMLFlagUseCPUOnly
	}
	if o.EnableOnSubgraphs {
		f |= coreMLFlagEnableOnSubgraph
	}
	if o.RequireANE {
		f |= coreMLFlagOnlyEnableDeviceWithANE
	}
	if o.RequireStaticInputShapes {
		f |= coreMLFlagOnlyAllowStaticInputShape
	}
	if o.MLProgram {
		f |= coreMLFlagCreateMLProgram
	}
	return f
}

// CoreMLProvider implements the ExecutionProvider interface.
type CoreMLProvider struct {
	options CoreMLOptions
}

// NewCoreMLProvider creates a new CoreML provider.
func NewCoreMLProvider(options CoreMLOptions) *CoreMLProvider {
	return &CoreMLProvider{
		options: options,
	}
}

// Backend returns the backend of the CoreML provider.
func (p *CoreMLProvider) Backend() ProviderBackend {
	return CoreMLProviderBackend
}

// Options returns the options of the CoreML provider.
func (p *CoreMLProvider) Options() ProviderOptions {
	return p.options
}

// Apply registers CoreML on the session options.
func (p *CoreMLProvider) Apply(options *ort.SessionOptions) error {
	if err := options.AppendExecutionProviderCoreML(p.options.flags()); err != nil {
		return fmt.Errorf("error enabling CoreML: %w", err)
	}
	return nil
}
