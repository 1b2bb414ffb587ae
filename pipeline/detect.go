package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/nvr-ai/go-livedetect/inference"
	"github.com/nvr-ai/go-livedetect/models/model/preprocess"
	"github.com/nvr-ai/go-livedetect/models/postprocess"
	"github.com/nvr-ai/go-livedetect/models/yolov8"
	"github.com/nvr-ai/go-livedetect/profiler"
)

// DetectionProcessor runs the object detection path:
// letterbox, model, decode, NMS and remap to source-frame pixels.
type DetectionProcessor struct {
	preprocessor *preprocess.Preprocessor
	runner       inference.Runner
	decoder      *yolov8.Decoder
	nms          *postprocess.NMSConfig
	profiler     *profiler.Profiler
}

// NewDetectionProcessor creates a detection processor.
//
// Arguments:
//   - preprocessor: The letterbox preprocessor, nil for the 640x640 preset.
//   - runner: The model runner.
//   - decoder: The output decoder.
//   - nms: The suppression settings, nil for the defaults.
//   - prof: Optional profiler for stage timings.
//
// Returns:
//   - *DetectionProcessor: The processor.
func NewDetectionProcessor(
	preprocessor *preprocess.Preprocessor,
	runner inference.Runner,
	decoder *yolov8.Decoder,
	nms *postprocess.NMSConfig,
	prof *profiler.Profiler,
) *DetectionProcessor {
	if preprocessor == nil {
		preprocessor = preprocess.NewPreprocessor(preprocess.DetectionConfig())
	}
	if nms == nil {
		nms = postprocess.DefaultNMSConfig()
	}
	return &DetectionProcessor{
		preprocessor: preprocessor,
		runner:       runner,
		decoder:      decoder,
		nms:          nms,
		profiler:     prof,
	}
}

// Ready reports whether the runner accepts input.
func (p *DetectionProcessor) Ready() bool {
	return p.runner != nil && p.decoder != nil && p.runner.Ready()
}

// Process detects objects in a frame.
func (p *DetectionProcessor) Process(ctx context.Context, frame image.Image) (*Result, error) {
	if err := validFrame(frame); err != nil {
		return nil, err
	}

	done := p.profiler.StartOperation("preprocess")
	pre, err := p.preprocessor.Preprocess(frame)
	done()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	defer pre.Release()

	done = p.profiler.StartOperation("inference")
	out, err := p.runner.Run(ctx, pre.Data)
	done()
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	done = p.profiler.StartOperation("postprocess")
	defer done()

	detections, err := p.decoder.Decode(out)
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}
	detections = postprocess.ApplyGreedyNMS(detections, p.nms)
	detections = postprocess.Remap(detections, pre.Transform)

	p.profiler.RecordMetric("detections", float64(len(detections)))

	return &Result{Detections: detections}, nil
}
