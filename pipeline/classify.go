package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/nvr-ai/go-livedetect/images"
	"github.com/nvr-ai/go-livedetect/inference"
	"github.com/nvr-ai/go-livedetect/models/classifier"
	"github.com/nvr-ai/go-livedetect/models/model"
	"github.com/nvr-ai/go-livedetect/models/model/preprocess"
	"github.com/nvr-ai/go-livedetect/profiler"
)

// ClassificationProcessor runs the subject classification path: find regions,
// crop the largest, letterbox it, run the model and softmax the logits.
type ClassificationProcessor struct {
	regions      RegionDetector
	preprocessor *preprocess.Preprocessor
	runner       inference.Runner
	labels       model.Labels
	profiler     *profiler.Profiler
}

// NewClassificationProcessor creates a classification processor.
//
// Arguments:
//   - regions: The region-of-interest detector.
//   - preprocessor: The letterbox preprocessor, nil for the 64x64 preset.
//   - runner: The model runner.
//   - labels: The ordered class labels.
//   - prof: Optional profiler for stage timings.
//
// Returns:
//   - *ClassificationProcessor: The processor.
func NewClassificationProcessor(
	regions RegionDetector,
	preprocessor *preprocess.Preprocessor,
	runner inference.Runner,
	labels model.Labels,
	prof *profiler.Profiler,
) *ClassificationProcessor {
	if preprocessor == nil {
		preprocessor = preprocess.NewPreprocessor(preprocess.ClassificationConfig())
	}
	return &ClassificationProcessor{
		regions:      regions,
		preprocessor: preprocessor,
		runner:       runner,
		labels:       labels,
		profiler:     prof,
	}
}

// Ready reports whether the runner and the region detector accept input.
func (p *ClassificationProcessor) Ready() bool {
	if p.runner == nil || p.regions == nil || !p.runner.Ready() {
		return false
	}
	if r, ok := p.regions.(interface{ Ready() bool }); ok {
		return r.Ready()
	}
	return true
}

// Process classifies the largest region of a frame.
//
// A frame without regions yields a Result with a nil Classification.
func (p *ClassificationProcessor) Process(ctx context.Context, frame image.Image) (*Result, error) {
	if err := validFrame(frame); err != nil {
		return nil, err
	}

	done := p.profiler.StartOperation("regions")
	rects, err := p.regions.DetectRegions(frame)
	done()
	if err != nil {
		return nil, fmt.Errorf("region detection failed: %w", err)
	}

	roi, ok := images.LargestRectangle(rects)
	if !ok {
		return &Result{}, nil
	}
	roi = roi.Intersect(frame.Bounds())
	if roi.Empty() {
		return &Result{}, nil
	}

	done = p.profiler.StartOperation("preprocess")
	pre, err := p.preprocessor.Preprocess(crop(frame, roi))
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

	result, err := classifier.Decode(out, p.labels, roi)
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	return &Result{Classification: result}, nil
}

// crop returns the region of frame, sharing pixels when the image supports it.
func crop(frame image.Image, r image.Rectangle) image.Image {
	if s, ok := frame.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, r.Min, draw.Src)
	return dst
}
