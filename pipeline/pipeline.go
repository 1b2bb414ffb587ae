// Package pipeline - Frame scheduling and per-frame processing from capture to typed results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/nvr-ai/go-livedetect/models/classifier"
	"github.com/nvr-ai/go-livedetect/models/postprocess"
)

var (
	// ErrInvalidFrame marks a missing or zero-area frame; the cycle is skipped.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrNotReady marks a collaborator that cannot accept work yet; the cycle is skipped.
	ErrNotReady = errors.New("collaborator not ready")
	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler is already running")
	// ErrSourceClosed is returned by Source.Read once a source has no more frames.
	ErrSourceClosed = errors.New("frame source is closed")
)

// Result is the outcome of one processed frame.
type Result struct {
	// FrameID identifies the cycle in logs and sinks.
	FrameID string `json:"frame_id"`
	// Timestamp is when the frame was read.
	Timestamp time.Time `json:"timestamp"`
	// Width is the source frame width.
	Width int `json:"width"`
	// Height is the source frame height.
	Height int `json:"height"`
	// Detections are the surviving boxes in source-frame pixels.
	Detections []postprocess.Detection `json:"detections,omitempty"`
	// Classification is the subject classification, nil when no region was found.
	Classification *classifier.Result `json:"classification,omitempty"`
	// Latency is the time from read to decoded result.
	Latency time.Duration `json:"latency"`
}

// String returns a one-line summary.
func (r *Result) String() string {
	if r == nil {
		return "<nil>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "frame %s %dx%d in %v", r.FrameID, r.Width, r.Height, r.Latency.Truncate(time.Microsecond))
	if r.Classification != nil {
		fmt.Fprintf(&b, ": %s %.2f", r.Classification.ClassName, r.Classification.Confidence)
		return b.String()
	}
	fmt.Fprintf(&b, ": %d detections", len(r.Detections))
	return b.String()
}

// Source delivers frames to the scheduler.
type Source interface {
	// Active reports whether the source can still produce frames.
	Active() bool
	// Ready reports whether a frame can be read now. A source warming up is active but not ready.
	Ready() bool
	// Read returns the next frame. A nil frame with a nil error means nothing
	// usable was captured this time; only ErrSourceClosed ends the run.
	Read(ctx context.Context) (image.Image, error)
	// Close releases the device or files.
	Close() error
}

// RegionDetector finds regions of interest, such as faces, in a frame.
type RegionDetector interface {
	// DetectRegions returns candidate regions in frame pixel coordinates.
	DetectRegions(img image.Image) ([]image.Rectangle, error)
}

// Processor turns one frame into a result.
type Processor interface {
	// Ready reports whether the model and other collaborators can accept a frame.
	Ready() bool
	// Process runs the frame through preprocessing, the model and decoding.
	Process(ctx context.Context, frame image.Image) (*Result, error)
}

// Gate filters frames before they reach the processor. A frame that is not
// admitted is skipped and the previous result stays current. A gate error
// admits the frame.
type Gate interface {
	Admit(frame image.Image) (bool, error)
}

// Sink consumes results for display.
type Sink interface {
	// Publish delivers the latest result. It must not block the scheduler.
	Publish(result *Result)
	// Status delivers a status message; an empty message clears the previous one.
	Status(message string)
}

// validFrame reports ErrInvalidFrame for nil and zero-area frames.
func validFrame(frame image.Image) error {
	if frame == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}
	if frame.Bounds().Empty() {
		return fmt.Errorf("%w: empty bounds %v", ErrInvalidFrame, frame.Bounds())
	}
	return nil
}
