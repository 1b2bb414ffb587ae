// Package capture - Frame sources and region-of-interest detection.
package capture

import (
	"github.com/nvr-ai/go-livedetect/pipeline"
)

// ErrSourceClosed is returned by Read once a source has no more frames.
var ErrSourceClosed = pipeline.ErrSourceClosed

// Source delivers frames to the scheduler.
type Source = pipeline.Source

// RegionDetector finds regions of interest, such as faces, in a frame.
type RegionDetector = pipeline.RegionDetector
