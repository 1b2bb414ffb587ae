package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-livedetect/images"
)

// DefaultIoUThreshold is the overlap above which a lower-confidence box is suppressed.
const DefaultIoUThreshold = 0.45

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold  float32 `json:"iou_threshold" yaml:"iou_threshold"`   // Overlap threshold for suppression.
	ClassAware    bool    `json:"class_aware" yaml:"class_aware"`       // If true, suppress only within same class.
	MaxDetections int     `json:"max_detections" yaml:"max_detections"` // Cap on kept detections, 0 for unlimited.
}

// DefaultNMSConfig returns class-agnostic suppression at DefaultIoUThreshold.
func DefaultNMSConfig() *NMSConfig {
	return &NMSConfig{
		IoUThreshold: DefaultIoUThreshold,
	}
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// The detections are stable sorted by descending confidence, so equal scores
// keep their decode order and the result is deterministic. The highest
// remaining detection is kept and every later detection whose IoU with it is
// strictly greater than the threshold is suppressed, until none remain. The
// input slice is not modified.
//
// Arguments:
//   - detections: Candidate detections in any order.
//   - config: NMS configuration. Nil selects DefaultNMSConfig.
//
// Returns:
//   - Filtered slice of detections, highest confidence first. If no detections are provided, returns nil.
func ApplyGreedyNMS(detections []Detection, config *NMSConfig) []Detection {
	n := len(detections)
	if n == 0 {
		return nil
	}
	if config == nil {
		config = DefaultNMSConfig()
	}

	sorted := make([]Detection, n)
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	filtered := make([]Detection, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true
		if config.MaxDetections > 0 && len(filtered) >= config.MaxDetections {
			break
		}

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.ClassID != sorted[j].ClassID {
				continue
			}

			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, sorted[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
