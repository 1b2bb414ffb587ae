package postprocess

import "github.com/nvr-ai/go-livedetect/images"

// Remap converts detection boxes from letterboxed tensor space to source-frame pixels in place.
//
// Arguments:
//   - detections: Detections decoded from the tensor produced with t.
//   - t: The letterbox transform of the same frame.
//
// Returns:
//   - The same slice, with every Box remapped and its top-left corner clamped to zero.
func Remap(detections []Detection, t images.Transform) []Detection {
	for i := range detections {
		detections[i].Box = t.Remap(detections[i].Box)
	}
	return detections
}
