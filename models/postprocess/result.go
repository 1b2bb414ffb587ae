// Package postprocess - Detection results, Non-Maximum Suppression and coordinate remapping.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-livedetect/images"
)

// Detection represents a single detection result.
type Detection struct {
	// The bounding box of the detection. Tensor space until remapped, source-frame pixels after.
	Box images.Rect `json:"box" yaml:"box"`
	// The predicted class index of the detection.
	ClassID int `json:"class_id" yaml:"class_id"`
	// The resolved label of the predicted class.
	ClassName string `json:"class_name" yaml:"class_name"`
	// The confidence score of the detection in [0, 1].
	Confidence float32 `json:"confidence" yaml:"confidence"`
}

// String returns a compact human readable form used in logs and overlays.
func (d Detection) String() string {
	return fmt.Sprintf("%s %.2f [%.0f,%.0f,%.0f,%.0f]",
		d.ClassName, d.Confidence, d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
}
