// Package classifier - Softmax decoding of single-region classification outputs.
package classifier

import (
	"errors"
	"fmt"
	"image"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-livedetect/inference"
	"github.com/nvr-ai/go-livedetect/models/model"
)

var (
	// ErrEmptyLogits is returned for outputs without values.
	ErrEmptyLogits = errors.New("classification output is empty")
	// ErrClassCountMismatch is returned when the logits count differs from the label count.
	ErrClassCountMismatch = errors.New("classification output does not match label count")
)

// Result is the classification of one region of interest.
type Result struct {
	// Probabilities holds one softmax probability per label, summing to 1.
	Probabilities []float32 `json:"probabilities" yaml:"probabilities"`
	// ClassID is the arg-max index.
	ClassID int `json:"class_id" yaml:"class_id"`
	// ClassName is the label of ClassID.
	ClassName string `json:"class_name" yaml:"class_name"`
	// Confidence is the probability of ClassID.
	Confidence float32 `json:"confidence" yaml:"confidence"`
	// Region is the classified area in source-frame pixels.
	Region image.Rectangle `json:"region" yaml:"region"`
}

// Softmax converts logits into probabilities.
//
// The maximum logit is subtracted before exponentiation so large magnitudes
// cannot overflow.
//
// Arguments:
//   - logits: The raw scores.
//
// Returns:
//   - []float32: A new slice of probabilities, nil for empty input.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}

	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	probs := make([]float32, len(logits))
	var sum float32
	for i, v := range logits {
		probs[i] = math32.Exp(v - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// ArgMax returns the index of the largest value, the lowest index on ties, or -1 when empty.
func ArgMax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best
}

// Decode applies softmax to a logits tensor and picks the most likely label.
//
// Arguments:
//   - out: The raw output, any shape whose volume equals the class count.
//   - labels: The ordered labels; when nil or empty the class count is not checked.
//   - region: The region the input was cropped from.
//
// Returns:
//   - *Result: The classification.
//   - error: ErrEmptyLogits or ErrClassCountMismatch.
func Decode(out *inference.Output, labels model.Labels, region image.Rectangle) (*Result, error) {
	if out == nil || out.Len() == 0 {
		return nil, ErrEmptyLogits
	}

	logits := out.Data()
	if labels != nil && labels.Len() > 0 && len(logits) != labels.Len() {
		return nil, fmt.Errorf("%w: %d logits, %d labels", ErrClassCountMismatch, len(logits), labels.Len())
	}

	probs := Softmax(logits)
	id := ArgMax(probs)

	name := fmt.Sprintf("unknown_%d", id)
	if labels != nil {
		name = labels.Label(id)
	}

	return &Result{
		Probabilities: probs,
		ClassID:       id,
		ClassName:     name,
		Confidence:    probs[id],
		Region:        region,
	}, nil
}
