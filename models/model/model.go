// Package model - Model descriptors shared by the decoders, the registry and the pipeline.
package model

import (
	"fmt"

	"github.com/nvr-ai/go-livedetect/models/postprocess"
)

// Task is the kind of output a model produces.
type Task string

const (
	// TaskDetect models emit boxes with class scores.
	TaskDetect Task = "detect"
	// TaskClassify models emit one logits vector for a region of interest.
	TaskClassify Task = "classify"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOv8 is an anchor-free YOLOv8 detector exported to ONNX.
	ModelNameYOLOv8 Name = "yolov8"
	// ModelNameFERPlus is the FER+ facial expression classifier.
	ModelNameFERPlus Name = "ferplus"
	// ModelNameLinearHead is a pure Go linear classifier loaded from .npy weights.
	ModelNameLinearHead Name = "linear-head"
)

// Runtime is the backend that executes a model.
type Runtime string

const (
	// RuntimeONNX runs the model through onnxruntime.
	RuntimeONNX Runtime = "onnx"
	// RuntimeGraph runs the model as a gorgonia expression graph.
	RuntimeGraph Runtime = "graph"
)

// Labels resolves class indices to names.
type Labels interface {
	// Len returns the number of known classes.
	Len() int
	// Label returns the name of a class index, or unknown_<idx> when out of range.
	Label(idx int) string
}

// Config describes how a model is fed and how its output is read.
type Config struct {
	Name                Name                   `json:"name" yaml:"name"`
	Task                Task                   `json:"task" yaml:"task"`
	Runtime             Runtime                `json:"runtime" yaml:"runtime"`
	InputSize           int                    `json:"input_size" yaml:"input_size"`
	Inputs              []string               `json:"inputs" yaml:"inputs"`
	Outputs             []string               `json:"outputs" yaml:"outputs"`
	OutputShape         []int64                `json:"output_shape" yaml:"output_shape"`
	Layout              string                 `json:"layout" yaml:"layout"`
	Labels              string                 `json:"labels" yaml:"labels"`
	ConfidenceThreshold float32                `json:"confidence_threshold" yaml:"confidence_threshold"`
	NMS                 *postprocess.NMSConfig `json:"nms" yaml:"nms"`
}

// InputShape returns the [1, 3, S, S] tensor shape fed to the model.
func (c Config) InputShape() []int64 {
	s := int64(c.InputSize)
	return []int64{1, 3, s, s}
}

// Validate checks the fields every runtime relies on.
func (c Config) Validate() error {
	switch c.Task {
	case TaskDetect, TaskClassify:
	default:
		return fmt.Errorf("unsupported task: %q", c.Task)
	}
	switch c.Runtime {
	case RuntimeONNX, RuntimeGraph:
	default:
		return fmt.Errorf("unsupported runtime: %q", c.Runtime)
	}
	if c.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d", c.InputSize)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0, 1], got %v", c.ConfidenceThreshold)
	}
	if c.NMS != nil && (c.NMS.IoUThreshold < 0 || c.NMS.IoUThreshold > 1) {
		return fmt.Errorf("iou threshold must be in [0, 1], got %v", c.NMS.IoUThreshold)
	}
	if c.Runtime == RuntimeONNX && (len(c.Inputs) != 1 || len(c.Outputs) != 1) {
		return fmt.Errorf("onnx models need exactly one input and one output name")
	}
	if c.Runtime == RuntimeONNX && len(c.OutputShape) == 0 {
		return fmt.Errorf("onnx models need an output shape")
	}
	return nil
}
