// Package models - Label sets and the registry of known model descriptors.
package models

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Preset names a built-in label set.
type Preset string

const (
	// PresetCOCO is the 80 COCO classes, zero based, no background (YOLO ordering).
	PresetCOCO Preset = "coco"
	// PresetVOC is the 20 Pascal VOC classes, zero based, no background.
	PresetVOC Preset = "voc"
	// PresetFERPlus is the 8 FER+ facial expressions.
	PresetFERPlus Preset = "ferplus"
)

// LabelSet is an ordered list of class names.
//
// Index i of a model's class scores maps to the i-th label. A LabelSet is
// immutable after construction and safe for concurrent use.
type LabelSet struct {
	name   string
	labels []string
	index  map[string]int
}

// NewLabelSet creates a label set from an ordered list of names.
//
// Arguments:
//   - name: Identifier used in logs.
//   - labels: The class names, copied.
//
// Returns:
//   - *LabelSet: The label set.
func NewLabelSet(name string, labels []string) *LabelSet {
	s := &LabelSet{
		name:   name,
		labels: append([]string(nil), labels...),
		index:  make(map[string]int, len(labels)),
	}
	for i, l := range s.labels {
		if _, ok := s.index[l]; !ok {
			s.index[l] = i
		}
	}
	return s
}

// LoadLabelSet reads a newline separated label file.
//
// Blank lines and lines starting with '#' are skipped; surrounding
// whitespace is trimmed.
//
// Arguments:
//   - path: The label file.
//
// Returns:
//   - *LabelSet: The label set, named after the file.
//   - error: If the file cannot be read or holds no labels.
func LoadLabelSet(path string) (*LabelSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open label file")
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read label file")
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("label file %s holds no labels", path)
	}

	return NewLabelSet(path, labels), nil
}

// ResolveLabelSet returns a built-in preset, or loads the value as a label file path.
//
// Arguments:
//   - ref: A Preset name or a file path.
//
// Returns:
//   - *LabelSet: The label set.
//   - error: If ref is neither a preset nor a readable label file.
func ResolveLabelSet(ref string) (*LabelSet, error) {
	switch Preset(strings.ToLower(ref)) {
	case PresetCOCO:
		return COCOLabels(), nil
	case PresetVOC:
		return VOCLabels(), nil
	case PresetFERPlus:
		return FERPlusLabels(), nil
	}
	if ref == "" {
		return nil, fmt.Errorf("no label set configured")
	}
	return LoadLabelSet(ref)
}

// Name returns the identifier of the label set.
func (s *LabelSet) Name() string {
	return s.name
}

// Len returns the number of labels.
func (s *LabelSet) Len() int {
	return len(s.labels)
}

// Label returns the name at idx, or the synthetic unknown_<idx> when out of range.
func (s *LabelSet) Label(idx int) string {
	if idx < 0 || idx >= len(s.labels) {
		return fmt.Sprintf("unknown_%d", idx)
	}
	return s.labels[idx]
}

// Index returns the first index of a label name.
func (s *LabelSet) Index(name string) (int, bool) {
	idx, ok := s.index[name]
	return idx, ok
}

// Labels returns a copy of the ordered names.
func (s *LabelSet) Labels() []string {
	return append([]string(nil), s.labels...)
}

var cocoLabels = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

var vocLabels = []string{
	"aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person", "pottedplant", "sheep", "sofa", "train", "tvmonitor",
}

var ferPlusLabels = []string{
	"neutral", "happiness", "surprise", "sadness", "anger", "disgust", "fear", "contempt",
}

// COCOLabels returns the 80 COCO classes in YOLO order.
func COCOLabels() *LabelSet {
	return NewLabelSet(string(PresetCOCO), cocoLabels)
}

// VOCLabels returns the 20 Pascal VOC classes.
func VOCLabels() *LabelSet {
	return NewLabelSet(string(PresetVOC), vocLabels)
}

// FERPlusLabels returns the 8 FER+ emotions in model output order.
func FERPlusLabels() *LabelSet {
	return NewLabelSet(string(PresetFERPlus), ferPlusLabels)
}
