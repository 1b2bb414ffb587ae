// Package preprocess - Letterbox preprocessing of camera frames into model-ready tensors.
package preprocess

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-livedetect/images"
)

// ErrEmptyFrame is returned when the source frame has zero width or height.
var ErrEmptyFrame = images.ErrEmptyFrame

// PadColor is the neutral gray used to fill the letterbox margins.
var PadColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string `json:"name" yaml:"name"`
	// InputSize is the side S of the square model input.
	InputSize int `json:"input_size" yaml:"input_size"`
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType `json:"normalization_type" yaml:"normalization_type"`
	// ColorMode defines the order of the three channel planes.
	ColorMode ColorMode `json:"color_mode" yaml:"color_mode"`
	// LetterboxColor is the color used for letterbox padding.
	LetterboxColor color.RGBA `json:"-" yaml:"-"`
	// Interpolation is the resampling filter used to scale the frame.
	Interpolation resize.InterpolationFunction `json:"-" yaml:"-"`
}

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne NormalizationType = iota
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone
)

// ColorMode defines the channel plane order of the tensor.
type ColorMode int

const (
	// ColorModeRGB writes the R plane first, then G, then B.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR writes the B plane first (common for OpenCV-trained models).
	ColorModeBGR
)

// DetectionConfig returns the configuration for 640x640 detector inputs.
//
// Returns:
// - A ModelConfig with S=640, RGB planes, values scaled to [0, 1] and gray padding.
func DetectionConfig() *ModelConfig {
	return &ModelConfig{
		Name:              "detection",
		InputSize:         640,
		NormalizationType: NormalizeZeroToOne,
		ColorMode:         ColorModeRGB,
		LetterboxColor:    PadColor,
		Interpolation:     resize.Bilinear,
	}
}

// ClassificationConfig returns the configuration for 64x64 classifier inputs.
//
// Returns:
// - A ModelConfig with S=64, RGB planes, values scaled to [0, 1] and gray padding.
func ClassificationConfig() *ModelConfig {
	cfg := DetectionConfig()
	cfg.Name = "classification"
	cfg.InputSize = 64
	return cfg
}

// PreprocessingResult contains the preprocessed tensor data and the letterbox metadata.
type PreprocessingResult struct {
	// Data is the planar float32 tensor data, length 3*S*S.
	Data []float32
	// Shape is the tensor shape [1, 3, S, S].
	Shape []int64
	// OriginalWidth is the source frame width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the source frame height before preprocessing.
	OriginalHeight int
	// Transform maps tensor-space boxes back to the source frame.
	Transform images.Transform

	pool *sync.Pool
}

// Release returns the tensor buffer to the preprocessor pool.
//
// Data must not be used after Release. Calling Release more than once is a no-op.
func (r *PreprocessingResult) Release() {
	if r == nil || r.pool == nil || r.Data == nil {
		return
	}
	buf := r.Data[:cap(r.Data)]
	r.pool.Put(&buf)
	r.Data = nil
	r.pool = nil
}

// Preprocessor converts frames into letterboxed NCHW tensors.
//
// A Preprocessor is safe for concurrent use; tensor buffers are pooled.
type Preprocessor struct {
	config     *ModelConfig
	bufferPool *sync.Pool
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
// - config: The model-specific preprocessing configuration. Nil selects DetectionConfig.
//   The preprocessor keeps its own copy.
//
// Returns:
// - A configured Preprocessor instance.
//
// @example
// preprocessor := NewPreprocessor(DetectionConfig())
func NewPreprocessor(config *ModelConfig) *Preprocessor {
	if config == nil {
		config = DetectionConfig()
	}
	cfg := *config
	if cfg.LetterboxColor == (color.RGBA{}) {
		cfg.LetterboxColor = PadColor
	}
	if cfg.Interpolation == nil {
		cfg.Interpolation = resize.Bilinear
	}
	config = &cfg

	size := 3 * config.InputSize * config.InputSize
	return &Preprocessor{
		config: config,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				buf := make([]float32, size)
				return &buf
			},
		},
	}
}

// Config returns the preprocessing configuration.
func (p *Preprocessor) Config() *ModelConfig {
	return p.config
}

// Preprocess letterboxes a frame onto an SxS canvas and converts it to a planar tensor.
//
// Arguments:
// - img: The source frame.
//
// Returns:
// - PreprocessingResult containing the [1, 3, S, S] tensor and the letterbox transform.
// - error wrapping ErrEmptyFrame when the frame has no pixels.
//
// @example
// result, err := preprocessor.Preprocess(frame)
//
//	if err != nil {
//	    return err
//	}
//
// defer result.Release()
func (p *Preprocessor) Preprocess(img image.Image) (*PreprocessingResult, error) {
	if img == nil {
		return nil, errors.Wrap(ErrEmptyFrame, "frame is nil")
	}

	bounds := img.Bounds()
	transform, err := images.NewTransform(bounds.Dx(), bounds.Dy(), p.config.InputSize)
	if err != nil {
		return nil, errors.Wrap(err, "letterbox failed")
	}

	canvas := p.letterbox(img, transform)

	bufPtr := p.bufferPool.Get().(*[]float32)
	data := (*bufPtr)[:3*p.config.InputSize*p.config.InputSize]
	p.canvasToTensor(canvas, data)

	s := int64(p.config.InputSize)
	return &PreprocessingResult{
		Data:           data,
		Shape:          []int64{1, 3, s, s},
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
		Transform:      transform,
		pool:           p.bufferPool,
	}, nil
}

// PreprocessEncoded decodes an encoded frame (JPEG, PNG or WebP) and preprocesses it.
//
// Arguments:
// - img: The encoded frame.
//
// Returns:
// - PreprocessingResult containing the tensor and the letterbox transform.
// - error if decoding or preprocessing fails.
func (p *Preprocessor) PreprocessEncoded(img *images.Image) (*PreprocessingResult, error) {
	decoded, err := img.Decode()
	if err != nil {
		return nil, errors.Wrap(err, "image decoding failed")
	}
	return p.Preprocess(decoded)
}

// letterbox scales the frame to fit the canvas and centers it on the pad color.
func (p *Preprocessor) letterbox(img image.Image, t images.Transform) *image.RGBA {
	size := p.config.InputSize
	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: p.config.LetterboxColor}, image.Point{}, draw.Src)

	scaled := resize.Resize(uint(t.ScaledWidth), uint(t.ScaledHeight), img, p.config.Interpolation)
	dst := image.Rect(t.PadX, t.PadY, t.PadX+t.ScaledWidth, t.PadY+t.ScaledHeight)
	draw.Draw(canvas, dst, scaled, scaled.Bounds().Min, draw.Over)

	return canvas
}

// canvasToTensor writes the canvas as three planes into data.
func (p *Preprocessor) canvasToTensor(canvas *image.RGBA, data []float32) {
	size := p.config.InputSize
	plane := size * size

	divisor := float32(1)
	if p.config.NormalizationType == NormalizeZeroToOne {
		divisor = 255
	}

	first, third := 0, 2
	if p.config.ColorMode == ColorModeBGR {
		first, third = 2, 0
	}

	for y := 0; y < size; y++ {
		row := canvas.Pix[y*canvas.Stride:]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+3]
			i := y*size + x
			data[first*plane+i] = float32(px[0]) / divisor
			data[plane+i] = float32(px[1]) / divisor
			data[third*plane+i] = float32(px[2]) / divisor
		}
	}
}
