package images

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// Image represents an encoded frame with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The encoded bytes of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// Decode decodes the encoded frame bytes into an image.Image.
//
// An empty Format falls back to the registered stdlib decoders (JPEG and PNG).
//
// Returns:
//   - image.Image: The decoded frame.
//   - error: When the data is empty or cannot be decoded in the declared format.
func (i *Image) Decode() (image.Image, error) {
	if i == nil || len(i.Data) == 0 {
		return nil, ErrEmptyFrame
	}

	reader := bytes.NewReader(i.Data)

	var (
		decoded image.Image
		err     error
	)
	switch i.Format {
	case FormatJPEG:
		decoded, err = jpeg.Decode(reader)
	case FormatPNG:
		decoded, err = png.Decode(reader)
	case FormatWebP:
		decoded, err = webp.Decode(reader)
	case "":
		decoded, _, err = image.Decode(reader)
	default:
		return nil, fmt.Errorf("unsupported image format: %q", i.Format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s frame", i.Format)
	}

	return decoded, nil
}
