package capture

import (
	"context"
	"image"
)

// Tap wraps a source and hands every frame it reads to observe.
//
// Arguments:
//   - src: The wrapped source.
//   - observe: Called with each non-nil frame before it is returned.
//
// Returns:
//   - Source: The wrapped source.
func Tap(src Source, observe func(image.Image)) Source {
	return &tappedSource{Source: src, observe: observe}
}

type tappedSource struct {
	Source
	observe func(image.Image)
}

func (t *tappedSource) Read(ctx context.Context) (image.Image, error) {
	frame, err := t.Source.Read(ctx)
	if err == nil && frame != nil && t.observe != nil {
		t.observe(frame)
	}
	return frame, err
}
