package render

import (
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-livedetect/pipeline"
)

var (
	boxColor    = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	statusColor = color.RGBA{R: 255, G: 64, B: 64, A: 0}
)

// Window draws the latest frame with its result in a desktop window.
//
// Observe and Publish may be called from any goroutine; Render must be
// called from the goroutine that created the window.
type Window struct {
	window  *gocv.Window
	display image.Point

	mu     sync.Mutex
	frame  image.Image
	result *pipeline.Result
	status string
}

// NewWindow opens a window.
//
// Arguments:
//   - title: The window title.
//   - width: The display width, 0 to follow the frame.
//   - height: The display height, 0 to follow the frame.
//
// Returns:
//   - *Window: The window.
func NewWindow(title string, width, height int) *Window {
	return &Window{
		window:  gocv.NewWindow(title),
		display: image.Pt(width, height),
	}
}

// Observe records the frame to draw next.
func (w *Window) Observe(frame image.Image) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frame = frame
}

// Publish records the result to draw next.
func (w *Window) Publish(result *pipeline.Result) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.result = result
}

// Status records the status line.
func (w *Window) Status(message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = message
}

// Render draws the last observed frame and waits briefly for a key press.
//
// Returns:
//   - bool: False once the window was closed or Esc/q was pressed.
func (w *Window) Render() bool {
	w.mu.Lock()
	frame, result, status := w.frame, w.result, w.status
	w.mu.Unlock()

	if frame != nil {
		if err := w.draw(frame, result, status); err != nil {
			return false
		}
	}

	switch w.window.WaitKey(1) {
	case 27, 'q':
		return false
	}
	return w.window.IsOpen()
}

func (w *Window) draw(frame image.Image, result *pipeline.Result, status string) error {
	img, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return err
	}
	defer img.Close()

	display := w.display
	if display.X <= 0 || display.Y <= 0 {
		display = frame.Bounds().Size()
	} else {
		gocv.Resize(img, &img, display, 0, 0, gocv.InterpolationLinear)
	}

	for _, a := range Annotations(result, display) {
		gocv.Rectangle(&img, a.Rect, boxColor, 2)
		gocv.PutText(&img, a.Label, image.Pt(a.Rect.Min.X, a.Rect.Min.Y-4), gocv.FontHersheyPlain, 1.2, boxColor, 2)
	}
	if status != "" {
		gocv.PutText(&img, status, image.Pt(8, display.Y-12), gocv.FontHersheyPlain, 1.2, statusColor, 2)
	}

	w.window.IMShow(img)
	return nil
}

// Close closes the window.
func (w *Window) Close() error {
	return w.window.Close()
}
