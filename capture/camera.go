package capture

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// CameraConfig selects and sizes a capture device.
type CameraConfig struct {
	// Device is a device index ("0") or a stream/file URL.
	Device string `json:"device" yaml:"device"`
	// Width requests a capture width, 0 keeps the device default.
	Width int `json:"width" yaml:"width"`
	// Height requests a capture height, 0 keeps the device default.
	Height int `json:"height" yaml:"height"`
}

// Camera reads frames from an OpenCV video capture.
type Camera struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	frame   gocv.Mat
	device  string
	logger  *zap.Logger
}

// OpenCamera opens a capture device.
//
// Arguments:
//   - cfg: The device and requested frame size.
//   - logger: The logger, nil for none.
//
// Returns:
//   - *Camera: The open camera.
//   - error: If the device cannot be opened.
func OpenCamera(cfg CameraConfig, logger *zap.Logger) (*Camera, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var device interface{} = cfg.Device
	if id, err := strconv.Atoi(cfg.Device); err == nil {
		device = id
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device %q: %w", cfg.Device, err)
	}
	if cfg.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	logger.Info("camera opened", zap.String("device", cfg.Device))

	return &Camera{
		capture: capture,
		frame:   gocv.NewMat(),
		device:  cfg.Device,
		logger:  logger,
	}, nil
}

// Active reports whether the device is still open.
func (c *Camera) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil && c.capture.IsOpened()
}

// Ready is equivalent to Active; a VideoCapture blocks until a frame is available.
func (c *Camera) Ready() bool {
	return c.Active()
}

// Read grabs the next frame and converts it to an image.Image.
func (c *Camera) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrSourceClosed
	}
	if ok := c.capture.Read(&c.frame); !ok {
		if err := readFailure(c.capture.IsOpened(), c.device); err != nil {
			return nil, err
		}
		c.logger.Debug("frame read failed", zap.String("device", c.device))
		return nil, nil
	}
	if c.frame.Empty() {
		return nil, nil
	}

	img, err := c.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

// readFailure classifies a failed read. A device that is still open only
// missed a frame; a closed one ends the run.
func readFailure(opened bool, device string) error {
	if opened {
		return nil
	}
	return fmt.Errorf("%w: device %s is no longer open", ErrSourceClosed, device)
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.frame.Close()
	c.capture = nil
	return err
}
