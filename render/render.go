// Package render - Display boundary: result broadcasting and on-screen overlays.
package render

import (
	"fmt"
	"image"
	"math"

	"go.uber.org/zap"

	"github.com/nvr-ai/go-livedetect/images"
	"github.com/nvr-ai/go-livedetect/pipeline"
)

// Sink consumes results for display.
type Sink = pipeline.Sink

// ScaleRect maps a source-frame box onto a display surface and clips it.
//
// Arguments:
//   - r: The box in source-frame pixels.
//   - frame: The source frame size.
//   - display: The display surface size.
//
// Returns:
//   - image.Rectangle: The box in display pixels, empty when it falls outside the surface.
func ScaleRect(r images.Rect, frame, display image.Point) image.Rectangle {
	if frame.X <= 0 || frame.Y <= 0 {
		return image.Rectangle{}
	}

	sx := float64(display.X) / float64(frame.X)
	sy := float64(display.Y) / float64(frame.Y)

	out := image.Rect(
		int(math.Floor(float64(r.X1)*sx)),
		int(math.Floor(float64(r.Y1)*sy)),
		int(math.Ceil(float64(r.X2)*sx)),
		int(math.Ceil(float64(r.Y2)*sy)),
	)
	return out.Intersect(image.Rectangle{Max: display})
}

// Annotation is one labelled box on the display surface.
type Annotation struct {
	Rect  image.Rectangle
	Label string
}

// Annotations converts a result into display-space boxes.
//
// Arguments:
//   - result: The frame result.
//   - display: The display surface size.
//
// Returns:
//   - []Annotation: One entry per visible detection or the classified region.
func Annotations(result *pipeline.Result, display image.Point) []Annotation {
	if result == nil {
		return nil
	}

	frame := image.Pt(result.Width, result.Height)
	var out []Annotation

	for _, d := range result.Detections {
		rect := ScaleRect(d.Box, frame, display)
		if rect.Empty() {
			continue
		}
		out = append(out, Annotation{Rect: rect, Label: fmt.Sprintf("%s %.0f%%", d.ClassName, d.Confidence*100)})
	}

	if c := result.Classification; c != nil {
		region := images.Rect{
			X1: float32(c.Region.Min.X), Y1: float32(c.Region.Min.Y),
			X2: float32(c.Region.Max.X), Y2: float32(c.Region.Max.Y),
		}
		if rect := ScaleRect(region, frame, display); !rect.Empty() {
			out = append(out, Annotation{Rect: rect, Label: fmt.Sprintf("%s %.0f%%", c.ClassName, c.Confidence*100)})
		}
	}

	return out
}

// Multi fans results out to several sinks.
type Multi []Sink

// Publish forwards the result to every sink.
func (m Multi) Publish(result *pipeline.Result) {
	for _, s := range m {
		s.Publish(result)
	}
}

// Status forwards the message to every sink.
func (m Multi) Status(message string) {
	for _, s := range m {
		s.Status(message)
	}
}

// LogSink writes results and status changes to a logger.
type LogSink struct {
	Logger *zap.Logger
}

// Publish logs the result at Info level.
func (l LogSink) Publish(result *pipeline.Result) {
	fields := []zap.Field{
		zap.String("frame_id", result.FrameID),
		zap.Duration("latency", result.Latency),
	}
	if c := result.Classification; c != nil {
		fields = append(fields, zap.String("class", c.ClassName), zap.Float32("confidence", c.Confidence))
	} else {
		labels := make([]string, len(result.Detections))
		for i, d := range result.Detections {
			labels[i] = d.String()
		}
		fields = append(fields, zap.Strings("detections", labels))
	}
	l.Logger.Info("frame result", fields...)
}

// Status logs non-empty messages at Warn level.
func (l LogSink) Status(message string) {
	if message == "" {
		l.Logger.Info("pipeline recovered")
		return
	}
	l.Logger.Warn("pipeline status", zap.String("status", message))
}
