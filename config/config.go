// Package config - Application configuration loaded from YAML with CLI overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-livedetect/capture"
	"github.com/nvr-ai/go-livedetect/inference/providers"
	"github.com/nvr-ai/go-livedetect/models"
	"github.com/nvr-ai/go-livedetect/models/model"
	"github.com/nvr-ai/go-livedetect/models/postprocess"
	"github.com/nvr-ai/go-livedetect/profiler"
)

// Config is the complete application configuration.
type Config struct {
	// Model selects the model and overrides its preset.
	Model ModelConfig `json:"model" yaml:"model"`
	// Provider selects the ONNX Runtime execution provider.
	Provider providers.Config `json:"provider" yaml:"provider"`
	// Source selects where frames come from.
	Source SourceConfig `json:"source" yaml:"source"`
	// Cascade is the OpenCV cascade file used to find regions for classification models.
	Cascade string `json:"cascade" yaml:"cascade"`
	// FrameInterval is the scheduler cadence.
	FrameInterval time.Duration `json:"frame_interval" yaml:"frame_interval"`
	// Server configures the websocket broadcaster.
	Server ServerConfig `json:"server" yaml:"server"`
	// Window configures the desktop overlay.
	Window WindowConfig `json:"window" yaml:"window"`
	// Profiler configures periodic timing reports.
	Profiler profiler.Options `json:"profiler" yaml:"profiler"`
	// Log configures the logger.
	Log LogConfig `json:"log" yaml:"log"`
}

// ModelConfig selects a registered model and overrides its descriptor.
//
// Zero values keep the preset.
type ModelConfig struct {
	Name                model.Name `json:"name" yaml:"name"`
	Path                string     `json:"path" yaml:"path"`
	LibraryPath         string     `json:"library_path" yaml:"library_path"`
	Weights             string     `json:"weights" yaml:"weights"`
	Bias                string     `json:"bias" yaml:"bias"`
	InputSize           int        `json:"input_size" yaml:"input_size"`
	Input               string     `json:"input" yaml:"input"`
	Output              string     `json:"output" yaml:"output"`
	OutputShape         []int64    `json:"output_shape" yaml:"output_shape"`
	Layout              string     `json:"layout" yaml:"layout"`
	Labels              string     `json:"labels" yaml:"labels"`
	ConfidenceThreshold float32    `json:"confidence_threshold" yaml:"confidence_threshold"`
	IoUThreshold        float32    `json:"iou_threshold" yaml:"iou_threshold"`
	ClassAware          bool       `json:"class_aware" yaml:"class_aware"`
	MaxDetections       int        `json:"max_detections" yaml:"max_detections"`
}

// SourceConfig selects a camera or a directory of frames.
type SourceConfig struct {
	// Camera is used when Directory is empty.
	Camera capture.CameraConfig `json:"camera" yaml:"camera"`
	// Directory replays image files instead of a camera.
	Directory string `json:"directory" yaml:"directory"`
	// Loop restarts the directory replay at the end.
	Loop bool `json:"loop" yaml:"loop"`
	// Motion skips frames without enough change since the previous one.
	Motion MotionConfig `json:"motion" yaml:"motion"`
}

// MotionConfig enables motion gating.
type MotionConfig struct {
	capture.MotionConfig `yaml:",inline"`

	Enabled bool `json:"enabled" yaml:"enabled"`
}

// ServerConfig configures the websocket broadcaster.
type ServerConfig struct {
	// Addr is the listen address, empty disables the server.
	Addr string `json:"addr" yaml:"addr"`
}

// WindowConfig configures the desktop overlay.
type WindowConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Width   int  `json:"width" yaml:"width"`
	Height  int  `json:"height" yaml:"height"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level" yaml:"level"`
	// Development enables the console encoder and stack traces on warnings.
	Development bool `json:"development" yaml:"development"`
}

// Default returns the configuration for YOLOv8 on the first camera.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Name: model.ModelNameYOLOv8,
			Path: "yolov8n.onnx",
		},
		Provider: providers.DefaultConfig(),
		Source: SourceConfig{
			Camera: capture.CameraConfig{Device: "0"},
			Motion: MotionConfig{MotionConfig: capture.DefaultMotionConfig()},
		},
		FrameInterval: 33 * time.Millisecond,
		Server:        ServerConfig{Addr: ":8080"},
		Profiler:      profiler.Options{ReportInterval: 10 * time.Second},
		Log:           LogConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults and validates the result.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - Config: The configuration.
//   - error: If the file cannot be read, parsed or validated.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Validate checks the configuration is runnable.
func (c Config) Validate() error {
	m, err := c.Model.Resolve()
	if err != nil {
		return err
	}

	switch m.Runtime {
	case model.RuntimeONNX:
		if c.Model.Path == "" {
			return fmt.Errorf("model %s needs a model path", m.Name)
		}
	case model.RuntimeGraph:
		if c.Model.Weights == "" || c.Model.Bias == "" {
			return fmt.Errorf("model %s needs weights and bias files", m.Name)
		}
	}

	if m.Task == model.TaskClassify && c.Cascade == "" {
		return fmt.Errorf("classification model %s needs a cascade file", m.Name)
	}
	if _, err := providers.ParseBackend(string(c.Provider.Backend)); err != nil {
		return err
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame interval must be positive, got %v", c.FrameInterval)
	}
	if c.Source.Directory == "" && c.Source.Camera.Device == "" {
		return fmt.Errorf("a camera device or a frame directory is required")
	}
	if c.Source.Motion.Enabled && (c.Source.Motion.Threshold < 0 || c.Source.Motion.Threshold > 1) {
		return fmt.Errorf("motion threshold must be in [0, 1], got %v", c.Source.Motion.Threshold)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Resolve merges the overrides into the registered descriptor.
//
// Returns:
//   - model.Config: The validated descriptor.
//   - error: If the model is unknown or the result is invalid.
func (m ModelConfig) Resolve() (model.Config, error) {
	cfg, err := models.Lookup(m.Name)
	if err != nil {
		return model.Config{}, err
	}

	if m.InputSize > 0 {
		cfg.InputSize = m.InputSize
	}
	if m.Input != "" {
		cfg.Inputs = []string{m.Input}
	}
	if m.Output != "" {
		cfg.Outputs = []string{m.Output}
	}
	if len(m.OutputShape) > 0 {
		cfg.OutputShape = append([]int64(nil), m.OutputShape...)
	}
	if m.Layout != "" {
		cfg.Layout = m.Layout
	}
	if m.Labels != "" {
		cfg.Labels = m.Labels
	}
	if m.ConfidenceThreshold > 0 {
		cfg.ConfidenceThreshold = m.ConfidenceThreshold
	}
	if cfg.Task == model.TaskDetect {
		if cfg.NMS == nil {
			cfg.NMS = postprocess.DefaultNMSConfig()
		}
		if m.IoUThreshold > 0 {
			cfg.NMS.IoUThreshold = m.IoUThreshold
		}
		cfg.NMS.ClassAware = cfg.NMS.ClassAware || m.ClassAware
		if m.MaxDetections > 0 {
			cfg.NMS.MaxDetections = m.MaxDetections
		}
	}

	if err := cfg.Validate(); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

// Build creates the logger described by the configuration.
func (l LogConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
