package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-livedetect/inference/providers"
	"github.com/nvr-ai/go-livedetect/models/model"
)

// writeConfig writes a YAML document to a temporary file.
func writeConfig(t *testing.T, doc string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

// TestDefault validates the defaults are runnable.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	m, err := cfg.Model.Resolve()
	require.NoError(t, err)
	assert.Equal(t, model.TaskDetect, m.Task)
	assert.Equal(t, 640, m.InputSize)
	assert.InDelta(t, 0.25, m.ConfidenceThreshold, 1e-6)
	require.NotNil(t, m.NMS)
	assert.InDelta(t, 0.45, m.NMS.IoUThreshold, 1e-6)
	assert.Equal(t, 33*time.Millisecond, cfg.FrameInterval)
}

// TestLoad validates YAML values override defaults.
func TestLoad(t *testing.T) {
	path := writeConfig(t, `
model:
  name: yolov8
  path: /models/yolov8s.onnx
  output_shape: [1, 8400, 84]
  layout: channels_last
  confidence_threshold: 0.4
  iou_threshold: 0.5
  class_aware: true
  max_detections: 20
provider:
  backend: coreml
  coreml:
    enable_on_subgraphs: true
source:
  directory: /frames
  loop: true
  motion:
    enabled: true
    threshold: 0.2
frame_interval: 100ms
server:
  addr: ":9000"
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/models/yolov8s.onnx", cfg.Model.Path)
	assert.Equal(t, providers.CoreMLProviderBackend, cfg.Provider.Backend)
	assert.True(t, cfg.Provider.CoreML.EnableOnSubgraphs)
	assert.Equal(t, "/frames", cfg.Source.Directory)
	assert.True(t, cfg.Source.Loop)
	assert.True(t, cfg.Source.Motion.Enabled)
	assert.InDelta(t, 0.2, cfg.Source.Motion.Threshold, 1e-9)
	assert.Equal(t, 21, cfg.Source.Motion.BlurKernelSize, "Unset motion values keep their defaults")
	assert.Equal(t, "0", cfg.Source.Camera.Device, "Unset values keep their defaults")
	assert.Equal(t, 100*time.Millisecond, cfg.FrameInterval)
	assert.Equal(t, ":9000", cfg.Server.Addr)

	m, err := cfg.Model.Resolve()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 8400, 84}, m.OutputShape)
	assert.Equal(t, "channels_last", m.Layout)
	assert.InDelta(t, 0.4, m.ConfidenceThreshold, 1e-6)
	assert.InDelta(t, 0.5, m.NMS.IoUThreshold, 1e-6)
	assert.True(t, m.NMS.ClassAware)
	assert.Equal(t, 20, m.NMS.MaxDetections)
}

// TestLoad_Errors validates unreadable, malformed and invalid files.
func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = Load(writeConfig(t, "model: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config")

	_, err = Load(writeConfig(t, "frame_interval: 0s"))
	assert.ErrorContains(t, err, "frame interval")
}

// TestValidate validates the cross-field rules.
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"Unknown model", func(c *Config) { c.Model.Name = "resnet" }, "unsupported model name"},
		{"Missing model path", func(c *Config) { c.Model.Path = "" }, "model path"},
		{"Classification without cascade", func(c *Config) { c.Model.Name = model.ModelNameFERPlus }, "cascade"},
		{"Graph without weights", func(c *Config) {
			c.Model.Name = model.ModelNameLinearHead
			c.Cascade = "face.xml"
		}, "weights"},
		{"Bad backend", func(c *Config) { c.Provider.Backend = "tpu" }, "unsupported provider backend"},
		{"No source", func(c *Config) { c.Source.Camera.Device = "" }, "camera device"},
		{"Bad log level", func(c *Config) { c.Log.Level = "loud" }, "loud"},
		{"Bad threshold", func(c *Config) { c.Model.ConfidenceThreshold = 2 }, "confidence threshold"},
		{"Bad motion threshold", func(c *Config) {
			c.Source.Motion.Enabled = true
			c.Source.Motion.Threshold = 1.5
		}, "motion threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}

	cfg := Default()
	cfg.Model.Name = model.ModelNameFERPlus
	cfg.Model.Path = "ferplus.onnx"
	cfg.Cascade = "haarcascade_frontalface_default.xml"
	assert.NoError(t, cfg.Validate(), "Classification with a cascade is valid")
}

// TestLogConfig_Build validates logger construction.
func TestLogConfig_Build(t *testing.T) {
	logger, err := LogConfig{Level: "warn"}.Build()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1), "Debug should be disabled")

	logger, err = LogConfig{Level: "debug", Development: true}.Build()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = LogConfig{Level: "nope"}.Build()
	assert.Error(t, err)
}
