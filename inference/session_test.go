package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

// TestNewSession_RequiresShapes validates configuration checks before the runtime is touched.
func TestNewSession_RequiresShapes(t *testing.T) {
	_, err := NewSession(SessionConfig{ModelPath: "model.onnx"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

// TestNewSession_MissingLibrary validates a clear error when the runtime library is absent.
func TestNewSession_MissingLibrary(t *testing.T) {
	t.Setenv("ONNXRUNTIME_SHARED_LIBRARY_PATH", "")

	_, err := NewSession(SessionConfig{
		ModelPath:   "model.onnx",
		LibraryPath: t.TempDir() + "/missing.so",
		InputName:   "images",
		OutputName:  "output0",
		InputShape:  []int64{1, 3, 640, 640},
		OutputShape: []int64{1, 84, 8400},
	}, nil)
	assert.ErrorContains(t, err, "not found")
}
