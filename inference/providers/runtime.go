package providers

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// LibraryPathEnv overrides the shared library location when set.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var initMu sync.Mutex

// SharedLibPath returns the path to the shared library for the current platform.
//
// Arguments:
//   - dir: The directory holding the platform libraries, usually "third_party".
//
// Returns:
//   - string: The path to the shared library.
//   - error: If the platform has no known library name.
func SharedLibPath(dir string) (string, error) {
	if p := os.Getenv(LibraryPathEnv); p != "" {
		return p, nil
	}

	var name string
	switch runtime.GOOS {
	case "windows":
		name = "onnxruntime.dll"
	case "darwin":
		name = "libonnxruntime.dylib"
	case "linux":
		name = "onnxruntime.so"
		if runtime.GOARCH == "arm64" {
			name = "onnxruntime_arm64.so"
		}
	default:
		return "", fmt.Errorf("no onnxruntime library known for %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	return filepath.Join(dir, name), nil
}

// InitializeRuntime loads the ONNX Runtime shared library once per process.
//
// Subsequent calls are no-ops while the environment stays initialized.
//
// Arguments:
//   - libPath: The shared library to load.
//
// Returns:
//   - error: If the library is missing or the environment cannot be created.
func InitializeRuntime(libPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	if _, err := os.Stat(libPath); err != nil {
		return fmt.Errorf("ONNX Runtime library not found at %s: %w", libPath, err)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("error initializing ORT environment: %w", err)
	}
	return nil
}

// DestroyRuntime releases the ONNX Runtime environment.
func DestroyRuntime() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// NewSessionOptions builds session options with threading, graph optimization and the provider applied.
//
// The caller owns the returned options and must Destroy them once the session is created.
//
// Arguments:
//   - provider: The execution provider to register.
//   - cfg: The provider configuration carrying thread counts.
//
// Returns:
//   - *ort.SessionOptions: The configured options.
//   - error: If any option cannot be applied.
func NewSessionOptions(provider ExecutionProvider, cfg Config) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}

	if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("error setting inter-op threads: %w", err)
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("error setting graph optimization level: %w", err)
	}

	if err := provider.Apply(options); err != nil {
		options.Destroy()
		return nil, err
	}

	return options, nil
}
