package models

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nvr-ai/go-livedetect/models/model"
	"github.com/nvr-ai/go-livedetect/models/postprocess"
)

var (
	registryMu sync.RWMutex
	registry   = map[model.Name]func() model.Config{
		model.ModelNameYOLOv8:     yolov8Config,
		model.ModelNameFERPlus:    ferPlusConfig,
		model.ModelNameLinearHead: linearHeadConfig,
	}
)

func yolov8Config() model.Config {
	return model.Config{
		Name:                model.ModelNameYOLOv8,
		Task:                model.TaskDetect,
		Runtime:             model.RuntimeONNX,
		InputSize:           640,
		Inputs:              []string{"images"},
		Outputs:             []string{"output0"},
		OutputShape:         []int64{1, 84, 8400},
		Layout:              "auto",
		Labels:              string(PresetCOCO),
		ConfidenceThreshold: 0.25,
		NMS:                 postprocess.DefaultNMSConfig(),
	}
}

func ferPlusConfig() model.Config {
	return model.Config{
		Name:                model.ModelNameFERPlus,
		Task:                model.TaskClassify,
		Runtime:             model.RuntimeONNX,
		InputSize:           64,
		Inputs:              []string{"input"},
		Outputs:             []string{"output"},
		OutputShape:         []int64{1, 8},
		Labels:              string(PresetFERPlus),
		ConfidenceThreshold: 0,
	}
}

func linearHeadConfig() model.Config {
	return model.Config{
		Name:      model.ModelNameLinearHead,
		Task:      model.TaskClassify,
		Runtime:   model.RuntimeGraph,
		InputSize: 64,
		Labels:    string(PresetFERPlus),
	}
}

// Lookup returns a fresh copy of a registered model descriptor.
//
// Arguments:
//   - name: The model name.
//
// Returns:
//   - model.Config: The descriptor, safe to modify.
//   - error: If no model is registered under name.
//
// Example:
//
// ```go
//
//	cfg, err := models.Lookup(model.ModelNameYOLOv8)
//	if err != nil {
//	    return err
//	}
//	cfg.ConfidenceThreshold = 0.4
//
// ```
func Lookup(name model.Name) (model.Config, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := registry[name]
	if !ok {
		return model.Config{}, fmt.Errorf("unsupported model name: %s", name)
	}
	return factory(), nil
}

// Register adds or replaces a model descriptor.
func Register(name model.Name, factory func() model.Config) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Names returns the registered model names, sorted.
func Names() []model.Name {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]model.Name, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
