// Package main - livedetect runs live object detection or subject classification on a camera feed.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/nvr-ai/go-livedetect/config"
	"github.com/nvr-ai/go-livedetect/inference/providers"
	"github.com/nvr-ai/go-livedetect/models"
	"github.com/nvr-ai/go-livedetect/models/model"
	"github.com/nvr-ai/go-livedetect/render"
)

const (
	flagConfig     = "config"
	flagModel      = "model"
	flagModelPath  = "model-path"
	flagLibrary    = "library"
	flagWeights    = "weights"
	flagBias       = "bias"
	flagLabels     = "labels"
	flagLayout     = "layout"
	flagConfidence = "confidence"
	flagIoU        = "iou"
	flagProvider   = "provider"
	flagDevice     = "device"
	flagDir        = "dir"
	flagLoop       = "loop"
	flagMotion     = "motion"
	flagCascade    = "cascade"
	flagInterval   = "interval"
	flagAddr       = "addr"
	flagWindow     = "window"
	flagLogLevel   = "log-level"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newCLI describes the command line.
func newCLI() *cli.App {
	return &cli.App{
		Name:  "livedetect",
		Usage: "run a detection or classification model on live frames",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagConfig, Aliases: []string{"c"}, Usage: "YAML configuration file"},
			&cli.StringFlag{Name: flagModel, Aliases: []string{"m"}, Usage: "registered model name"},
			&cli.StringFlag{Name: flagModelPath, Usage: "ONNX model file"},
			&cli.StringFlag{Name: flagLibrary, Usage: "ONNX Runtime shared library", EnvVars: []string{providers.LibraryPathEnv}},
			&cli.StringFlag{Name: flagWeights, Usage: "linear head weights (.npy)"},
			&cli.StringFlag{Name: flagBias, Usage: "linear head bias (.npy)"},
			&cli.StringFlag{Name: flagLabels, Usage: "label preset (coco, voc, ferplus) or label file"},
			&cli.StringFlag{Name: flagLayout, Usage: "detection output layout: auto, channels_first, channels_last"},
			&cli.Float64Flag{Name: flagConfidence, Usage: "confidence threshold"},
			&cli.Float64Flag{Name: flagIoU, Usage: "NMS IoU threshold"},
			&cli.StringFlag{Name: flagProvider, Usage: "execution provider: cpu, coreml, openvino, cuda"},
			&cli.StringFlag{Name: flagDevice, Aliases: []string{"d"}, Usage: "camera index or stream URL"},
			&cli.StringFlag{Name: flagDir, Usage: "replay image files from a directory instead of a camera"},
			&cli.BoolFlag{Name: flagLoop, Usage: "loop the directory replay"},
			&cli.Float64Flag{Name: flagMotion, Usage: "skip frames whose motion score is below this threshold"},
			&cli.StringFlag{Name: flagCascade, Usage: "OpenCV cascade file for classification regions"},
			&cli.DurationFlag{Name: flagInterval, Usage: "frame interval"},
			&cli.StringFlag{Name: flagAddr, Usage: "websocket listen address, empty to disable"},
			&cli.BoolFlag{Name: flagWindow, Usage: "show the overlay window"},
			&cli.StringFlag{Name: flagLogLevel, Usage: "debug, info, warn or error"},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "models",
				Usage:  "list registered models",
				Action: listModelsAction,
			},
			benchCommand(),
		},
	}
}

// loadConfig reads the configuration file, if any, and applies flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if c.IsSet(flagModel) {
		cfg.Model.Name = model.Name(c.String(flagModel))
	}
	if c.IsSet(flagModelPath) {
		cfg.Model.Path = c.String(flagModelPath)
	}
	if c.IsSet(flagLibrary) {
		cfg.Model.LibraryPath = c.String(flagLibrary)
	}
	if c.IsSet(flagWeights) {
		cfg.Model.Weights = c.String(flagWeights)
	}
	if c.IsSet(flagBias) {
		cfg.Model.Bias = c.String(flagBias)
	}
	if c.IsSet(flagLabels) {
		cfg.Model.Labels = c.String(flagLabels)
	}
	if c.IsSet(flagLayout) {
		cfg.Model.Layout = c.String(flagLayout)
	}
	if c.IsSet(flagConfidence) {
		cfg.Model.ConfidenceThreshold = float32(c.Float64(flagConfidence))
	}
	if c.IsSet(flagIoU) {
		cfg.Model.IoUThreshold = float32(c.Float64(flagIoU))
	}
	if c.IsSet(flagProvider) {
		backend, err := providers.ParseBackend(c.String(flagProvider))
		if err != nil {
			return config.Config{}, err
		}
		cfg.Provider.Backend = backend
	}
	if c.IsSet(flagDevice) {
		cfg.Source.Camera.Device = c.String(flagDevice)
	}
	if c.IsSet(flagDir) {
		cfg.Source.Directory = c.String(flagDir)
	}
	if c.IsSet(flagLoop) {
		cfg.Source.Loop = c.Bool(flagLoop)
	}
	if c.IsSet(flagMotion) {
		cfg.Source.Motion.Enabled = true
		cfg.Source.Motion.Threshold = c.Float64(flagMotion)
	}
	if c.IsSet(flagCascade) {
		cfg.Cascade = c.String(flagCascade)
	}
	if c.IsSet(flagInterval) {
		cfg.FrameInterval = c.Duration(flagInterval)
	}
	if c.IsSet(flagAddr) {
		cfg.Server.Addr = c.String(flagAddr)
	}
	if c.IsSet(flagWindow) {
		cfg.Window.Enabled = c.Bool(flagWindow)
	}
	if c.IsSet(flagLogLevel) {
		cfg.Log.Level = c.String(flagLogLevel)
	}

	return cfg, cfg.Validate()
}

func runAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, a.Close(), providers.DestroyRuntime())
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.run(ctx)
}

func listModelsAction(c *cli.Context) error {
	for _, name := range models.Names() {
		m, err := models.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%-12s %-9s %-6s %dx%d labels=%s\n", name, m.Task, m.Runtime, m.InputSize, m.InputSize, m.Labels)
	}
	return nil
}

// idleWait paces the main loop: the window needs frequent redraws, the headless run only polls the scheduler state.
func idleWait(w *render.Window) <-chan time.Time {
	if w != nil {
		return time.After(time.Millisecond)
	}
	return time.After(100 * time.Millisecond)
}
