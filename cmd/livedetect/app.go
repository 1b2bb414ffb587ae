package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-livedetect/capture"
	"github.com/nvr-ai/go-livedetect/config"
	"github.com/nvr-ai/go-livedetect/inference"
	"github.com/nvr-ai/go-livedetect/inference/providers"
	"github.com/nvr-ai/go-livedetect/models"
	"github.com/nvr-ai/go-livedetect/models/model"
	"github.com/nvr-ai/go-livedetect/models/model/preprocess"
	"github.com/nvr-ai/go-livedetect/models/yolov8"
	"github.com/nvr-ai/go-livedetect/pipeline"
	"github.com/nvr-ai/go-livedetect/profiler"
	"github.com/nvr-ai/go-livedetect/render"
)

// app holds everything built from a configuration.
type app struct {
	logger    *zap.Logger
	profiler  *profiler.Profiler
	scheduler *pipeline.Scheduler
	hub       *render.Hub
	window    *render.Window
	addr      string

	closers []io.Closer
}

// buildRunner creates the model runner for a resolved descriptor.
func buildRunner(cfg config.Config, m model.Config, logger *zap.Logger) (inference.Runner, error) {
	switch m.Runtime {
	case model.RuntimeGraph:
		head, err := inference.LoadLinearHead(cfg.Model.Weights, cfg.Model.Bias)
		if err != nil {
			return nil, err
		}
		return inference.NewGraphRunner([]int{1, 3, m.InputSize, m.InputSize}, head)
	default:
		lib := cfg.Model.LibraryPath
		if lib == "" {
			var err error
			if lib, err = providers.SharedLibPath("third_party"); err != nil {
				return nil, err
			}
		}
		return inference.NewSession(inference.SessionConfig{
			ModelPath:   cfg.Model.Path,
			LibraryPath: lib,
			InputName:   m.Inputs[0],
			OutputName:  m.Outputs[0],
			InputShape:  m.InputShape(),
			OutputShape: m.OutputShape,
			Provider:    cfg.Provider,
		}, logger)
	}
}

// buildSource opens the frame source.
func buildSource(cfg config.Config, logger *zap.Logger) (capture.Source, error) {
	if cfg.Source.Directory != "" {
		return capture.NewDirectorySource(cfg.Source.Directory, cfg.Source.Loop)
	}
	return capture.OpenCamera(cfg.Source.Camera, logger)
}

// buildProcessor wires the per-frame processor for the model task.
//
// The returned closers release the region detector, if any.
func buildProcessor(cfg config.Config, m model.Config, runner inference.Runner, prof *profiler.Profiler) (pipeline.Processor, []io.Closer, error) {
	labels, err := models.ResolveLabelSet(m.Labels)
	if err != nil {
		return nil, nil, err
	}

	pcfg := preprocess.DetectionConfig()
	if m.Task == model.TaskClassify {
		pcfg = preprocess.ClassificationConfig()
	}
	pcfg.Name = string(m.Name)
	pcfg.InputSize = m.InputSize
	pre := preprocess.NewPreprocessor(pcfg)

	switch m.Task {
	case model.TaskClassify:
		regions, err := capture.NewCascadeDetector(cfg.Cascade)
		if err != nil {
			return nil, nil, err
		}
		return pipeline.NewClassificationProcessor(regions, pre, runner, labels, prof), []io.Closer{regions}, nil
	default:
		layout, err := yolov8.ParseLayout(m.Layout)
		if err != nil {
			return nil, nil, err
		}
		decoder := yolov8.NewDecoder(m.ConfidenceThreshold, layout, labels)
		return pipeline.NewDetectionProcessor(pre, runner, decoder, m.NMS, prof), nil, nil
	}
}

// newApp builds the pipeline described by cfg. On error every resource
// created so far is released.
func newApp(cfg config.Config, logger *zap.Logger) (a *app, err error) {
	a = &app{logger: logger, addr: cfg.Server.Addr}
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.Close())
			a = nil
		}
	}()

	m, err := cfg.Model.Resolve()
	if err != nil {
		return a, err
	}

	opts := cfg.Profiler
	opts.Logger = logger.Named("profiler")
	a.profiler = profiler.New(opts)

	runner, err := buildRunner(cfg, m, logger)
	if err != nil {
		return a, fmt.Errorf("failed to create %s runner: %w", m.Runtime, err)
	}
	a.closers = append(a.closers, runner)

	processor, closers, err := buildProcessor(cfg, m, runner, a.profiler)
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, closers...)

	source, err := buildSource(cfg, logger)
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, source)

	var sinks render.Multi
	if cfg.Server.Addr != "" {
		a.hub = render.NewHub(logger.Named("hub"))
		a.closers = append(a.closers, a.hub)
		sinks = append(sinks, a.hub)
	}
	if cfg.Window.Enabled {
		a.window = render.NewWindow("livedetect", cfg.Window.Width, cfg.Window.Height)
		a.closers = append(a.closers, a.window)
		sinks = append(sinks, a.window)
		source = capture.Tap(source, a.window.Observe)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, render.LogSink{Logger: logger})
	}

	scfg := pipeline.SchedulerConfig{
		FrameInterval: cfg.FrameInterval,
		Sink:          sinks,
		Logger:        logger.Named("scheduler"),
		Profiler:      a.profiler,
	}
	if cfg.Source.Motion.Enabled {
		motion := capture.NewMotionDetector(cfg.Source.Motion.MotionConfig)
		a.closers = append(a.closers, motion)
		scfg.Gate = motion
	}

	a.scheduler, err = pipeline.NewScheduler(source, processor, scfg)
	if err != nil {
		return a, err
	}

	logger.Info("pipeline ready",
		zap.String("model", string(m.Name)),
		zap.String("task", string(m.Task)),
		zap.String("runtime", string(m.Runtime)),
		zap.Int("input_size", m.InputSize),
	)
	return a, nil
}

// run starts the pipeline and blocks until ctx is cancelled, the window is
// closed or the source runs dry.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	if a.hub != nil {
		go func() { serveErr <- a.hub.Serve(ctx, a.addr) }()
	}

	a.profiler.Start()
	defer a.profiler.Stop()

	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.scheduler.Stop()

	for a.scheduler.IsRunning() {
		if a.window != nil && !a.window.Render() {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("websocket server: %w", err)
			}
		case <-idleWait(a.window):
		}
	}

	a.profiler.Report()
	return nil
}

// Close releases every resource in reverse creation order.
func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	a.closers = nil
	return err
}
