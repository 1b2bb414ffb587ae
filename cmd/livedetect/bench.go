package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/nvr-ai/go-livedetect/benchmark"
	"github.com/nvr-ai/go-livedetect/inference/providers"
	"github.com/nvr-ai/go-livedetect/profiler"
)

const (
	flagIterations = "iterations"
	flagWarmup     = "warmup"
	flagOut        = "out"
)

func benchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "measure model throughput over the frames of --dir",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: flagIterations, Value: 100, Usage: "measured frames per scenario"},
			&cli.IntFlag{Name: flagWarmup, Value: 5, Usage: "unmeasured frames before each scenario"},
			&cli.StringFlag{Name: flagOut, Value: "benchmark_results", Usage: "output directory"},
		},
		Action: benchAction,
	}
}

func benchAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Source.Directory == "" {
		return errors.New("bench needs a frame directory, set --dir")
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	m, err := cfg.Model.Resolve()
	if err != nil {
		return err
	}

	prof := profiler.New(profiler.Options{Logger: logger.Named("profiler")})
	runner, err := buildRunner(cfg, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create %s runner: %w", m.Runtime, err)
	}
	defer func() {
		err = multierr.Combine(err, runner.Close(), providers.DestroyRuntime())
	}()

	proc, closers, err := buildProcessor(cfg, m, runner, prof)
	if err != nil {
		return err
	}
	defer func() {
		for _, cl := range closers {
			err = multierr.Append(err, cl.Close())
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	frames, err := benchmark.LoadFrames(ctx, cfg.Source.Directory)
	if err != nil {
		return err
	}

	suite := benchmark.NewSuite(proc, prof, frames, c.String(flagOut), logger.Named("benchmark"))
	scenario := benchmark.Scenario{
		Name:       string(m.Name),
		Iterations: c.Int(flagIterations),
		WarmupRuns: c.Int(flagWarmup),
	}
	if err := suite.RunAll(ctx, []benchmark.Scenario{scenario}); err != nil {
		return err
	}

	for _, r := range suite.Results() {
		fmt.Fprintf(c.App.Writer, "%-12s %8.2f fps  avg %v  max %v  errors %.1f%%\n",
			r.Scenario.Name, r.FramesPerSecond, r.Latency.Avg, r.Latency.Max, r.ErrorRate*100)
	}

	_, _, err = suite.SaveResults()
	return err
}
