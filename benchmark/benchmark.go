// Package benchmark - Offline throughput measurement of a frame processor over a recorded corpus.
package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-livedetect/capture"
	"github.com/nvr-ai/go-livedetect/pipeline"
	"github.com/nvr-ai/go-livedetect/profiler"
)

// Scenario defines one benchmark run.
type Scenario struct {
	Name       string `json:"name" yaml:"name"`
	Iterations int    `json:"iterations" yaml:"iterations"`
	WarmupRuns int    `json:"warmup_runs" yaml:"warmup_runs"`
}

// MemoryMetrics captures memory usage over a run.
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
}

// PerformanceMetrics captures the outcome of a scenario.
type PerformanceMetrics struct {
	Scenario        Scenario                           `json:"scenario"`
	Timestamp       time.Time                          `json:"timestamp"`
	TotalDuration   time.Duration                      `json:"total_duration"`
	FramesPerSecond float64                            `json:"frames_per_second"`
	Latency         profiler.OperationStats            `json:"latency"`
	Stages          map[string]profiler.OperationStats `json:"stages"`
	Detections      int                                `json:"detections"`
	Classified      int                                `json:"classified"`
	ErrorRate       float64                            `json:"error_rate"`
	Memory          MemoryMetrics                      `json:"memory"`
	NumCPU          int                                `json:"num_cpu"`
}

// Suite runs scenarios against a processor.
type Suite struct {
	processor pipeline.Processor
	profiler  *profiler.Profiler
	frames    []image.Image
	outputDir string
	clock     clock.Clock
	logger    *zap.Logger

	mu      sync.RWMutex
	results []PerformanceMetrics
}

// NewSuite creates a benchmark suite.
//
// Arguments:
//   - processor: The processor under test.
//   - prof: The profiler the processor records stage timings into, nil for none.
//   - frames: The corpus, cycled through by every scenario.
//   - outputDir: Where SaveResults writes its files.
//   - logger: The logger, nil for none.
//
// Returns:
//   - *Suite: The suite.
func NewSuite(processor pipeline.Processor, prof *profiler.Profiler, frames []image.Image, outputDir string, logger *zap.Logger) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suite{
		processor: processor,
		profiler:  prof,
		frames:    frames,
		outputDir: outputDir,
		clock:     clock.New(),
		logger:    logger,
	}
}

// LoadFrames decodes every image of a directory in frame order.
func LoadFrames(ctx context.Context, dir string) ([]image.Image, error) {
	src, err := capture.NewDirectorySource(dir, false)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	frames := make([]image.Image, 0, src.Len())
	for src.Active() {
		frame, err := src.Read(ctx)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// RunScenario executes a scenario.
//
// Arguments:
//   - ctx: Cancels the run between frames.
//   - scenario: The iteration counts.
//
// Returns:
//   - *PerformanceMetrics: The measurements.
//   - error: If there are no frames, the processor is not ready or ctx is cancelled.
func (s *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if len(s.frames) == 0 {
		return nil, errors.New("benchmark corpus is empty")
	}
	if scenario.Iterations <= 0 {
		return nil, fmt.Errorf("scenario %s needs at least one iteration", scenario.Name)
	}
	if !s.processor.Ready() {
		return nil, pipeline.ErrNotReady
	}

	for i := 0; i < scenario.WarmupRuns; i++ {
		_, _ = s.processor.Process(ctx, s.frames[i%len(s.frames)])
	}

	// Measured runs record into a fresh profiler so warmups do not skew the stages.
	latency := profiler.New(profiler.Options{Clock: s.clock, MaxSamples: scenario.Iterations})

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	metrics := &PerformanceMetrics{
		Scenario:  scenario,
		Timestamp: s.clock.Now(),
		NumCPU:    runtime.NumCPU(),
	}
	before := s.profiler.Snapshot().Operations

	failures := 0
	start := s.clock.Now()
	for i := 0; i < scenario.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		done := latency.StartOperation("frame")
		result, err := s.processor.Process(ctx, s.frames[i%len(s.frames)])
		done()
		if err != nil {
			failures++
			s.logger.Debug("benchmark frame failed", zap.Int("iteration", i), zap.Error(err))
			continue
		}

		metrics.Detections += len(result.Detections)
		if result.Classification != nil {
			metrics.Classified++
		}
	}
	metrics.TotalDuration = s.clock.Since(start)

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	if secs := metrics.TotalDuration.Seconds(); secs > 0 {
		metrics.FramesPerSecond = float64(scenario.Iterations) / secs
	}
	metrics.ErrorRate = float64(failures) / float64(scenario.Iterations)
	metrics.Latency = latency.Snapshot().Operations["frame"]
	metrics.Stages = stageDelta(before, s.profiler.Snapshot().Operations)
	metrics.Memory = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
	}

	return metrics, nil
}

// stageDelta keeps the stages whose counts grew during the run.
func stageDelta(before, after map[string]profiler.OperationStats) map[string]profiler.OperationStats {
	out := make(map[string]profiler.OperationStats)
	for name, op := range after {
		if op.Count > before[name].Count {
			out[name] = op
		}
	}
	return out
}

// RunAll executes the scenarios in order and keeps the successful results.
func (s *Suite) RunAll(ctx context.Context, scenarios []Scenario) error {
	for _, scenario := range scenarios {
		metrics, err := s.RunScenario(ctx, scenario)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("scenario failed", zap.String("scenario", scenario.Name), zap.Error(err))
			continue
		}

		s.mu.Lock()
		s.results = append(s.results, *metrics)
		s.mu.Unlock()

		s.logger.Info("scenario completed",
			zap.String("scenario", scenario.Name),
			zap.Float64("fps", metrics.FramesPerSecond),
			zap.Duration("avg_latency", metrics.Latency.Avg),
			zap.Float64("error_rate", metrics.ErrorRate),
		)
	}
	return nil
}

// Results returns a copy of the collected results.
func (s *Suite) Results() []PerformanceMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PerformanceMetrics(nil), s.results...)
}

// SaveResults writes the results as JSON and a CSV summary.
//
// Returns:
//   - string: The JSON file path.
//   - string: The CSV file path.
//   - error: If the directory or files cannot be written.
func (s *Suite) SaveResults() (string, string, error) {
	results := s.Results()

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "failed to create output directory")
	}

	stamp := s.clock.Now().Format("2006-01-02_15-04-05")
	jsonPath := filepath.Join(s.outputDir, fmt.Sprintf("benchmark_results_%s.json", stamp))
	csvPath := filepath.Join(s.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", stamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", "", errors.Wrap(err, "failed to marshal results")
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", "", errors.Wrap(err, "failed to write results file")
	}
	if err := writeSummaryCSV(csvPath, results); err != nil {
		return "", "", errors.Wrap(err, "failed to write summary")
	}

	s.logger.Info("benchmark results saved", zap.String("json", jsonPath), zap.String("csv", csvPath))
	return jsonPath, csvPath, nil
}

func writeSummaryCSV(path string, results []PerformanceMetrics) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"scenario", "iterations", "fps", "avg_latency_ms", "max_latency_ms", "detections", "classified", "error_rate", "alloc_mb"})
	for _, r := range results {
		_ = w.Write([]string{
			r.Scenario.Name,
			strconv.Itoa(r.Scenario.Iterations),
			strconv.FormatFloat(r.FramesPerSecond, 'f', 2, 64),
			strconv.FormatFloat(float64(r.Latency.Avg)/1e6, 'f', 3, 64),
			strconv.FormatFloat(float64(r.Latency.Max)/1e6, 'f', 3, 64),
			strconv.Itoa(r.Detections),
			strconv.Itoa(r.Classified),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
			strconv.FormatFloat(float64(r.Memory.AllocBytes)/(1024*1024), 'f', 2, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
