// Package profiler - Cycle timing statistics and periodic runtime reports.
package profiler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// Profiler tracks operation timings and custom metrics of the frame pipeline
// and logs a periodic status report.
//
// A Profiler is safe for concurrent use. A nil *Profiler is valid and records nothing.
type Profiler struct {
	reportInterval time.Duration
	maxSamples     int
	clock          clock.Clock
	logger         *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started time.Time
	running bool

	lastGCCount uint32
	metrics     map[string]*MetricTracker
	collectors  []MetricsCollector
	operations  map[string]*TimeTracker
}

// MetricTracker tracks a sliding window of values for a custom metric.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// TimeTracker tracks a sliding window of durations for an operation.
type TimeTracker struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
}

// Options configures the profiler.
type Options struct {
	// ReportInterval specifies how often to log status reports (default: 10s).
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval"`
	// MaxSamples specifies the sliding window size per metric (default: 600).
	MaxSamples int `json:"max_samples" yaml:"max_samples"`
	// Clock drives the report ticker and operation timing. Nil selects the wall clock.
	Clock clock.Clock `json:"-" yaml:"-"`
	// Logger receives the reports. Nil discards them.
	Logger *zap.Logger `json:"-" yaml:"-"`
}

// New creates a profiler.
//
// Arguments:
//   - opts: Configuration options for the profiler.
//
// Returns:
//   - *Profiler: A profiler that records immediately and reports once started.
func New(opts Options) *Profiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Profiler{
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		clock:          opts.Clock,
		logger:         opts.Logger,
		ctx:            ctx,
		cancel:         cancel,
		started:        opts.Clock.Now(),
		metrics:        make(map[string]*MetricTracker),
		operations:     make(map[string]*TimeTracker),
	}
}

// Start begins logging periodic reports. Calling Start twice is a no-op.
func (p *Profiler) Start() {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.started = p.clock.Now()

	ticker := p.clock.Ticker(p.reportInterval)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.collect()
				p.Report()
			}
		}
	}()
}

// Stop stops the report loop and waits for it to exit.
func (p *Profiler) Stop() {
	if p == nil {
		return
	}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// AddMetricsCollector registers a collector polled before every report.
func (p *Profiler) AddMetricsCollector(collector MetricsCollector) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.collectors = append(p.collectors, collector)
}

// RecordMetric records a custom metric value.
//
// Arguments:
//   - name: The name of the metric.
//   - value: The metric value to record.
func (p *Profiler) RecordMetric(name string, value float64) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordMetricLocked(name, value)
}

func (p *Profiler) recordMetricLocked(name string, value float64) {
	tracker, ok := p.metrics[name]
	if !ok {
		tracker = &MetricTracker{
			values: make([]float64, 0, p.maxSamples),
			min:    value,
			max:    value,
		}
		p.metrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > p.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.count++

	if value < tracker.min {
		tracker.min = value
	}
	if value > tracker.max {
		tracker.max = value
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - func() time.Duration: Call when the operation completes; returns the elapsed time.
func (p *Profiler) StartOperation(name string) func() time.Duration {
	if p == nil {
		return func() time.Duration { return 0 }
	}

	start := p.clock.Now()
	return func() time.Duration {
		d := p.clock.Since(start)
		p.RecordDuration(name, d)
		return d
	}
}

// RecordDuration records the completion time of an operation.
func (p *Profiler) RecordDuration(name string, d time.Duration) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, ok := p.operations[name]
	if !ok {
		tracker = &TimeTracker{min: d, max: d}
		p.operations[name] = tracker
	}

	tracker.durations = append(tracker.durations, d)
	tracker.total += d
	if len(tracker.durations) > p.maxSamples {
		tracker.total -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++

	if d < tracker.min {
		tracker.min = d
	}
	if d > tracker.max {
		tracker.max = d
	}
}

// collect polls the registered collectors.
func (p *Profiler) collect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, collector := range p.collectors {
		for name, value := range collector.CollectMetrics() {
			p.recordMetricLocked(name, value)
		}
	}
}

// MetricStats summarizes the sliding window of a metric.
type MetricStats struct {
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
	Count   int64   `json:"count"`
}

// OperationStats summarizes the sliding window of an operation.
type OperationStats struct {
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Count int64         `json:"count"`
}

// Snapshot is a point-in-time copy of the profiler state.
type Snapshot struct {
	Uptime     time.Duration             `json:"uptime"`
	Goroutines int                       `json:"goroutines"`
	HeapAlloc  uint64                    `json:"heap_alloc"`
	NumGC      uint32                    `json:"num_gc"`
	Metrics    map[string]MetricStats    `json:"metrics"`
	Operations map[string]OperationStats `json:"operations"`
}

// Snapshot returns the current statistics.
func (p *Profiler) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := Snapshot{
		Uptime:     p.clock.Since(p.started),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		NumGC:      mem.NumGC,
		Metrics:    make(map[string]MetricStats, len(p.metrics)),
		Operations: make(map[string]OperationStats, len(p.operations)),
	}

	for name, t := range p.metrics {
		if len(t.values) == 0 {
			continue
		}
		snap.Metrics[name] = MetricStats{
			Avg:     t.sum / float64(len(t.values)),
			Min:     t.min,
			Max:     t.max,
			Samples: len(t.values),
			Count:   t.count,
		}
	}
	for name, t := range p.operations {
		if len(t.durations) == 0 {
			continue
		}
		snap.Operations[name] = OperationStats{
			Avg:   t.total / time.Duration(len(t.durations)),
			Min:   t.min,
			Max:   t.max,
			Count: t.count,
		}
	}

	return snap
}

// Report logs the current statistics at Info level.
func (p *Profiler) Report() {
	if p == nil {
		return
	}

	snap := p.Snapshot()

	p.mu.Lock()
	newGC := snap.NumGC - p.lastGCCount
	p.lastGCCount = snap.NumGC
	p.mu.Unlock()

	fields := []zap.Field{
		zap.Duration("uptime", snap.Uptime.Truncate(time.Millisecond)),
		zap.Int("goroutines", snap.Goroutines),
		zap.String("heap_alloc", FormatBytes(snap.HeapAlloc)),
		zap.Uint32("gc_new", newGC),
	}

	for _, name := range sortedKeys(snap.Operations) {
		op := snap.Operations[name]
		fields = append(fields, zap.String("op."+name, fmt.Sprintf("avg=%v min=%v max=%v count=%d",
			op.Avg.Truncate(time.Microsecond), op.Min.Truncate(time.Microsecond), op.Max.Truncate(time.Microsecond), op.Count)))
	}
	for _, name := range sortedKeys(snap.Metrics) {
		m := snap.Metrics[name]
		fields = append(fields, zap.String("metric."+name, fmt.Sprintf("avg=%.2f min=%.2f max=%.2f samples=%d", m.Avg, m.Min, m.Max, m.Samples)))
	}

	p.logger.Info("profiler status", fields...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatBytes formats byte counts in human-readable format.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
