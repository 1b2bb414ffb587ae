package profiler

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type staticCollector map[string]float64

func (c staticCollector) CollectMetrics() map[string]float64 {
	return c
}

// TestProfiler_StartOperation validates operation timings against a mock clock.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestProfiler_StartOperation(t *testing.T) {
	mock := clock.NewMock()
	p := New(Options{Clock: mock})

	for _, d := range []time.Duration{10 * time.Millisecond, 30 * time.Millisecond} {
		done := p.StartOperation("inference")
		mock.Add(d)
		assert.Equal(t, d, done())
	}

	snap := p.Snapshot()
	op, ok := snap.Operations["inference"]
	require.True(t, ok)
	assert.Equal(t, 20*time.Millisecond, op.Avg)
	assert.Equal(t, 10*time.Millisecond, op.Min)
	assert.Equal(t, 30*time.Millisecond, op.Max)
	assert.Equal(t, int64(2), op.Count)
}

// TestProfiler_RecordMetric validates the sliding window.
func TestProfiler_RecordMetric(t *testing.T) {
	p := New(Options{MaxSamples: 2})

	p.RecordMetric("detections", 1)
	p.RecordMetric("detections", 5)
	p.RecordMetric("detections", 3)

	m := p.Snapshot().Metrics["detections"]
	assert.Equal(t, 2, m.Samples, "Window should hold the last two samples")
	assert.InDelta(t, 4.0, m.Avg, 1e-9)
	assert.Equal(t, 1.0, m.Min, "Min spans the whole lifetime")
	assert.Equal(t, 5.0, m.Max)
	assert.Equal(t, int64(3), m.Count)
}

// TestProfiler_Report validates periodic reports reach the logger.
func TestProfiler_Report(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	mock := clock.NewMock()
	p := New(Options{Clock: mock, Logger: zap.New(core), ReportInterval: time.Second})
	p.AddMetricsCollector(staticCollector{"queue": 2})

	p.Start()
	p.Start()
	mock.Add(time.Second)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("profiler status").Len() > 0
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()

	assert.Contains(t, p.Snapshot().Metrics, "queue", "Collectors should be polled before a report")
}

// TestProfiler_Nil validates a nil profiler is inert.
func TestProfiler_Nil(t *testing.T) {
	var p *Profiler

	assert.NotPanics(t, func() {
		p.Start()
		p.RecordMetric("x", 1)
		assert.Zero(t, p.StartOperation("x")())
		p.Report()
		p.Stop()
	})
	assert.Empty(t, p.Snapshot().Operations)
}

// TestFormatBytes validates human-readable sizes.
func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in       uint64
		expected string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatBytes(tt.in))
	}
}
