package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-livedetect/profiler"
)

// DefaultFrameInterval is the cadence of roughly 30 frames per second.
const DefaultFrameInterval = 33 * time.Millisecond

// State is the scheduler lifecycle state.
type State int32

const (
	// StateIdle means no cycle is scheduled.
	StateIdle State = iota
	// StateRunning means cycles run at the frame cadence.
	StateRunning
)

// String returns the state name.
func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// FrameInterval is the wait between the end of one cycle and the start of the next.
	FrameInterval time.Duration `json:"frame_interval" yaml:"frame_interval"`
	// Sink receives results and status messages. Nil discards them.
	Sink Sink `json:"-" yaml:"-"`
	// Clock drives the cadence. Nil selects the wall clock.
	Clock clock.Clock `json:"-" yaml:"-"`
	// Logger receives lifecycle and cycle logs. Nil discards them.
	Logger *zap.Logger `json:"-" yaml:"-"`
	// Profiler records cycle timings. Nil disables profiling.
	Profiler *profiler.Profiler `json:"-" yaml:"-"`
	// Gate, when set, decides which valid frames reach the processor.
	Gate Gate `json:"-" yaml:"-"`
}

// Stats counts cycle outcomes since the scheduler was created.
type Stats struct {
	Processed uint64 `json:"processed"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Scheduler reads frames from a source and runs them through a processor,
// one cycle at a time.
//
// Cycles never overlap: the next cycle waits for the frame cadence after the
// current one, model call included, has completed. Cycle failures are
// reported through Status and never stop the loop.
type Scheduler struct {
	source    Source
	processor Processor
	sink      Sink
	interval  time.Duration
	clock     clock.Clock
	logger    *zap.Logger
	profiler  *profiler.Profiler
	gate      Gate

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	state  atomic.Int32
	latest atomic.Pointer[Result]
	status atomic.Pointer[string]

	processed atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewScheduler creates an idle scheduler.
//
// Arguments:
//   - source: The frame source.
//   - processor: The per-frame processor.
//   - cfg: Cadence, sink and instrumentation.
//
// Returns:
//   - *Scheduler: The scheduler.
//   - error: If the source or processor is missing.
func NewScheduler(source Source, processor Processor, cfg SchedulerConfig) (*Scheduler, error) {
	if source == nil {
		return nil, errors.New("frame source is required")
	}
	if processor == nil {
		return nil, errors.New("frame processor is required")
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Scheduler{
		source:    source,
		processor: processor,
		sink:      cfg.Sink,
		interval:  cfg.FrameInterval,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		profiler:  cfg.Profiler,
		gate:      cfg.Gate,
	}
	empty := ""
	s.status.Store(&empty)
	return s, nil
}

// Start moves the scheduler to Running and runs the first cycle immediately.
//
// The loop runs until ctx is cancelled, Stop is called or the source becomes inactive.
//
// Arguments:
//   - ctx: Bounds the lifetime of the loop.
//
// Returns:
//   - error: ErrAlreadyRunning if a loop is active.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
		default:
			return ErrAlreadyRunning
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := s.clock.Ticker(s.interval)

	s.cancel = cancel
	s.done = done
	s.state.Store(int32(StateRunning))
	s.logger.Info("scheduler started", zap.Duration("frame_interval", s.interval))

	go s.loop(loopCtx, ticker, done)
	return nil
}

// Stop cancels the loop and waits for it to exit. A model call in flight is
// allowed to finish but its result is discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsRunning reports whether the scheduler is in the Running state.
func (s *Scheduler) IsRunning() bool {
	return s.State() == StateRunning
}

// State returns the lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Latest returns the most recent result, nil before the first success.
func (s *Scheduler) Latest() *Result {
	return s.latest.Load()
}

// Status returns the last cycle error message, empty after a successful cycle.
func (s *Scheduler) Status() string {
	return *s.status.Load()
}

// Stats returns the cycle counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Processed: s.processed.Load(),
		Skipped:   s.skipped.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
	}
}

func (s *Scheduler) loop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	defer func() {
		s.state.Store(int32(StateIdle))
		s.logger.Info("scheduler idle", zap.Uint64("processed", s.processed.Load()))
	}()

	for {
		if !s.cycle(ctx) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cycle runs one frame through the processor. It returns false when the
// scheduler should go idle.
func (s *Scheduler) cycle(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	if !s.source.Active() {
		s.logger.Info("frame source inactive")
		return false
	}
	if !s.source.Ready() || !s.processor.Ready() {
		s.skipped.Add(1)
		s.logger.Debug("cycle skipped", zap.Error(ErrNotReady))
		return true
	}

	finish := s.profiler.StartOperation("cycle")
	start := s.clock.Now()

	frame, err := s.source.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrSourceClosed) || ctx.Err() != nil {
			s.logger.Info("frame source stopped", zap.Error(err))
			return false
		}
		s.fail("", fmt.Errorf("frame read failed: %w", err))
		return true
	}
	if err := validFrame(frame); err != nil {
		s.skipped.Add(1)
		s.logger.Debug("cycle skipped", zap.Error(err))
		return true
	}
	if s.gate != nil {
		admit, err := s.gate.Admit(frame)
		if err != nil {
			s.logger.Debug("frame gate failed", zap.Error(err))
		} else if !admit {
			s.skipped.Add(1)
			return true
		}
	}

	id := uuid.NewString()
	result, err := s.processor.Process(ctx, frame)

	if ctx.Err() != nil {
		s.dropped.Add(1)
		s.logger.Debug("result dropped after stop", zap.String("frame_id", id))
		return false
	}
	if errors.Is(err, ErrInvalidFrame) {
		s.skipped.Add(1)
		s.logger.Debug("cycle skipped", zap.String("frame_id", id), zap.Error(err))
		return true
	}
	if err != nil {
		s.fail(id, err)
		return true
	}
	if result == nil {
		result = &Result{}
	}

	bounds := frame.Bounds()
	result.FrameID = id
	result.Timestamp = start
	result.Width = bounds.Dx()
	result.Height = bounds.Dy()
	result.Latency = s.clock.Since(start)

	s.latest.Store(result)
	s.processed.Add(1)
	s.setStatus("")
	if s.sink != nil {
		s.sink.Publish(result)
	}

	d := finish()
	s.logger.Debug("cycle complete",
		zap.String("frame_id", id),
		zap.Int("detections", len(result.Detections)),
		zap.Duration("latency", result.Latency),
		zap.Duration("cycle", d),
	)
	return true
}

func (s *Scheduler) fail(id string, err error) {
	s.failed.Add(1)
	s.logger.Warn("cycle failed", zap.String("frame_id", id), zap.Error(err))
	s.setStatus(err.Error())
}

// setStatus stores msg and forwards it to the sink when it changed.
func (s *Scheduler) setStatus(msg string) {
	prev := s.status.Swap(&msg)
	if *prev == msg || s.sink == nil {
		return
	}
	s.sink.Status(msg)
}
