package pipeline

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/nvr-ai/go-livedetect/inference"
)

// solidFrame builds an opaque single color frame.
func solidFrame(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 90, G: 60, B: 30, A: 255})
		}
	}
	return img
}

// fakeSource replays frames, then reports inactive.
type fakeSource struct {
	mu       sync.Mutex
	frames   []image.Image
	next     int
	loop     bool
	notReady bool
	readErr  error
	missed   int
	reads    int
}

func (s *fakeSource) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop || s.next < len(s.frames)
}

func (s *fakeSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.notReady
}

func (s *fakeSource) setReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notReady = !ready
}

func (s *fakeSource) Read(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.missed > 0 {
		s.missed--
		return nil, nil
	}
	if s.next >= len(s.frames) {
		if !s.loop || len(s.frames) == 0 {
			return nil, ErrSourceClosed
		}
		s.next = 0
	}
	frame := s.frames[s.next]
	s.next++
	return frame, nil
}

func (s *fakeSource) Close() error {
	return nil
}

// fakeProcessor delegates to fn and counts calls.
type fakeProcessor struct {
	ready    atomic.Bool
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	fn       func(ctx context.Context, frame image.Image) (*Result, error)
}

func newFakeProcessor(fn func(ctx context.Context, frame image.Image) (*Result, error)) *fakeProcessor {
	p := &fakeProcessor{fn: fn}
	p.ready.Store(true)
	return p
}

func (p *fakeProcessor) Ready() bool {
	return p.ready.Load()
}

func (p *fakeProcessor) Process(ctx context.Context, frame image.Image) (*Result, error) {
	p.calls.Add(1)
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		seen := p.maxSeen.Load()
		if n <= seen || p.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if p.fn == nil {
		return &Result{}, nil
	}
	return p.fn(ctx, frame)
}

// recordingSink keeps everything it receives.
type recordingSink struct {
	mu       sync.Mutex
	results  []*Result
	statuses []string
}

func (s *recordingSink) Publish(result *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

func (s *recordingSink) Status(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, message)
}

func (s *recordingSink) published() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func (s *recordingSink) statusLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}

// fakeRunner returns a fixed output and records the last input length.
type fakeRunner struct {
	out      *inference.Output
	err      error
	notReady bool
	inputLen int
}

func (r *fakeRunner) Run(ctx context.Context, input []float32) (*inference.Output, error) {
	r.inputLen = len(input)
	if r.err != nil {
		return nil, r.err
	}
	return r.out, nil
}

func (r *fakeRunner) Ready() bool {
	return !r.notReady
}

func (r *fakeRunner) Close() error {
	return nil
}

// fakeRegions returns fixed rectangles.
type fakeRegions struct {
	rects []image.Rectangle
	err   error
	seen  image.Rectangle
}

func (f *fakeRegions) DetectRegions(img image.Image) ([]image.Rectangle, error) {
	f.seen = img.Bounds()
	return f.rects, f.err
}
