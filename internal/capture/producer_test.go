package capture

import (
	"context"
	"errors"
	"image"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/beamcast/beamcast/internal/raster"
)

func nopLog() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// countingSink records every published raster pointer.
type countingSink struct {
	mu     sync.Mutex
	frames []*raster.Raster
	dirty  []raster.Rect
}

func (s *countingSink) Publish(r *raster.Raster, dirty raster.Rect) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, r)
	s.dirty = append(s.dirty, dirty)
	return false
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// flakySource fails its first n captures, then serves a solid color.
type flakySource struct {
	failures int
	img      *image.RGBA
}

func newFlakySource(failures int) *flakySource {
	img := image.NewRGBA(image.Rect(0, 0, raster.Width, raster.Height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0x12
		img.Pix[i+1] = 0x34
		img.Pix[i+2] = 0x56
		img.Pix[i+3] = 0xff
	}
	return &flakySource{failures: failures, img: img}
}

func (s *flakySource) Capture() (*image.RGBA, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("capture backend unavailable")
	}
	return s.img, nil
}

func (s *flakySource) Name() string { return "flaky" }
func (s *flakySource) Close() error { return nil }

func TestProducerRejectsBadRate(t *testing.T) {
	for _, fps := range []float64{0, -1, 60.5, 1000} {
		if _, err := NewProducer(NewBars(), &countingSink{}, fps, nil); err == nil {
			t.Errorf("fps %v accepted", fps)
		}
	}
	if _, err := NewProducer(NewBars(), &countingSink{}, 60, nil); err != nil {
		t.Errorf("fps 60 rejected: %v", err)
	}
}

func TestProducerPublishesAtRate(t *testing.T) {
	sink := &countingSink{}
	p, err := NewProducer(NewBars(), sink, 50, nil)
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for sink.count() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if sink.count() < 5 {
		t.Fatalf("published %d frames, want at least 5", sink.count())
	}
}

func TestProducerRotatesBuffers(t *testing.T) {
	sink := &countingSink{}
	p, err := NewProducer(NewBars(), sink, 50, nil)
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	deadline := time.Now().Add(5 * time.Second)
	for sink.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.frames) < 3 {
		t.Fatalf("published %d frames", len(sink.frames))
	}
	// Consecutive frames must live in distinct buffers so a consumer that
	// still holds one never sees it change underneath.
	if sink.frames[0] == sink.frames[1] || sink.frames[1] == sink.frames[2] || sink.frames[0] == sink.frames[2] {
		t.Fatal("consecutive frames share a buffer")
	}
}

func TestProducerFallsBackToBars(t *testing.T) {
	sink := &countingSink{}
	src := newFlakySource(1)
	p, err := NewProducer(src, sink, 50, nil)
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	defer p.Close()

	// First capture fails: the frame must still be published, filled from
	// the bar pattern rather than left stale.
	r := raster.New()
	p.captureInto(r, nopLog())
	if !p.degraded {
		t.Fatal("producer not marked degraded after capture failure")
	}
	bar0 := r.Bytes()[:3]
	// Bars start with white on the left edge, BGR on the wire.
	if bar0[0] != 0xff || bar0[1] != 0xff || bar0[2] != 0xff {
		t.Fatalf("fallback frame starts % x, want white", bar0)
	}

	// Next capture succeeds and clears the degraded flag.
	p.captureInto(r, nopLog())
	if p.degraded {
		t.Fatal("producer still degraded after source recovered")
	}
	px := r.Bytes()[:3]
	if px[0] != 0x56 || px[1] != 0x34 || px[2] != 0x12 {
		t.Fatalf("recovered frame starts % x, want 56 34 12", px)
	}
}

func TestScheduleDeadlinesDoNotDrift(t *testing.T) {
	start := time.Unix(1000, 0)
	s := newSchedule(start, 100*time.Millisecond)

	var last time.Time
	for i := 1; i <= 1000; i++ {
		last = s.Next()
	}
	// After 1000 periods the deadline is exactly start + 100s, regardless
	// of how late each individual cycle ran.
	if want := start.Add(100 * time.Second); !last.Equal(want) {
		t.Fatalf("deadline after 1000 periods = %v, want %v", last, want)
	}
}

func TestBarsDeterministic(t *testing.T) {
	a, b := NewBars(), NewBars()
	for i := 0; i < 20; i++ {
		ia, _ := a.Capture()
		ib, _ := b.Capture()
		for j := range ia.Pix {
			if ia.Pix[j] != ib.Pix[j] {
				t.Fatalf("frame %d differs at byte %d", i, j)
			}
		}
	}
}

func TestBarsShift(t *testing.T) {
	p := NewBars()
	first, _ := p.Capture()
	left := [3]byte{first.Pix[0], first.Pix[1], first.Pix[2]}
	if left != [3]byte{255, 255, 255} {
		t.Fatalf("frame 0 left bar = %v, want white", left)
	}

	// After 8 frames the bars shift one slot: yellow moves to the left edge.
	var img *image.RGBA
	for i := 1; i <= 8; i++ {
		img, _ = p.Capture()
	}
	left = [3]byte{img.Pix[0], img.Pix[1], img.Pix[2]}
	if left != [3]byte{255, 255, 0} {
		t.Fatalf("frame 8 left bar = %v, want yellow", left)
	}
}

func TestFileSinkSourceRoundTrip(t *testing.T) {
	path := t.TempDir() + "/frame.raw"
	sink := NewFileSink(path)
	src := NewFileSource(path)

	// Reads fail until the first frame lands.
	if err := src.CaptureRaw(raster.New()); err == nil {
		t.Fatal("read succeeded before any frame was written")
	}

	out := raster.New()
	for i := 0; i < raster.FrameSize; i++ {
		out.Bytes()[i] = byte(i * 7)
	}
	if err := sink.Write(out); err != nil {
		t.Fatalf("write: %v", err)
	}

	in := raster.New()
	if err := src.CaptureRaw(in); err != nil {
		t.Fatalf("read: %v", err)
	}
	for i := range in.Bytes() {
		if in.Bytes()[i] != out.Bytes()[i] {
			t.Fatalf("frame differs at byte %d", i)
		}
	}

	// Repeated writes alternate scratch files and keep the target whole.
	for i := 0; i < 4; i++ {
		if err := sink.Write(out); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := src.CaptureRaw(in); err != nil {
		t.Fatalf("read after rewrites: %v", err)
	}
}

func TestFileSourceRejectsTruncatedFrame(t *testing.T) {
	path := t.TempDir() + "/frame.raw"
	sink := NewFileSink(path)
	if err := sink.Write(raster.New()); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Truncate in place; the reader must reject the short frame.
	if err := os.Truncate(path, 100); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if err := NewFileSource(path).CaptureRaw(raster.New()); err == nil {
		t.Fatal("short frame accepted")
	}
}
