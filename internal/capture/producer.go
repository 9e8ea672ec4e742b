package capture

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"

	"github.com/beamcast/beamcast/internal/logger"
	"github.com/beamcast/beamcast/internal/metrics"
	"github.com/beamcast/beamcast/internal/raster"
)

// Publisher receives finished rasters and reports whether an unconsumed
// frame was displaced. Satisfied by mailbox.Mailbox for the in-process
// pipeline and by FileSink for the split-process mode.
type Publisher interface {
	Publish(r *raster.Raster, dirty raster.Rect) (replaced bool)
}

// schedule hands out absolute frame deadlines spaced exactly one period
// apart. Deadlines derive from the start time, not from "interval minus
// elapsed", so scheduling jitter never accumulates into drift.
type schedule struct {
	start  time.Time
	period time.Duration
	n      int64
}

func newSchedule(start time.Time, period time.Duration) *schedule {
	return &schedule{start: start, period: period}
}

// Next returns the following deadline.
func (s *schedule) Next() time.Time {
	s.n++
	return s.start.Add(time.Duration(s.n) * s.period)
}

// Producer captures frames at a fixed rate, converts them to the projector
// raster and publishes them. When its source fails it degrades to the
// animated test bars rather than stalling the pipeline.
type Producer struct {
	src  Source
	raw  RawSource
	out  Publisher
	conv *raster.Converter
	bars *Bars
	met  *metrics.Metrics

	period time.Duration

	// Triple-buffered so a raster the consumer still holds is never
	// overwritten by a later capture.
	bufs [3]*raster.Raster
	idx  int

	degraded bool
}

// NewProducer builds a producer for an image source. fps must be in (0, 60].
func NewProducer(src Source, out Publisher, fps float64, met *metrics.Metrics) (*Producer, error) {
	p, err := newProducer(out, fps, met)
	if err != nil {
		return nil, err
	}
	p.src = src
	return p, nil
}

// NewRawProducer builds a producer for a pre-converted raw frame source.
func NewRawProducer(raw RawSource, out Publisher, fps float64, met *metrics.Metrics) (*Producer, error) {
	p, err := newProducer(out, fps, met)
	if err != nil {
		return nil, err
	}
	p.raw = raw
	return p, nil
}

func newProducer(out Publisher, fps float64, met *metrics.Metrics) (*Producer, error) {
	if fps <= 0 || fps > 60 {
		return nil, fmt.Errorf("capture: fps %v out of range (0, 60]", fps)
	}
	p := &Producer{
		out:    out,
		conv:   raster.NewConverter(),
		bars:   NewBars(),
		met:    met,
		period: time.Duration(float64(time.Second) / fps),
	}
	for i := range p.bufs {
		p.bufs[i] = raster.New()
	}
	return p, nil
}

// Run captures and publishes frames until ctx is cancelled.
func (p *Producer) Run(ctx context.Context) error {
	log := logger.WithComponent("producer")
	log.Info().Dur("period", p.period).Msg("capture started")

	sched := newSchedule(time.Now(), p.period)
	timer := time.NewTimer(p.period)
	defer timer.Stop()

	for {
		r := p.bufs[p.idx]
		p.idx = (p.idx + 1) % len(p.bufs)

		dirty := p.captureInto(r, log)
		replaced := p.out.Publish(r, dirty)
		if p.met != nil {
			p.met.FramesCaptured.Inc()
			if replaced {
				p.met.FramesDropped.Inc()
			}
		}

		timer.Reset(time.Until(sched.Next()))
		select {
		case <-ctx.Done():
			log.Info().Msg("capture stopped")
			return nil
		case <-timer.C:
		}
	}
}

// captureInto fills r from the configured source, falling back to the test
// pattern on capture failure. The fallback is logged once per degradation,
// not per frame.
func (p *Producer) captureInto(r *raster.Raster, log *zerolog.Logger) raster.Rect {
	var err error
	if p.raw != nil {
		if err = p.raw.CaptureRaw(r); err == nil {
			p.recovered(log)
			return raster.Full()
		}
	} else {
		var img *image.RGBA
		if img, err = p.src.Capture(); err == nil {
			p.recovered(log)
			return p.conv.Convert(img, r)
		}
	}

	if !p.degraded {
		log.Warn().Err(err).Msg("capture failed, degrading to test pattern")
		p.degraded = true
	}
	if p.met != nil {
		p.met.CaptureFailures.Inc()
	}
	img, _ := p.bars.Capture()
	return p.conv.Convert(img, r)
}

func (p *Producer) recovered(log *zerolog.Logger) {
	if p.degraded {
		log.Info().Msg("capture source recovered")
		p.degraded = false
	}
}

// Close releases the underlying source.
func (p *Producer) Close() error {
	if p.raw != nil {
		return p.raw.Close()
	}
	if p.src != nil {
		return p.src.Close()
	}
	return nil
}
