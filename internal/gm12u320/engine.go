package gm12u320

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beamcast/beamcast/internal/logger"
	"github.com/beamcast/beamcast/internal/mailbox"
	"github.com/beamcast/beamcast/internal/metrics"
)

// DefaultInterval is the engine's idle wait between frame cycles when the
// mailbox stays empty. Well under the device's keep-alive limit.
const DefaultInterval = 100 * time.Millisecond

// ErrStopped is returned by Start once the engine has been stopped; an
// engine is single-use.
var ErrStopped = errors.New("gm12u320: engine stopped")

// Options configures a streaming engine.
type Options struct {
	// Interval is the per-cycle wait for a fresh frame. Clamped to the
	// device's idle timeout; zero means DefaultInterval.
	Interval time.Duration
	// Eco requests the projector's eco mode (dimmer, quieter) at session
	// start.
	Eco bool
	// Metrics receives pipeline counters when non-nil.
	Metrics *metrics.Metrics
}

// Stats is a point-in-time snapshot of engine activity.
type Stats struct {
	Running        bool      `json:"running"`
	FramesSent     uint64    `json:"frames_sent"`
	FramesRepeated uint64    `json:"frames_repeated"`
	TransferErrors uint64    `json:"transfer_errors"`
	BlocksPerFrame int       `json:"blocks_per_frame"`
	LastDraw       time.Time `json:"last_draw"`
}

// Engine owns the device streaming loop: it drains the frame mailbox,
// encodes rasters into the block protocol and transmits them, keeping the
// projector fed within its keep-alive window. All USB traffic happens on the
// engine's single worker goroutine; the device protocol is strictly
// sequential.
type Engine struct {
	transport Transport
	mbox      *mailbox.Mailbox
	enc       *FrameEncoder
	interval  time.Duration
	eco       bool
	met       *metrics.Metrics

	// lifecycle serializes Start and Stop so a stop issued mid-handshake
	// waits for the handshake to finish instead of racing it.
	lifecycle sync.Mutex
	started   atomic.Bool
	running   atomic.Bool
	stopping  atomic.Bool
	done      chan struct{}

	cmd    [CmdSize]byte
	parity byte

	framesSent     atomic.Uint64
	framesRepeated atomic.Uint64
	transferErrors atomic.Uint64
	lastDraw       atomic.Int64
}

// NewEngine wires an engine to a transport and a frame mailbox.
func NewEngine(t Transport, mbox *mailbox.Mailbox, opts Options) *Engine {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if interval > IdleTimeout {
		interval = IdleTimeout
	}
	return &Engine{
		transport: t,
		mbox:      mbox,
		enc:       NewFrameEncoder(),
		interval:  interval,
		eco:       opts.Eco,
		met:       opts.Metrics,
		done:      make(chan struct{}),
	}
}

// Start performs the session handshakes and launches the streaming loop.
// Returns an error if the handshake with the device fails or the engine was
// already started.
func (e *Engine) Start() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.stopping.Load() {
		return ErrStopped
	}
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("gm12u320: engine already started")
	}

	if err := e.handshake(); err != nil {
		e.running.Store(false)
		return err
	}

	if e.met != nil {
		e.met.EngineRunning.Set(1)
	}
	e.started.Store(true)
	go e.loop()
	return nil
}

// Stop shuts the loop down and waits for it to finish. After Stop returns no
// further USB traffic occurs; a Stop issued while Start is mid-handshake
// blocks until the handshake completes, then tears the session down.
// Idempotent; concurrent callers all block until the worker has exited.
func (e *Engine) Stop() {
	e.lifecycle.Lock()
	if e.stopping.CompareAndSwap(false, true) {
		e.running.Store(false)
		e.mbox.Close()
		if !e.started.Load() {
			close(e.done)
		}
	}
	e.lifecycle.Unlock()
	<-e.done
	if e.met != nil {
		e.met.EngineRunning.Set(0)
	}
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	var last time.Time
	if ns := e.lastDraw.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		Running:        e.running.Load(),
		FramesSent:     e.framesSent.Load(),
		FramesRepeated: e.framesRepeated.Load(),
		TransferErrors: e.transferErrors.Load(),
		BlocksPerFrame: e.enc.BlockCount(),
		LastDraw:       last,
	}
}

// handshake mirrors the vendor driver's session setup: an opaque init
// request followed by the eco mode get/set.
func (e *Engine) handshake() error {
	MiscCommand(e.cmd[:], miscReqUnknown2A, miscReqUnknown2B, 0x00, 0x00, 0xa0, 0x04)
	if _, err := e.transport.Misc(e.cmd[:]); err != nil {
		return fmt.Errorf("init handshake: %w", err)
	}
	if err := e.setEcoMode(e.eco); err != nil {
		return fmt.Errorf("setting eco mode: %w", err)
	}
	return nil
}

func (e *Engine) setEcoMode(on bool) error {
	var arg byte
	if on {
		arg = 0x01
	}
	MiscCommand(e.cmd[:], miscReqEcoA, miscReqEcoB, 0x01, arg, 0x00, 0x01)
	_, err := e.transport.Misc(e.cmd[:])
	return err
}

func (e *Engine) loop() {
	defer close(e.done)

	log := logger.WithComponent("engine")
	log.Info().
		Int("blocks_per_frame", e.enc.BlockCount()).
		Dur("interval", e.interval).
		Msg("streaming started")

	// The device needs extra settle time before acknowledging its very
	// first draw.
	drawTimeout := FirstFrameTimeout
	lastKeepAlive := time.Now()

	for e.running.Load() {
		fresh := false
		if fr, _, ok := e.mbox.Take(); ok {
			// The dirty region is a hint only; the block protocol
			// carries whole frames, so it is not consulted here.
			if err := e.enc.Encode(fr.Bytes()); err != nil {
				log.Error().Err(err).Msg("dropping malformed frame")
			} else {
				fresh = true
			}
		}
		if !fresh {
			e.framesRepeated.Add(1)
		}

		err := e.transmitFrame(drawTimeout)
		switch {
		case err == nil:
			drawTimeout = CmdTimeout
			e.parity ^= 1
			e.framesSent.Add(1)
			e.lastDraw.Store(time.Now().UnixNano())
			if e.met != nil {
				e.met.FramesSent.Inc()
			}
		case errors.Is(err, ErrDisconnected):
			// Unplug or deliberate shutdown: not an error worth
			// reporting, and nothing left to stream to.
			if e.running.Load() {
				log.Info().Msg("device went away, stopping stream")
				e.running.Store(false)
			}
			return
		default:
			e.transferErrors.Add(1)
			if e.met != nil {
				e.met.TransferErrors.Inc()
			}
			// The next full-frame attempt is the retry unit.
			log.Error().Err(err).Msg("frame update error")
		}

		if time.Since(lastKeepAlive) >= time.Second {
			e.keepAliveRequest()
			lastKeepAlive = time.Now()
		}

		// Wake early on a fresh frame or stop; otherwise resend within
		// the idle window so the projector never reverts to its logo.
		e.mbox.Await(e.interval)
	}
}

// transmitFrame sends every block of the currently encoded frame followed by
// the draw command. Each block is a three-step exchange: command descriptor,
// payload, status ack.
func (e *Engine) transmitFrame(drawTimeout time.Duration) error {
	for i := 0; i < e.enc.BlockCount(); i++ {
		block := e.enc.Block(i)

		DataCommand(e.cmd[:], i, len(block), e.parity)
		if err := e.transport.SendCommand(e.cmd[:]); err != nil {
			return fmt.Errorf("block %d command: %w", i, err)
		}
		if err := e.transport.SendBlock(block); err != nil {
			return fmt.Errorf("block %d payload: %w", i, err)
		}
		if err := e.transport.ReadStatus(CmdTimeout); err != nil {
			return fmt.Errorf("block %d status: %w", i, err)
		}
		if e.met != nil {
			e.met.BlocksSent.Inc()
		}
	}

	DrawCommand(e.cmd[:])
	if err := e.transport.SendCommand(e.cmd[:]); err != nil {
		return fmt.Errorf("draw command: %w", err)
	}
	if err := e.transport.ReadStatus(drawTimeout); err != nil {
		return fmt.Errorf("draw status: %w", err)
	}
	return nil
}

// keepAliveRequest issues the opaque periodic request the vendor driver
// sends about once a second. Failures are not fatal to the cycle.
func (e *Engine) keepAliveRequest() {
	MiscCommand(e.cmd[:], miscReqUnknown1A, miscReqUnknown1B, 0x00, 0x00, 0x00, 0x01)
	if _, err := e.transport.Misc(e.cmd[:]); err != nil && !errors.Is(err, ErrDisconnected) {
		logger.WithComponent("engine").Debug().Err(err).Msg("periodic misc request failed")
	}
}
