package gm12u320

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/beamcast/beamcast/internal/logger"
)

// ErrDisconnected marks transfer failures caused by device unplug or a
// deliberately cancelled session. The engine swallows these instead of
// logging them as frame errors.
var ErrDisconnected = errors.New("gm12u320: device disconnected")

// Transport is the bulk-transfer surface the streaming engine drives. The
// real implementation talks libusb through gousb; tests substitute a fake.
type Transport interface {
	// SendCommand writes a 31-byte descriptor on the data pipe.
	SendCommand(cmd []byte) error
	// SendBlock writes one assembled data block on the data pipe.
	SendBlock(block []byte) error
	// ReadStatus reads the 13-byte status ack from the data pipe within
	// the given timeout.
	ReadStatus(timeout time.Duration) error
	// Misc performs a misc-request exchange on the misc pipes: command
	// out, 4-byte value in, 13-byte status in. Returns the value byte.
	Misc(cmd []byte) (byte, error)
	// Close releases the device.
	Close() error
}

// USBTransport drives the projector's four logical bulk pipes.
type USBTransport struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	release func()

	dataOut *gousb.OutEndpoint
	dataIn  *gousb.InEndpoint
	miscOut *gousb.OutEndpoint
	miscIn  *gousb.InEndpoint

	status [StatusSize]byte
	value  [MiscValueSize]byte
}

// Open finds the projector on the bus and claims its bulk interface.
func Open() (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(VendorID, ProductID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("opening device %04x:%04x: %w", VendorID, ProductID, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("projector %04x:%04x not found", VendorID, ProductID)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		logger.WithComponent("usb").Warn().Err(err).Msg("auto-detach not available")
	}

	intf, release, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("claiming interface: %w", err)
	}

	t := &USBTransport{ctx: ctx, dev: dev, release: release}

	if t.dataOut, err = intf.OutEndpoint(EndpointDataOut); err == nil {
		if t.dataIn, err = intf.InEndpoint(EndpointDataIn); err == nil {
			if t.miscOut, err = intf.OutEndpoint(EndpointMiscOut); err == nil {
				t.miscIn, err = intf.InEndpoint(EndpointMiscIn)
			}
		}
	}
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("resolving endpoints: %w", err)
	}

	logger.WithComponent("usb").Info().
		Str("device", fmt.Sprintf("%04x:%04x", VendorID, ProductID)).
		Msg("projector attached")
	return t, nil
}

func (t *USBTransport) SendCommand(cmd []byte) error {
	return t.write(t.dataOut, cmd, CmdTimeout)
}

func (t *USBTransport) SendBlock(block []byte) error {
	return t.write(t.dataOut, block, DataTimeout)
}

func (t *USBTransport) ReadStatus(timeout time.Duration) error {
	return t.read(t.dataIn, t.status[:], timeout)
}

func (t *USBTransport) Misc(cmd []byte) (byte, error) {
	if err := t.write(t.miscOut, cmd, CmdTimeout); err != nil {
		return 0, err
	}
	if err := t.read(t.miscIn, t.value[:], DataTimeout); err != nil {
		return 0, err
	}
	if err := t.read(t.miscIn, t.status[:], CmdTimeout); err != nil {
		return 0, err
	}
	return t.value[0], nil
}

// Close releases the interface and the libusb context. Safe to call more
// than once.
func (t *USBTransport) Close() error {
	if t.release != nil {
		t.release()
		t.release = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}

func (t *USBTransport) write(ep *gousb.OutEndpoint, buf []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := ep.WriteContext(ctx, buf)
	if err != nil {
		return classify(err)
	}
	if n != len(buf) {
		return fmt.Errorf("gm12u320: short write on ep %d: %d of %d bytes", ep.Desc.Number, n, len(buf))
	}
	return nil
}

func (t *USBTransport) read(ep *gousb.InEndpoint, buf []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := ep.ReadContext(ctx, buf)
	if err != nil {
		return classify(err)
	}
	if n != len(buf) {
		return fmt.Errorf("gm12u320: short read on ep %d: %d of %d bytes", ep.Desc.Number, n, len(buf))
	}
	return nil
}

// classify maps unplug and cancellation errors onto ErrDisconnected so the
// engine can tell them apart from transient transfer failures.
func classify(err error) error {
	if errors.Is(err, gousb.ErrorNoDevice) ||
		errors.Is(err, gousb.ErrorCancelled) ||
		errors.Is(err, gousb.TransferCancelled) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return err
}
