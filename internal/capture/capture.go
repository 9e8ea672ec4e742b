// Package capture produces the rasters fed into the frame mailbox: an X11
// whole-screen source, a raw frame file source for split-process operation,
// and a deterministic test pattern used both standalone and as the fallback
// when a real source fails.
package capture

import (
	"image"

	"github.com/beamcast/beamcast/internal/raster"
)

// Source captures one frame per call as an RGBA image of whatever size the
// underlying screen has; the producer rescales to the projector geometry.
type Source interface {
	// Capture takes a snapshot of the source image.
	Capture() (*image.RGBA, error)

	// Name identifies the source in logs.
	Name() string

	// Close releases any resources held by the source.
	Close() error
}

// RawSource is implemented by sources whose frames are already in the
// device's stride-padded BGR layout, skipping the rescale/convert step.
type RawSource interface {
	// CaptureRaw writes the current frame directly into dst.
	CaptureRaw(dst *raster.Raster) error

	Name() string
	Close() error
}
