// Package raster holds the projector's fixed-geometry frame buffer format:
// packed 3-byte BGR pixels with a padded row stride, exactly as the device
// expects them on the wire.
package raster

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// Projector raster geometry. The device scans out 800 visible pixels per row
// but requires rows padded to a 2562-byte stride (2400 data + 162 padding).
const (
	Width           = 800
	Height          = 600
	BytesPerPixel   = 3
	DataBytesPerRow = Width * BytesPerPixel
	Stride          = 2562
	FrameSize       = Stride * Height
)

// Rect is an inclusive dirty rectangle in raster coordinates.
type Rect struct {
	X1, X2, Y1, Y2 int
}

// Full returns a rectangle covering the whole visible raster.
func Full() Rect {
	return Rect{X1: 0, X2: Width - 1, Y1: 0, Y2: Height - 1}
}

// Union returns the bounding rectangle of r and other.
func (r Rect) Union(other Rect) Rect {
	return Rect{
		X1: min(r.X1, other.X1),
		X2: max(r.X2, other.X2),
		Y1: min(r.Y1, other.Y1),
		Y2: max(r.Y2, other.Y2),
	}
}

// Raster is an owned frame buffer in the device's stride-padded BGR layout.
// Padding bytes past the data width of each row are never read by consumers.
type Raster struct {
	buf []byte
}

// New allocates a zeroed raster of the fixed projector geometry.
func New() *Raster {
	return &Raster{buf: make([]byte, FrameSize)}
}

// FromBytes wraps an existing stride-padded buffer. The buffer must be
// exactly FrameSize bytes.
func FromBytes(buf []byte) (*Raster, error) {
	if len(buf) != FrameSize {
		return nil, fmt.Errorf("raster: buffer is %d bytes, want %d", len(buf), FrameSize)
	}
	return &Raster{buf: buf}, nil
}

// Bytes returns the underlying stride-padded buffer.
func (r *Raster) Bytes() []byte {
	return r.buf
}

// SetPixel writes one BGR pixel. Intended for tests and pattern generators;
// bulk conversion goes through Convert.
func (r *Raster) SetPixel(x, y int, cr, cg, cb byte) {
	off := y*Stride + x*BytesPerPixel
	r.buf[off] = cb
	r.buf[off+1] = cg
	r.buf[off+2] = cr
}

// Converter rescales source images to the projector geometry and packs them
// into the device pixel layout. It owns a scratch buffer so steady-state
// conversion does not allocate.
type Converter struct {
	scratch *image.RGBA
}

// NewConverter returns a Converter ready for use.
func NewConverter() *Converter {
	return &Converter{
		scratch: image.NewRGBA(image.Rect(0, 0, Width, Height)),
	}
}

// Convert rescales src with nearest-neighbor sampling (horizontal and
// vertical factors computed independently from the source aspect), reorders
// the channels to the device's BGR order and writes the result into r.
// Returns the dirty region covered, always the full raster.
func (c *Converter) Convert(src image.Image, r *Raster) Rect {
	rgba, ok := src.(*image.RGBA)
	if !ok || src.Bounds().Dx() != Width || src.Bounds().Dy() != Height {
		xdraw.NearestNeighbor.Scale(c.scratch, c.scratch.Bounds(), src, src.Bounds(), xdraw.Src, nil)
		rgba = c.scratch
	}
	pack(rgba, r)
	return Full()
}

// pack copies an exactly-sized RGBA image into the stride-padded BGR buffer.
// Padding bytes are left untouched.
func pack(src *image.RGBA, r *Raster) {
	for y := 0; y < Height; y++ {
		base := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
		srow := src.Pix[base : base+Width*4]
		drow := r.buf[y*Stride : y*Stride+DataBytesPerRow]
		si := 0
		for x := 0; x < DataBytesPerRow; x += BytesPerPixel {
			drow[x] = srow[si+2]   // B
			drow[x+1] = srow[si+1] // G
			drow[x+2] = srow[si]   // R
			si += 4
		}
	}
}
