// Package gm12u320 implements the wire protocol and streaming engine for the
// GM12U320 pico-projector. The device has no video-class interface; it
// accepts frames only as a sequence of block-framed bulk transfers followed
// by a draw command, and falls back to its built-in idle image unless a
// frame is drawn at least every two seconds.
package gm12u320

import (
	"fmt"
	"time"

	"github.com/beamcast/beamcast/internal/raster"
)

// USB identity and logical endpoints.
const (
	VendorID  = 0x1de1
	ProductID = 0xc102

	EndpointMiscIn  = 1
	EndpointDataIn  = 2
	EndpointDataOut = 3
	EndpointMiscOut = 4
)

// Wire sizes. Every data block is header + content + footer; the final block
// of a frame carries whatever content remains past the full blocks.
const (
	CmdSize         = 31
	StatusSize      = 13
	MiscValueSize   = 4
	BlockHeaderSize = 84
	BlockContent    = 64512
	BlockFooterSize = 20
	BlockSize       = BlockHeaderSize + BlockContent + BlockFooterSize
)

// Timeout tiers. Commands and status reads are quick exchanges; bulk block
// payloads get a longer budget. The first draw after connect needs extra
// settle time, and the projector tolerates at most IdleTimeout between draws
// before reverting to its logo.
const (
	CmdTimeout        = 200 * time.Millisecond
	DataTimeout       = 1 * time.Second
	IdleTimeout       = 2 * time.Second
	FirstFrameTimeout = 2 * time.Second
)

// Misc request selectors. The two "unknown" requests mirror the handshakes
// the vendor driver performs; their semantics are undocumented and they are
// sent as opaque constants at the same points in the session.
const (
	miscReqEcoA = 0xff
	miscReqEcoB = 0x35

	miscReqUnknown1A = 0xff
	miscReqUnknown1B = 0x38

	miscReqUnknown2A = 0xa5
	miscReqUnknown2B = 0x00
)

var cmdData = [CmdSize]byte{
	0x55, 0x53, 0x42, 0x43, 0x00, 0x00, 0x00, 0x00,
	0x68, 0xfc, 0x00, 0x00, 0x00, 0x00, 0x10, 0xff,
	0x00, 0x00, 0x00, 0x00, 0xfc, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

var cmdDraw = [CmdSize]byte{
	0x55, 0x53, 0x42, 0x43, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0xfe,
	0x00, 0x00, 0x00, 0xc0, 0xd1, 0x05, 0x00, 0x40,
	0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00,
}

var cmdMisc = [CmdSize]byte{
	0x55, 0x53, 0x42, 0x43, 0x00, 0x00, 0x00, 0x00,
	0x04, 0x00, 0x00, 0x00, 0x80, 0x01, 0x10, 0xfd,
	0x00, 0x00, 0x00, 0xc0, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

var blockHeader = [BlockHeaderSize]byte{
	64: 0xfb, 65: 0x14,
	73: 0x04, 74: 0x15, 77: 0xfc,
	80: 0x01, 83: 0xdb,
}

var lastBlockHeader = [BlockHeaderSize]byte{
	64: 0xfb, 65: 0x14,
	72: 0x2a, 74: 0x20, 76: 0xc0, 77: 0x0f,
	80: 0x01, 83: 0xd7,
}

var blockFooter = [BlockFooterSize]byte{
	0xfb, 0x14, 0x02, 0x20, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x80, 0x00, 0x00, 0x4f,
}

// DataCommand fills buf with the data-announce descriptor for one block.
// The descriptor carries the total block size, a per-block sequence byte
// counting down from 0xfc in steps of 4, and the block index with the frame
// parity bit in the top bit.
func DataCommand(buf []byte, block, blockSize int, parity byte) {
	copy(buf, cmdData[:])
	buf[8] = byte(blockSize)
	buf[9] = byte(blockSize >> 8)
	buf[20] = byte(0xfc - block*4)
	buf[21] = byte(block) | parity<<7
}

// DrawCommand fills buf with the draw descriptor.
func DrawCommand(buf []byte) {
	copy(buf, cmdDraw[:])
}

// MiscCommand fills buf with a misc-request descriptor for selector
// (reqA, reqB) and arguments (a, b, c, d).
func MiscCommand(buf []byte, reqA, reqB, a, b, c, d byte) {
	copy(buf, cmdMisc[:])
	buf[20] = reqA
	buf[21] = reqB
	buf[22] = a
	buf[23] = b
	buf[24] = c
	buf[25] = d
}

// FrameEncoder partitions a stride-padded raster into the device's block
// layout. Block buffers are allocated once with their headers and footers in
// place; Encode only refreshes the payload bytes.
type FrameEncoder struct {
	blocks   [][]byte
	contents []int
}

// NewFrameEncoder builds the block buffers for the fixed raster geometry.
func NewFrameEncoder() *FrameEncoder {
	total := raster.FrameSize
	full := total / BlockContent
	rem := total - full*BlockContent

	e := &FrameEncoder{
		blocks:   make([][]byte, 0, full+1),
		contents: make([]int, 0, full+1),
	}
	for i := 0; i < full; i++ {
		b := make([]byte, BlockSize)
		copy(b, blockHeader[:])
		copy(b[BlockSize-BlockFooterSize:], blockFooter[:])
		e.blocks = append(e.blocks, b)
		e.contents = append(e.contents, BlockContent)
	}

	b := make([]byte, BlockHeaderSize+rem+BlockFooterSize)
	copy(b, lastBlockHeader[:])
	// The template announces the vendor default content size; patch in the
	// actual remainder for this raster geometry.
	b[76] = byte(rem)
	b[77] = byte(rem >> 8)
	copy(b[len(b)-BlockFooterSize:], blockFooter[:])
	e.blocks = append(e.blocks, b)
	e.contents = append(e.contents, rem)

	return e
}

// BlockCount returns the number of blocks per frame, final block included.
func (e *FrameEncoder) BlockCount() int {
	return len(e.blocks)
}

// Block returns the assembled wire bytes of block i as last encoded.
func (e *FrameEncoder) Block(i int) []byte {
	return e.blocks[i]
}

// ContentSize returns the payload byte count of block i.
func (e *FrameEncoder) ContentSize(i int) int {
	return e.contents[i]
}

// Encode copies the raster into the block payloads in order. frame must be
// exactly raster.FrameSize bytes.
func (e *FrameEncoder) Encode(frame []byte) error {
	if len(frame) != raster.FrameSize {
		return fmt.Errorf("gm12u320: frame is %d bytes, want %d", len(frame), raster.FrameSize)
	}
	off := 0
	for i, b := range e.blocks {
		n := e.contents[i]
		copy(b[BlockHeaderSize:BlockHeaderSize+n], frame[off:off+n])
		off += n
	}
	return nil
}
