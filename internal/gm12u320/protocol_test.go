package gm12u320

import (
	"bytes"
	"testing"

	"github.com/beamcast/beamcast/internal/raster"
)

func TestFramePartition(t *testing.T) {
	e := NewFrameEncoder()

	// 800x600 at a 2562-byte stride: 23 full blocks plus a final block
	// carrying the remainder.
	if got := e.BlockCount(); got != 24 {
		t.Fatalf("block count = %d, want 24", got)
	}

	total := 0
	for i := 0; i < e.BlockCount(); i++ {
		n := e.ContentSize(i)
		if i < e.BlockCount()-1 && n != BlockContent {
			t.Fatalf("block %d content = %d, want %d", i, n, BlockContent)
		}
		wantWire := BlockHeaderSize + n + BlockFooterSize
		if len(e.Block(i)) != wantWire {
			t.Fatalf("block %d wire size = %d, want %d", i, len(e.Block(i)), wantWire)
		}
		total += n
	}
	if total != raster.FrameSize {
		t.Fatalf("blocks carry %d bytes, want %d", total, raster.FrameSize)
	}

	wantLast := raster.FrameSize - 23*BlockContent
	if got := e.ContentSize(e.BlockCount() - 1); got != wantLast {
		t.Fatalf("final block content = %d, want %d", got, wantLast)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	frame := make([]byte, raster.FrameSize)
	for i := range frame {
		frame[i] = byte(i * 7)
	}

	e := NewFrameEncoder()
	if err := e.Encode(frame); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var rebuilt []byte
	for i := 0; i < e.BlockCount(); i++ {
		b := e.Block(i)
		rebuilt = append(rebuilt, b[BlockHeaderSize:len(b)-BlockFooterSize]...)
	}
	if !bytes.Equal(rebuilt, frame) {
		t.Fatal("concatenated block payloads do not reconstruct the frame")
	}
}

func TestEncodeRejectsWrongSize(t *testing.T) {
	e := NewFrameEncoder()
	if err := e.Encode(make([]byte, raster.FrameSize-1)); err == nil {
		t.Fatal("expected error for undersized frame")
	}
}

func TestBlockFraming(t *testing.T) {
	e := NewFrameEncoder()

	first := e.Block(0)
	if first[64] != 0xfb || first[65] != 0x14 {
		t.Fatalf("block header magic = % x, want fb 14", first[64:66])
	}
	if size := int(first[76]) | int(first[77])<<8; size != BlockContent {
		t.Fatalf("header content size = %d, want %d", size, BlockContent)
	}
	footer := first[len(first)-BlockFooterSize:]
	if footer[0] != 0xfb || footer[1] != 0x14 || footer[19] != 0x4f {
		t.Fatalf("unexpected footer bytes % x", footer)
	}

	last := e.Block(e.BlockCount() - 1)
	if last[72] != 0x2a {
		t.Fatalf("final block marker = %#x, want 0x2a", last[72])
	}
	wantRem := raster.FrameSize - (e.BlockCount()-1)*BlockContent
	if size := int(last[76]) | int(last[77])<<8; size != wantRem {
		t.Fatalf("final header content size = %d, want %d", size, wantRem)
	}
}

func TestDataCommandPatch(t *testing.T) {
	buf := make([]byte, CmdSize)

	DataCommand(buf, 0, BlockSize, 0)
	if buf[0] != 0x55 || buf[1] != 0x53 || buf[2] != 0x42 || buf[3] != 0x43 {
		t.Fatalf("descriptor signature = % x, want USBC", buf[:4])
	}
	if size := int(buf[8]) | int(buf[9])<<8; size != BlockSize&0xffff {
		t.Fatalf("descriptor size field = %d, want %d", size, BlockSize&0xffff)
	}
	if buf[20] != 0xfc {
		t.Fatalf("sequence byte = %#x, want 0xfc", buf[20])
	}
	if buf[21] != 0 {
		t.Fatalf("index byte = %#x, want 0", buf[21])
	}

	DataCommand(buf, 5, 1000, 1)
	if buf[20] != 0xfc-5*4 {
		t.Fatalf("sequence byte = %#x, want %#x", buf[20], 0xfc-5*4)
	}
	if buf[21] != 5|0x80 {
		t.Fatalf("index byte = %#x, want block 5 with parity bit", buf[21])
	}

	DataCommand(buf, 5, 1000, 0)
	if buf[21] != 5 {
		t.Fatalf("index byte = %#x, want block 5 without parity bit", buf[21])
	}
}

func TestMiscCommandPatch(t *testing.T) {
	buf := make([]byte, CmdSize)
	MiscCommand(buf, 0xff, 0x35, 0x01, 0x00, 0x00, 0x01)

	want := []byte{0xff, 0x35, 0x01, 0x00, 0x00, 0x01}
	if !bytes.Equal(buf[20:26], want) {
		t.Fatalf("misc fields = % x, want % x", buf[20:26], want)
	}
	if buf[14] != 0x10 || buf[15] != 0xfd {
		t.Fatalf("misc opcode bytes = % x, want 10 fd", buf[14:16])
	}
}

func TestDrawCommand(t *testing.T) {
	buf := make([]byte, CmdSize)
	DrawCommand(buf)
	if buf[14] != 0x10 || buf[15] != 0xfe {
		t.Fatalf("draw opcode bytes = % x, want 10 fe", buf[14:16])
	}
}
