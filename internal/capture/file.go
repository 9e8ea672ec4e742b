package capture

import (
	"fmt"
	"os"

	"github.com/beamcast/beamcast/internal/logger"
	"github.com/beamcast/beamcast/internal/raster"
)

// FileSource reads pre-converted frames from a raw frame file written by a
// separate capture process. The file holds exactly one stride-padded BGR
// frame; the writer keeps it consistent by renaming complete frames into
// place, so a read never observes a torn frame.
type FileSource struct {
	path string
}

// NewFileSource returns a source reading frames from path. The file does not
// have to exist yet; reads fail until the first frame lands.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// CaptureRaw reads the current frame into dst.
func (s *FileSource) CaptureRaw(dst *raster.Raster) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading frame file: %w", err)
	}
	if len(data) != raster.FrameSize {
		return fmt.Errorf("frame file %s is %d bytes, want %d", s.path, len(data), raster.FrameSize)
	}
	copy(dst.Bytes(), data)
	return nil
}

// Name implements RawSource.
func (s *FileSource) Name() string {
	return "file:" + s.path
}

// Close implements RawSource.
func (s *FileSource) Close() error {
	return nil
}

// FileSink is the producer-side counterpart of FileSource: it writes each
// frame to one of two alternating scratch files and atomically renames the
// finished one over the target path. A reader in another process therefore
// sees either the previous complete frame or the new one, never a mix.
type FileSink struct {
	path string
	seq  uint64
}

// NewFileSink writes frames to path via alternating rename.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Publish implements Publisher so a Producer can feed the sink directly in
// split-process mode. Write errors are logged, not fatal; the next frame is
// the retry. Replacing the previous frame on disk is the sink's normal
// operation, not a drop.
func (s *FileSink) Publish(r *raster.Raster, _ raster.Rect) bool {
	if err := s.Write(r); err != nil {
		logger.WithComponent("file-sink").Error().Err(err).Msg("frame write failed")
	}
	return false
}

// Write publishes one frame to the target path.
func (s *FileSink) Write(r *raster.Raster) error {
	scratch := fmt.Sprintf("%s.%d", s.path, s.seq&1)
	s.seq++

	if err := os.WriteFile(scratch, r.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	if err := os.Rename(scratch, s.path); err != nil {
		return fmt.Errorf("publishing frame: %w", err)
	}
	return nil
}
