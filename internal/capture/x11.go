package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/beamcast/beamcast/internal/logger"
)

// X11Source captures the whole root window over X11/XWayland.
type X11Source struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	img    *image.RGBA
	mu     sync.Mutex
}

// NewX11Source connects to the X server and prepares a root-window capture.
func NewX11Source() (*X11Source, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	s := &X11Source{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
	}

	logger.WithComponent("x11-source").Info().
		Uint16("width", screen.WidthInPixels).
		Uint16("height", screen.HeightInPixels).
		Uint8("depth", screen.RootDepth).
		Msg("connected to X server")
	return s, nil
}

// Capture grabs the full root window as an RGBA image.
func (s *X11Source) Capture() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	width := int(s.screen.WidthInPixels)
	height := int(s.screen.HeightInPixels)

	reply, err := xproto.GetImage(
		s.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(s.root),
		0, 0,
		uint16(width), uint16(height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return s.convertImageData(reply.Data, width, height)
}

// Name implements Source.
func (s *X11Source) Name() string {
	return "x11"
}

// Close shuts down the X11 connection.
func (s *X11Source) Close() error {
	s.conn.Close()
	return nil
}

// convertImageData converts X11 ZPixmap data (BGRA for 24/32-bit visuals)
// to RGBA, reusing the previous frame's buffer.
func (s *X11Source) convertImageData(data []byte, width, height int) (*image.RGBA, error) {
	depth := int(s.screen.RootDepth)
	if depth != 24 && depth != 32 {
		return nil, fmt.Errorf("unsupported root depth %d", depth)
	}
	if len(data) < width*height*4 {
		return nil, fmt.Errorf("short image reply: %d bytes for %dx%d", len(data), width, height)
	}

	if s.img == nil || s.img.Rect.Dx() != width || s.img.Rect.Dy() != height {
		s.img = image.NewRGBA(image.Rect(0, 0, width, height))
	}

	pix := s.img.Pix
	for i := 0; i+3 < width*height*4; i += 4 {
		pix[i] = data[i+2]   // R
		pix[i+1] = data[i+1] // G
		pix[i+2] = data[i]   // B
		pix[i+3] = 0xff
	}
	return s.img, nil
}
