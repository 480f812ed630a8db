package source

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
)

// ScreenRegion selects the part of the root window to grab. A zero width or
// height extends the region to the edge of the screen.
type ScreenRegion struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Screen grabs mono frames from the X11 root window. It is unbounded: every
// FrameAt call returns a fresh capture, so it is only served in queue mode.
type Screen struct {
	conn   *xgb.Conn
	root   xproto.Window
	depth  byte
	region ScreenRegion
	mu     sync.Mutex
}

// NewScreen connects to the X server named by $DISPLAY
func NewScreen(region ScreenRegion) (*Screen, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	if region.X < 0 || region.Y < 0 ||
		region.X >= int(screen.WidthInPixels) || region.Y >= int(screen.HeightInPixels) {
		conn.Close()
		return nil, fmt.Errorf("screen region origin (%d,%d) outside %dx%d root window",
			region.X, region.Y, screen.WidthInPixels, screen.HeightInPixels)
	}
	if region.Width <= 0 || region.X+region.Width > int(screen.WidthInPixels) {
		region.Width = int(screen.WidthInPixels) - region.X
	}
	if region.Height <= 0 || region.Y+region.Height > int(screen.HeightInPixels) {
		region.Height = int(screen.HeightInPixels) - region.Y
	}

	s := &Screen{
		conn:   conn,
		root:   screen.Root,
		depth:  screen.RootDepth,
		region: region,
	}

	logger.WithComponent("source").Info().
		Int("x", region.X).
		Int("y", region.Y).
		Int("width", region.Width).
		Int("height", region.Height).
		Uint8("depth", s.depth).
		Msg("Connected to X11 screen")
	return s, nil
}

// Describe reports an unbounded uint8 source of the region's size
func (s *Screen) Describe() frame.Descriptor {
	return frame.Descriptor{
		Width:   s.region.Width,
		Height:  s.region.Height,
		Element: frame.Uint8,
	}
}

// FrameAt captures the region now; index is ignored.
func (s *Screen) FrameAt(_ int) (*frame.RawFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, ErrNoFrame
	}

	r := s.region
	reply, err := xproto.GetImage(
		s.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(s.root),
		int16(r.X), int16(r.Y),
		uint16(r.Width), uint16(r.Height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	data, err := luminance(reply.Data, r.Width, r.Height, int(s.depth))
	if err != nil {
		return nil, err
	}
	return frame.Mono(data, r.Width, r.Height, frame.Uint8), nil
}

// luminance converts 32-bit BGRX pixels into 8-bit gray (ITU-R 601 weights).
func luminance(data []byte, width, height, depth int) ([]byte, error) {
	if depth != 24 && depth != 32 {
		return nil, fmt.Errorf("unsupported X11 root depth %d", depth)
	}
	out := make([]byte, width*height)
	for i := range out {
		p := i * 4
		if p+3 >= len(data) {
			break
		}
		b, g, rd := uint32(data[p]), uint32(data[p+1]), uint32(data[p+2])
		out[i] = byte((299*rd + 587*g + 114*b) / 1000)
	}
	return out, nil
}

// Close releases the X connection
func (s *Screen) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return nil
}
