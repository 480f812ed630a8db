package source

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"golang.org/x/image/tiff"
)

// TiffStack treats an ordered list of single-image TIFF files as one source.
// Files are decoded on demand.
type TiffStack struct {
	paths []string
	desc  frame.Descriptor
}

// NewTiffStack inspects the first file for geometry and pixel type. Every
// later file is expected to match it.
func NewTiffStack(paths []string) (*TiffStack, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("empty tiff stack")
	}

	f, err := os.Open(paths[0])
	if err != nil {
		return nil, fmt.Errorf("cannot load input file %s: %w", paths[0], err)
	}
	defer f.Close()

	cfg, err := tiff.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("cannot load input file %s: %w", paths[0], err)
	}

	element := frame.Uint8
	if cfg.ColorModel == color.Gray16Model {
		element = frame.Uint16
	}

	s := &TiffStack{
		paths: paths,
		desc: frame.Descriptor{
			FrameCount: len(paths),
			Width:      cfg.Width,
			Height:     cfg.Height,
			Element:    element,
		},
	}

	logger.WithComponent("source").Info().
		Str("first", paths[0]).
		Int("frames", len(paths)).
		Str("datatype", element.String()).
		Msg("Loaded tiff stack")
	return s, nil
}

// Describe reports the stack geometry
func (s *TiffStack) Describe() frame.Descriptor {
	return s.desc
}

// FrameAt decodes file index of the stack
func (s *TiffStack) FrameAt(index int) (*frame.RawFrame, error) {
	if index < 0 || index >= len(s.paths) {
		return nil, ErrNoFrame
	}
	path := s.paths[index]

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	b := img.Bounds()
	if b.Dx() != s.desc.Width || b.Dy() != s.desc.Height {
		return nil, fmt.Errorf("%w: %s is %dx%d, stack is %dx%d",
			frame.ErrInvalidFrameShape, path, b.Dx(), b.Dy(), s.desc.Width, s.desc.Height)
	}

	var data []byte
	switch s.desc.Element {
	case frame.Uint16:
		data = gray16Bytes(img)
	default:
		data = gray8Bytes(img)
	}
	return frame.Mono(data, s.desc.Width, s.desc.Height, s.desc.Element), nil
}

func gray8Bytes(img image.Image) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if g, ok := img.(*image.Gray); ok && g.Stride == w {
		out := make([]byte, w*h)
		copy(out, g.Pix)
		return out
	}

	out := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
		}
	}
	return out
}

// gray16Bytes returns little-endian samples; image.Gray16 stores big-endian.
func gray16Bytes(img image.Image) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y
			binary.LittleEndian.PutUint16(out[(y*w+x)*2:], v)
		}
	}
	return out
}
