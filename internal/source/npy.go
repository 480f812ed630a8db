package source

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
)

var npyMagic = []byte("\x93NUMPY")

var (
	npyDescrRe   = regexp.MustCompile(`'descr'\s*:\s*'([<>|=])([a-z])(\d+)'`)
	npyFortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	npyShapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// Npy reads frames from a NumPy .npy file holding a (frames, rows, cols)
// array, a single (rows, cols) image, or (frames, ...) color images.
type Npy struct {
	path       string
	desc       frame.Descriptor
	frameShape []int
	frameSize  int
	dataOffset int64
	swap       bool

	// eager mode
	data []byte

	// lazy mode
	lazy bool
	mu   sync.Mutex
	file *os.File
}

// OpenNpy parses the header of path. With lazy set the file stays open and
// frames are read on demand; otherwise the whole array is loaded.
func OpenNpy(path string, lazy bool) (*Npy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot load input file %s: %w", path, err)
	}

	n, err := parseNpyHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot load input file %s: %w", path, err)
	}
	n.path = path

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot load input file %s: %w", path, err)
	}
	if want := n.dataOffset + int64(n.desc.FrameCount)*int64(n.frameSize); st.Size() < want {
		f.Close()
		return nil, fmt.Errorf("cannot load input file %s: file holds %d bytes, shape needs %d",
			path, st.Size(), want)
	}

	if lazy {
		n.lazy = true
		n.file = f
	} else {
		defer f.Close()
		size := int64(n.desc.FrameCount) * int64(n.frameSize)
		n.data = make([]byte, size)
		if _, err := f.ReadAt(n.data, n.dataOffset); err != nil {
			return nil, fmt.Errorf("cannot load input file %s: %w", path, err)
		}
		if n.swap {
			swapBytes(n.data, n.desc.Element.Size())
		}
	}

	logger.WithComponent("source").Info().
		Str("path", path).
		Int("frames", n.desc.FrameCount).
		Str("datatype", n.desc.Element.String()).
		Bool("lazy", lazy).
		Msg("Loaded input file")
	return n, nil
}

func parseNpyHeader(r io.ReaderAt) (*Npy, error) {
	pre := make([]byte, 10)
	if _, err := r.ReadAt(pre, 0); err != nil {
		return nil, fmt.Errorf("failed to read npy preamble: %w", err)
	}
	if !bytes.Equal(pre[:6], npyMagic) {
		return nil, fmt.Errorf("not a npy file")
	}

	major := pre[6]
	var (
		headerLen int
		offset    int64
	)
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(pre[8:10]))
		offset = 10
	case 2, 3:
		ext := make([]byte, 12)
		if _, err := r.ReadAt(ext, 0); err != nil {
			return nil, fmt.Errorf("failed to read npy preamble: %w", err)
		}
		headerLen = int(binary.LittleEndian.Uint32(ext[8:12]))
		offset = 12
	default:
		return nil, fmt.Errorf("unsupported npy version %d", major)
	}

	header := make([]byte, headerLen)
	if _, err := r.ReadAt(header, offset); err != nil {
		return nil, fmt.Errorf("failed to read npy header: %w", err)
	}
	h := string(header)

	m := npyDescrRe.FindStringSubmatch(h)
	if m == nil {
		return nil, fmt.Errorf("unsupported npy descr in header %q", strings.TrimSpace(h))
	}
	element, err := npyElement(m[2], m[3])
	if err != nil {
		return nil, err
	}
	swap := m[1] == ">" && element.Size() > 1

	if fm := npyFortranRe.FindStringSubmatch(h); fm != nil && fm[1] == "True" {
		return nil, fmt.Errorf("fortran ordered arrays are not supported")
	}

	sm := npyShapeRe.FindStringSubmatch(h)
	if sm == nil {
		return nil, fmt.Errorf("missing shape in npy header")
	}
	var shape []int
	for _, part := range strings.Split(sm[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid npy shape %q", sm[1])
		}
		if v <= 0 {
			return nil, fmt.Errorf("%w: npy shape (%s) has an empty axis", frame.ErrInvalidFrameShape, sm[1])
		}
		shape = append(shape, v)
	}

	count := 1
	frameShape := shape
	switch len(shape) {
	case 2:
	case 3, 4:
		count, frameShape = shape[0], shape[1:]
	default:
		return nil, fmt.Errorf("%w: npy array of rank %d", frame.ErrInvalidFrameShape, len(shape))
	}

	frameSize := element.Size()
	for _, s := range frameShape {
		if frameSize > math.MaxInt32/s {
			return nil, fmt.Errorf("%w: npy frame shape %v is too large", frame.ErrInvalidFrameShape, frameShape)
		}
		frameSize *= s
	}
	if int64(count) > math.MaxInt64/int64(frameSize) {
		return nil, fmt.Errorf("%w: npy shape %v is too large", frame.ErrInvalidFrameShape, shape)
	}

	rows, cols := frameShape[0], frameShape[len(frameShape)-1]
	if len(frameShape) == 3 && frameShape[0] == 3 {
		rows = frameShape[1]
	}
	if len(frameShape) == 3 && frameShape[2] == 3 {
		cols = frameShape[1]
	}

	return &Npy{
		desc: frame.Descriptor{
			FrameCount: count,
			Width:      cols,
			Height:     rows,
			Element:    element,
		},
		frameShape: frameShape,
		frameSize:  frameSize,
		dataOffset: offset + int64(headerLen),
		swap:       swap,
	}, nil
}

func npyElement(kind, size string) (frame.ElementType, error) {
	name := ""
	switch kind {
	case "u":
		name = "uint" + strconv.Itoa(mustAtoi(size)*8)
	case "i":
		name = "int" + strconv.Itoa(mustAtoi(size)*8)
	case "f":
		name = "float" + strconv.Itoa(mustAtoi(size)*8)
	case "b":
		name = "uint8"
	default:
		return frame.ElementUnknown, fmt.Errorf("unsupported npy kind %q", kind)
	}
	return frame.ParseElementType(name)
}

func mustAtoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func swapBytes(buf []byte, width int) {
	for i := 0; i+width <= len(buf); i += width {
		for a, b := i, i+width-1; a < b; a, b = a+1, b-1 {
			buf[a], buf[b] = buf[b], buf[a]
		}
	}
}

// Describe reports the array's frame count and geometry
func (n *Npy) Describe() frame.Descriptor {
	return n.desc
}

// FrameAt returns frame index of the array
func (n *Npy) FrameAt(index int) (*frame.RawFrame, error) {
	if index < 0 || index >= n.desc.FrameCount {
		return nil, ErrNoFrame
	}

	var data []byte
	if !n.lazy {
		start := index * n.frameSize
		data = n.data[start : start+n.frameSize]
	} else {
		data = make([]byte, n.frameSize)
		n.mu.Lock()
		if n.file == nil {
			n.mu.Unlock()
			return nil, fmt.Errorf("read frame %d from %s: %w", index, n.path, os.ErrClosed)
		}
		_, err := n.file.ReadAt(data, n.dataOffset+int64(index)*int64(n.frameSize))
		n.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("failed to read frame %d from %s: %w", index, n.path, err)
		}
		if n.swap {
			swapBytes(data, n.desc.Element.Size())
		}
	}

	return &frame.RawFrame{
		Data:    data,
		Shape:   n.frameShape,
		Element: n.desc.Element,
	}, nil
}

// Close releases the file held in lazy mode
func (n *Npy) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.file == nil {
		return nil
	}
	err := n.file.Close()
	n.file = nil
	return err
}
