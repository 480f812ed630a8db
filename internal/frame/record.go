package frame

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidFrameShape is returned when a source yields a frame whose rank or
// size cannot be expressed as a mono or RGB image.
var ErrInvalidFrameShape = errors.New("invalid frame shape")

// DefaultDescriptor is the descriptor string stamped on generated records
const DefaultDescriptor = "Image generated by DetectorSim"

// Dimension describes one axis of a published image
type Dimension struct {
	Size     int  `json:"size" msgpack:"size"`
	Offset   int  `json:"offset" msgpack:"offset"`
	FullSize int  `json:"full_size" msgpack:"fullSize"`
	Binning  int  `json:"binning" msgpack:"binning"`
	Reverse  bool `json:"reverse" msgpack:"reverse"`
}

func axis(size int) Dimension {
	return Dimension{Size: size, FullSize: size, Binning: 1}
}

// Record is a publish-ready frame. Records are never mutated after they are
// built; the publisher takes a stamped copy (see Stamped) when it dequeues
// one, so a cached record can be handed out any number of times.
type Record struct {
	UniqueID         int64
	CaptureTime      time.Time
	PublishTime      time.Time
	Dimensions       []Dimension
	ColorMode        ColorMode
	Element          ElementType
	Codec            string
	CompressedSize   int
	UncompressedSize int
	Data             []byte
	Descriptor       string
}

// Width returns the x dimension of the image
func (r *Record) Width() int {
	switch r.ColorMode {
	case ColorModeRGB1:
		return r.Dimensions[1].Size
	default:
		return r.Dimensions[0].Size
	}
}

// Height returns the y dimension of the image
func (r *Record) Height() int {
	switch r.ColorMode {
	case ColorModeMono:
		return r.Dimensions[1].Size
	case ColorModeRGB1, ColorModeRGB2:
		return r.Dimensions[2].Size
	default:
		return r.Dimensions[1].Size
	}
}

// Stamped returns a shallow copy of r carrying the given identifier and both
// timestamps set to t. The payload is shared, not copied.
func (r *Record) Stamped(id int64, t time.Time) *Record {
	c := *r
	c.UniqueID = id
	c.CaptureTime = t
	c.PublishTime = t
	return &c
}

// Builder turns raw frames into records.
type Builder struct {
	Descriptor string
	now        func() time.Time
}

// NewBuilder creates a builder stamping records with the default descriptor
func NewBuilder() *Builder {
	return &Builder{
		Descriptor: DefaultDescriptor,
		now:        time.Now,
	}
}

// Build wraps raw into a record with the given provisional identifier.
// When tmpl has the same element type, codec and shape, its structural fields
// are reused and only payload, identifier and timestamps are new.
func (b *Builder) Build(id int64, raw *RawFrame, tmpl *Record) (*Record, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: nil frame", ErrInvalidFrameShape)
	}
	if !raw.Element.Valid() {
		return nil, fmt.Errorf("%w: unknown element type", ErrInvalidFrameShape)
	}

	mode, dims, err := resolveShape(raw.Shape)
	if err != nil {
		return nil, err
	}

	elements := 1
	for _, s := range raw.Shape {
		elements *= s
	}
	uncompressed := elements * raw.Element.Size()
	if raw.Codec == "" && len(raw.Data) != uncompressed {
		return nil, fmt.Errorf("%w: shape %v needs %d bytes, got %d",
			ErrInvalidFrameShape, raw.Shape, uncompressed, len(raw.Data))
	}

	data := make([]byte, len(raw.Data))
	copy(data, raw.Data)
	ts := b.now()

	if tmpl != nil && tmpl.Element == raw.Element && tmpl.Codec == raw.Codec &&
		tmpl.ColorMode == mode && sameDimensions(tmpl.Dimensions, dims) {
		rec := *tmpl
		rec.UniqueID = id
		rec.CaptureTime = ts
		rec.PublishTime = ts
		rec.Data = data
		rec.CompressedSize = len(data)
		return &rec, nil
	}

	return &Record{
		UniqueID:         id,
		CaptureTime:      ts,
		PublishTime:      ts,
		Dimensions:       dims,
		ColorMode:        mode,
		Element:          raw.Element,
		Codec:            raw.Codec,
		CompressedSize:   len(data),
		UncompressedSize: uncompressed,
		Data:             data,
		Descriptor:       b.Descriptor,
	}, nil
}

// resolveShape maps a row-major shape onto a color mode and the published
// dimension list, which is ordered x first.
func resolveShape(shape []int) (ColorMode, []Dimension, error) {
	for _, s := range shape {
		if s <= 0 {
			return 0, nil, fmt.Errorf("%w: non-positive axis in %v", ErrInvalidFrameShape, shape)
		}
	}

	switch len(shape) {
	case 2:
		ny, nx := shape[0], shape[1]
		return ColorModeMono, []Dimension{axis(nx), axis(ny)}, nil
	case 3:
		switch {
		case shape[0] == 3:
			ny, nx := shape[1], shape[2]
			return ColorModeRGB1, []Dimension{axis(3), axis(nx), axis(ny)}, nil
		case shape[1] == 3:
			ny, nx := shape[0], shape[2]
			return ColorModeRGB2, []Dimension{axis(nx), axis(3), axis(ny)}, nil
		case shape[2] == 3:
			ny, nx := shape[0], shape[1]
			return ColorModeRGB3, []Dimension{axis(nx), axis(ny), axis(3)}, nil
		}
	}
	return 0, nil, fmt.Errorf("%w: rank %d shape %v", ErrInvalidFrameShape, len(shape), shape)
}

func sameDimensions(a, b []Dimension) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
