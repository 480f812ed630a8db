package frame

import (
	"fmt"
	"strings"
)

// ElementType identifies the scalar type of every pixel in a frame.
// It is resolved once per Descriptor and carried on every record so the
// wire encoder never has to inspect payloads.
type ElementType uint8

const (
	ElementUnknown ElementType = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

var elementNames = map[ElementType]string{
	Int8:    "int8",
	Uint8:   "uint8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
}

// Field keys used by NTNDArray-style consumers for the typed value union.
var elementFieldKeys = map[ElementType]string{
	Int8:    "byteValue",
	Uint8:   "ubyteValue",
	Int16:   "shortValue",
	Uint16:  "ushortValue",
	Int32:   "intValue",
	Uint32:  "uintValue",
	Int64:   "longValue",
	Uint64:  "ulongValue",
	Float32: "floatValue",
	Float64: "doubleValue",
}

// ParseElementType converts a datatype name such as "uint16" into an ElementType.
func ParseElementType(name string) (ElementType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for t, s := range elementNames {
		if s == n {
			return t, nil
		}
	}
	return ElementUnknown, fmt.Errorf("unsupported datatype: %q", name)
}

// String returns the datatype name
func (t ElementType) String() string {
	if s, ok := elementNames[t]; ok {
		return s
	}
	return "unknown"
}

// Size returns the number of bytes a single element occupies.
func (t ElementType) Size() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// FieldKey returns the value-union field name for this element type
func (t ElementType) FieldKey() string {
	return elementFieldKeys[t]
}

// IsFloat reports whether t is a floating point type
func (t ElementType) IsFloat() bool {
	return t == Float32 || t == Float64
}

// Valid reports whether t is a known element type
func (t ElementType) Valid() bool {
	_, ok := elementNames[t]
	return ok
}

// ColorMode mirrors the area detector color mode attribute.
type ColorMode int

const (
	ColorModeMono ColorMode = 0 // [NY, NX]
	ColorModeRGB1 ColorMode = 2 // [3, NY, NX]
	ColorModeRGB2 ColorMode = 3 // [NY, 3, NX]
	ColorModeRGB3 ColorMode = 4 // [NY, NX, 3]
)

func (m ColorMode) String() string {
	switch m {
	case ColorModeMono:
		return "MONO"
	case ColorModeRGB1:
		return "RGB1"
	case ColorModeRGB2:
		return "RGB2"
	case ColorModeRGB3:
		return "RGB3"
	default:
		return fmt.Sprintf("ColorMode(%d)", int(m))
	}
}

// Descriptor is the shape and type summary a source reports once when it is
// attached. FrameCount <= 0 means the source is unbounded.
type Descriptor struct {
	FrameCount int         `json:"frame_count"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Element    ElementType `json:"element_type"`
	Codec      string      `json:"codec,omitempty"`
}

// Bounded reports whether the source has a known frame count
func (d Descriptor) Bounded() bool {
	return d.FrameCount > 0
}

// UncompressedFrameSize returns the size in bytes of one mono frame
func (d Descriptor) UncompressedFrameSize() int {
	return d.Width * d.Height * d.Element.Size()
}

// RawFrame is a frame as produced by a source. Shape is row-major, so a mono
// frame is [height, width]. Data holds the raw bytes in little-endian order,
// or the compressed chunk when Codec is set.
type RawFrame struct {
	Data    []byte
	Shape   []int
	Element ElementType
	Codec   string
}

// Mono builds a rank-2 RawFrame
func Mono(data []byte, width, height int, element ElementType) *RawFrame {
	return &RawFrame{
		Data:    data,
		Shape:   []int{height, width},
		Element: element,
	}
}
