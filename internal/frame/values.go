package frame

import (
	"encoding/binary"
	"math"
)

// Range returns the representable value range of t. Float types report the
// float32 range, matching what generators use to avoid overflow.
func (t ElementType) Range() (lo, hi float64) {
	switch t {
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Uint8:
		return 0, math.MaxUint8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint16:
		return 0, math.MaxUint16
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Uint32:
		return 0, math.MaxUint32
	case Int64:
		return math.MinInt64, math.MaxInt64
	case Uint64:
		return 0, math.MaxUint64
	case Float32, Float64:
		return -math.MaxFloat32, math.MaxFloat32
	}
	return 0, 0
}

// PutValue stores v as element i of buf in little-endian order.
func PutValue(buf []byte, i int, t ElementType, v float64) {
	off := i * t.Size()
	switch t {
	case Int8:
		buf[off] = byte(int8(v))
	case Uint8:
		buf[off] = uint8(v)
	case Int16:
		binary.LittleEndian.PutUint16(buf[off:], uint16(int16(v)))
	case Uint16:
		binary.LittleEndian.PutUint16(buf[off:], uint16(v))
	case Int32:
		binary.LittleEndian.PutUint32(buf[off:], uint32(int32(v)))
	case Uint32:
		binary.LittleEndian.PutUint32(buf[off:], uint32(v))
	case Int64:
		binary.LittleEndian.PutUint64(buf[off:], uint64(int64(v)))
	case Uint64:
		binary.LittleEndian.PutUint64(buf[off:], uint64(v))
	case Float32:
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
	}
}

// Value reads element i of buf
func Value(buf []byte, i int, t ElementType) float64 {
	off := i * t.Size()
	switch t {
	case Int8:
		return float64(int8(buf[off]))
	case Uint8:
		return float64(buf[off])
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(buf[off:])))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(buf[off:]))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(buf[off:])))
	case Uint32:
		return float64(binary.LittleEndian.Uint32(buf[off:]))
	case Int64:
		return float64(int64(binary.LittleEndian.Uint64(buf[off:])))
	case Uint64:
		return float64(binary.LittleEndian.Uint64(buf[off:]))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	}
	return 0
}
