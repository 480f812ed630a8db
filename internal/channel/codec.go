// Package channel implements the output transports frames and scalars are
// published on, and the msgpack wire format they share.
package channel

import (
	"fmt"
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"github.com/vmihailenco/msgpack/v5"
)

// Kind tags what a message carries
type Kind string

const (
	KindFrame  Kind = "frame"
	KindScalar Kind = "scalar"
)

// ColorModeAttribute is the name of the attribute carrying the color mode
const ColorModeAttribute = "ColorMode"

// Timestamp is the wire form of a time
type Timestamp struct {
	SecondsPastEpoch int64 `msgpack:"secondsPastEpoch" json:"secondsPastEpoch"`
	Nanoseconds      int32 `msgpack:"nanoseconds" json:"nanoseconds"`
	UserTag          int32 `msgpack:"userTag" json:"userTag"`
}

// NewTimestamp converts t
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{SecondsPastEpoch: t.Unix(), Nanoseconds: int32(t.Nanosecond())}
}

// Time converts the timestamp back
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.SecondsPastEpoch, int64(ts.Nanoseconds))
}

// Codec names the compression and element type of a frame payload
type Codec struct {
	Name        string `msgpack:"name" json:"name"`
	ElementType string `msgpack:"elementType" json:"elementType"`
}

// Attribute is a named integer attribute attached to a frame
type Attribute struct {
	Name       string `msgpack:"name" json:"name"`
	Value      int    `msgpack:"value" json:"value"`
	Descriptor string `msgpack:"descriptor" json:"descriptor"`
}

// FrameMessage is the wire form of a frame record. Value holds a single
// entry keyed by the element type's field name (ubyteValue, ushortValue...).
type FrameMessage struct {
	UniqueID         int64             `msgpack:"uniqueId"`
	TimeStamp        Timestamp         `msgpack:"timeStamp"`
	DataTimeStamp    Timestamp         `msgpack:"dataTimeStamp"`
	Dimension        []frame.Dimension `msgpack:"dimension"`
	Codec            Codec             `msgpack:"codec"`
	CompressedSize   int               `msgpack:"compressedSize"`
	UncompressedSize int               `msgpack:"uncompressedSize"`
	Value            map[string][]byte `msgpack:"value"`
	Attribute        []Attribute       `msgpack:"attribute"`
	Descriptor       string            `msgpack:"descriptor"`
}

// ScalarMessage is the wire form of a metadata value
type ScalarMessage struct {
	Value     float64   `msgpack:"value"`
	TimeStamp Timestamp `msgpack:"timeStamp"`
}

// Message is the envelope every transport sends
type Message struct {
	Kind    Kind           `msgpack:"kind"`
	Channel string         `msgpack:"channel"`
	Frame   *FrameMessage  `msgpack:"frame,omitempty"`
	Scalar  *ScalarMessage `msgpack:"scalar,omitempty"`
}

// EncodeFrame serializes rec for channel
func EncodeFrame(channel string, rec *frame.Record) ([]byte, error) {
	msg := Message{
		Kind:    KindFrame,
		Channel: channel,
		Frame: &FrameMessage{
			UniqueID:         rec.UniqueID,
			TimeStamp:        NewTimestamp(rec.CaptureTime),
			DataTimeStamp:    NewTimestamp(rec.PublishTime),
			Dimension:        rec.Dimensions,
			Codec:            Codec{Name: rec.Codec, ElementType: rec.Element.String()},
			CompressedSize:   rec.CompressedSize,
			UncompressedSize: rec.UncompressedSize,
			Value:            map[string][]byte{rec.Element.FieldKey(): rec.Data},
			Attribute: []Attribute{{
				Name:       ColorModeAttribute,
				Value:      int(rec.ColorMode),
				Descriptor: "Color mode",
			}},
			Descriptor: rec.Descriptor,
		},
	}
	data, err := msgpack.Marshal(&msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame %d: %w", rec.UniqueID, err)
	}
	return data, nil
}

// EncodeScalar serializes a metadata value for channel
func EncodeScalar(channel string, value float64, ts time.Time) ([]byte, error) {
	msg := Message{
		Kind:    KindScalar,
		Channel: channel,
		Scalar:  &ScalarMessage{Value: value, TimeStamp: NewTimestamp(ts)},
	}
	data, err := msgpack.Marshal(&msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scalar %s: %w", channel, err)
	}
	return data, nil
}

// Decode parses a message produced by EncodeFrame or EncodeScalar
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	switch msg.Kind {
	case KindFrame:
		if msg.Frame == nil {
			return nil, fmt.Errorf("frame message without frame body")
		}
	case KindScalar:
		if msg.Scalar == nil {
			return nil, fmt.Errorf("scalar message without value")
		}
	default:
		return nil, fmt.Errorf("unknown message kind %q", msg.Kind)
	}
	return &msg, nil
}

// Record rebuilds a frame record from the wire form
func (m *FrameMessage) Record() (*frame.Record, error) {
	element, err := frame.ParseElementType(m.Codec.ElementType)
	if err != nil {
		return nil, err
	}
	data, ok := m.Value[element.FieldKey()]
	if !ok {
		return nil, fmt.Errorf("frame %d has no %s field", m.UniqueID, element.FieldKey())
	}

	rec := &frame.Record{
		UniqueID:         m.UniqueID,
		CaptureTime:      m.TimeStamp.Time(),
		PublishTime:      m.DataTimeStamp.Time(),
		Dimensions:       m.Dimension,
		Element:          element,
		Codec:            m.Codec.Name,
		CompressedSize:   m.CompressedSize,
		UncompressedSize: m.UncompressedSize,
		Data:             data,
		Descriptor:       m.Descriptor,
	}
	for _, a := range m.Attribute {
		if a.Name == ColorModeAttribute {
			rec.ColorMode = frame.ColorMode(a.Value)
		}
	}
	return rec, nil
}
