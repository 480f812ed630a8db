package source

import (
	"errors"
	"fmt"
	"io"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Frame codecs. The codec name travels with every frame so that consumers
// know how to restore the payload.
const (
	CodecZstd   = "zstd"
	CodecSnappy = "snappy"
)

// ErrUnknownCodec is returned for a codec name no encoder exists for
var ErrUnknownCodec = errors.New("unknown codec")

// Codecs lists the supported codec names
func Codecs() []string {
	return []string{CodecSnappy, CodecZstd}
}

// ValidCodec reports whether name is empty (no compression) or supported
func ValidCodec(name string) bool {
	switch name {
	case "", CodecZstd, CodecSnappy:
		return true
	}
	return false
}

// Compressed serves the frames of another source as compressed chunks.
// Frames that already carry a codec are passed through untouched.
type Compressed struct {
	src   Source
	codec string
	zenc  *zstd.Encoder
}

// NewCompressed wraps src so that every frame is encoded with codec
func NewCompressed(src Source, codec string) (*Compressed, error) {
	c := &Compressed{src: src, codec: codec}
	switch codec {
	case CodecZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		c.zenc = enc
	case CodecSnappy:
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCodec, codec)
	}
	return c, nil
}

// Compress wraps each source with codec. An empty codec returns sources as
// they are.
func Compress(sources []Source, codec string) ([]Source, error) {
	if codec == "" {
		return sources, nil
	}
	out := make([]Source, 0, len(sources))
	for _, src := range sources {
		c, err := NewCompressed(src, codec)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	logger.WithComponent("source").Info().
		Str("codec", codec).
		Int("sources", len(out)).
		Msg("Frames will be published compressed")
	return out, nil
}

// Describe reports the wrapped source with the codec set
func (c *Compressed) Describe() frame.Descriptor {
	d := c.src.Describe()
	d.Codec = c.codec
	return d
}

// FrameAt encodes frame index of the wrapped source
func (c *Compressed) FrameAt(index int) (*frame.RawFrame, error) {
	raw, err := c.src.FrameAt(index)
	if err != nil || raw.Codec != "" {
		return raw, err
	}

	var data []byte
	switch c.codec {
	case CodecZstd:
		data = c.zenc.EncodeAll(raw.Data, make([]byte, 0, len(raw.Data)/2))
	case CodecSnappy:
		data = s2.EncodeSnappy(nil, raw.Data)
	}
	return &frame.RawFrame{
		Data:    data,
		Shape:   raw.Shape,
		Element: raw.Element,
		Codec:   c.codec,
	}, nil
}

// Close releases the encoder and closes the wrapped source
func (c *Compressed) Close() error {
	if c.zenc != nil {
		c.zenc.Close()
	}
	if closer, ok := c.src.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Decompress restores a payload encoded with codec. size is the expected
// uncompressed length.
func Decompress(codec string, data []byte, size int) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch codec {
	case "":
		return data, nil
	case CodecZstd:
		var dec *zstd.Decoder
		dec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err = dec.DecodeAll(data, make([]byte, 0, size))
	case CodecSnappy:
		out, err = s2.Decode(make([]byte, size), data)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCodec, codec)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", codec, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%s payload decoded to %d bytes, want %d", codec, len(out), size)
	}
	return out, nil
}
