package source

import (
	"bytes"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
)

func TestCompressedRoundTrip(t *testing.T) {
	for _, codec := range Codecs() {
		t.Run(codec, func(t *testing.T) {
			inner, err := NewRandom(RandomConfig{Frames: 2, Width: 32, Height: 16, Element: frame.Uint16, Maximum: ptr(4), Seed: 3})
			if err != nil {
				t.Fatalf("NewRandom() failed: %v", err)
			}
			c, err := NewCompressed(inner, codec)
			if err != nil {
				t.Fatalf("NewCompressed() failed: %v", err)
			}
			defer c.Close()

			d := c.Describe()
			if d.Codec != codec || d.FrameCount != 2 || d.UncompressedFrameSize() != 32*16*2 {
				t.Fatalf("Describe() = %+v", d)
			}

			want, _ := inner.FrameAt(1)
			raw, err := c.FrameAt(1)
			if err != nil {
				t.Fatalf("FrameAt(1) failed: %v", err)
			}
			if raw.Codec != codec || !slices.Equal(raw.Shape, want.Shape) || raw.Element != frame.Uint16 {
				t.Fatalf("frame = codec %q shape %v element %v", raw.Codec, raw.Shape, raw.Element)
			}
			if len(raw.Data) >= len(want.Data) {
				t.Errorf("low entropy frame compressed to %d of %d bytes", len(raw.Data), len(want.Data))
			}

			got, err := Decompress(codec, raw.Data, len(want.Data))
			if err != nil {
				t.Fatalf("Decompress() failed: %v", err)
			}
			if !bytes.Equal(got, want.Data) {
				t.Errorf("decompressed payload differs from the source frame")
			}
		})
	}
}

func TestCompressedPassesThroughEncodedFrames(t *testing.T) {
	inner, _ := NewRandom(RandomConfig{Frames: 1, Width: 8, Height: 8, Element: frame.Uint8, Seed: 1})
	snappy, err := NewCompressed(inner, CodecSnappy)
	if err != nil {
		t.Fatalf("NewCompressed() failed: %v", err)
	}
	zstd, err := NewCompressed(snappy, CodecZstd)
	if err != nil {
		t.Fatalf("NewCompressed() failed: %v", err)
	}
	defer zstd.Close()

	raw, err := zstd.FrameAt(0)
	if err != nil {
		t.Fatalf("FrameAt(0) failed: %v", err)
	}
	if raw.Codec != CodecSnappy {
		t.Errorf("codec = %q, want the inner snappy chunk", raw.Codec)
	}
}

func TestCompressedBuildsRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.npy")
	writeNpy(t, path, "<u2", []int{2, 4, 8}, make([]byte, 2*4*8*2))
	n, err := OpenNpy(path, true)
	if err != nil {
		t.Fatalf("OpenNpy() failed: %v", err)
	}
	srcs, err := Compress([]Source{n}, CodecZstd)
	if err != nil {
		t.Fatalf("Compress() failed: %v", err)
	}
	defer CloseAll(srcs)

	raw, err := srcs[0].FrameAt(0)
	if err != nil {
		t.Fatalf("FrameAt(0) failed: %v", err)
	}
	rec, err := frame.NewBuilder().Build(0, raw, nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if rec.Codec != CodecZstd || rec.UncompressedSize != 64 || rec.CompressedSize != len(raw.Data) {
		t.Errorf("record codec %q sizes %d/%d", rec.Codec, rec.CompressedSize, rec.UncompressedSize)
	}
	if rec.Width() != 8 || rec.Height() != 4 {
		t.Errorf("record is %dx%d, want 8x4", rec.Width(), rec.Height())
	}
}

func TestCompressRejectsUnknownCodec(t *testing.T) {
	inner, _ := NewRandom(RandomConfig{Frames: 1, Width: 2, Height: 2, Element: frame.Uint8})
	if _, err := Compress([]Source{inner}, "blosc"); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("Compress(blosc) error = %v, want ErrUnknownCodec", err)
	}
	srcs, err := Compress([]Source{inner}, "")
	if err != nil || srcs[0] != Source(inner) {
		t.Errorf("Compress(\"\") = %v, %v, want the sources unchanged", srcs, err)
	}
	if _, err := Decompress("blosc", nil, 0); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("Decompress(blosc) error = %v", err)
	}
	if ValidCodec("lz4") || !ValidCodec("") || !ValidCodec(CodecZstd) {
		t.Errorf("ValidCodec() disagrees with Codecs()")
	}
}
